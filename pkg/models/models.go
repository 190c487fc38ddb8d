package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "cliente"
	RoleLawyer Role = "abogado"
	RoleAdmin  Role = "administrador"
)

// ConsultationStatus defines lifecycle states for a consultation.
type ConsultationStatus string

const (
	ConsultationPending    ConsultationStatus = "pendiente"
	ConsultationAccepted   ConsultationStatus = "aceptada"
	ConsultationInProgress ConsultationStatus = "en_proceso"
	ConsultationCompleted  ConsultationStatus = "completada"
	ConsultationCancelled  ConsultationStatus = "cancelada"
	ConsultationRejected   ConsultationStatus = "rechazada"
)

// KnownConsultationStatus reports whether s is one of the recognized states.
func KnownConsultationStatus(s ConsultationStatus) bool {
	switch s {
	case ConsultationPending, ConsultationAccepted, ConsultationInProgress,
		ConsultationCompleted, ConsultationCancelled, ConsultationRejected:
		return true
	}
	return false
}

// PaymentStatus defines lifecycle states for a payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pendiente"
	PaymentProcessing PaymentStatus = "procesando"
	PaymentCompleted  PaymentStatus = "completado"
	PaymentFailed     PaymentStatus = "fallido"
	PaymentRefunded   PaymentStatus = "reembolsado"
)

// KnownPaymentStatus reports whether s is one of the five recognized states.
func KnownPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// ServiceStatus defines lifecycle states for a lawyer service.
type ServiceStatus string

const (
	ServiceActive    ServiceStatus = "activo"
	ServiceSuspended ServiceStatus = "suspendido"
	ServiceInactive  ServiceStatus = "inactivo"
)

/* =============================== Entities =============================== */

// User is the identity record for clients, lawyers and administrators.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email         string    `gorm:"uniqueIndex;not null"`
	PasswordHash  string    `gorm:"not null" json:"-"`
	Role          Role      `gorm:"type:varchar(20);not null"`
	FirstName     string    `gorm:"not null"`
	LastName      string
	Phone         string
	Active        bool `gorm:"not null;default:true"`
	EmailVerified bool `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LawyerProfile is the one-to-one extension of a user with role "abogado".
// Verified is mutated only through admin operations.
type LawyerProfile struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	LicenseNumber     string
	BarAssociation    string
	YearsExperience   int
	HourlyRate        float64
	Bio               string `gorm:"type:text"`
	Verified          bool   `gorm:"not null;default:false"`
	RatingAvg         float64
	ReviewCount       int
	ConsultationCount int
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Relations
	User        User             `gorm:"foreignKey:UserID;references:ID"`
	Specialties []LegalSpecialty `gorm:"many2many:lawyer_specialties"`
	Services    []LawyerService  `gorm:"foreignKey:LawyerID"`
}

// LegalSpecialty is a practice area a lawyer can be tagged with.
type LegalSpecialty struct {
	ID   uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name string    `gorm:"uniqueIndex;not null"`
}

// LawyerService is a priced offering owned by exactly one lawyer profile.
type LawyerService struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LawyerID        uuid.UUID `gorm:"type:uuid;not null;index"`
	Title           string    `gorm:"not null"`
	Description     string    `gorm:"type:text"`
	Price           float64   `gorm:"not null"`
	DurationMinutes int
	Type            string        `gorm:"type:varchar(40)"`
	Status          ServiceStatus `gorm:"type:varchar(20);default:'activo'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LawyerDocument is a credential file uploaded for verification review.
type LawyerDocument struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LawyerID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Key          string    `gorm:"not null"`
	Mime         string    `gorm:"not null"`
	Size         int       `gorm:"not null"`
	OriginalName string
	CreatedAt    time.Time
}

// Consultation is the central workflow entity of a client-lawyer engagement.
// ClientID is null only for public inquiries submitted without an account
// (contact data lives in ClientNotes); LawyerID is null only after the
// lawyer's account deletion.
type Consultation struct {
	ID             uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID       *uuid.UUID         `gorm:"type:uuid;index"`
	LawyerID       *uuid.UUID         `gorm:"type:uuid;index"`
	ServiceID      *uuid.UUID         `gorm:"type:uuid"`
	Title          string             `gorm:"not null"`
	Description    string             `gorm:"type:text"`
	Priority       string             `gorm:"type:varchar(20);default:'media'"`
	Status         ConsultationStatus `gorm:"type:varchar(20);default:'pendiente'"`
	EstimatedPrice *float64
	LawyerNotes    string `gorm:"type:text"`
	ClientNotes    string `gorm:"type:text"` // JSON blob for pre-registration inquiry data
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message belongs to exactly one consultation. Sender and recipient are
// user IDs; the recipient is always the consultation's other party.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ConsultationID uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null"`
	RecipientID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Content        string    `gorm:"type:text;not null"`
	Read           bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

// Payment records a payment attempt for a consultation (at most one per
// consultation). PlatformFee + ProcessingFee + LawyerEarnings == Amount.
type Payment struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ConsultationID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex"`
	Amount         float64       `gorm:"not null"`
	PlatformFee    float64       `gorm:"not null"`
	ProcessingFee  float64       `gorm:"not null"`
	LawyerEarnings float64       `gorm:"not null"`
	Status         PaymentStatus `gorm:"type:varchar(20);default:'pendiente'"`
	PaymentMethod  string        `gorm:"type:varchar(30)"`
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActivityLog is an append-only audit trail entry. Old/new values are JSON
// snapshots of the changed fields.
type ActivityLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       *uuid.UUID `gorm:"type:uuid;index"`
	Action       string     `gorm:"type:varchar(50);not null"`
	ResourceType string     `gorm:"type:varchar(40);not null"`
	ResourceID   *uuid.UUID `gorm:"type:uuid;index"`
	OldValue     string     `gorm:"type:text"`
	NewValue     string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
}

// Notification belongs to one user.
type Notification struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Title     string     `gorm:"not null"`
	Message   string     `gorm:"type:text"`
	Type      string     `gorm:"type:varchar(40)"`
	RelatedID *uuid.UUID `gorm:"type:uuid"`
	Read      bool       `gorm:"not null;default:false"`
	CreatedAt time.Time
}
