package lawyers

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/internal/storage"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/sanitize"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	sb    *storage.Supabase
	audit *audit.Recorder
}

func NewHandler(db *gorm.DB, sb *storage.Supabase, rec *audit.Recorder) *Handler {
	return &Handler{db: db, sb: sb, audit: rec}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

/* ============================== Directory =============================== */

type DirectoryItem struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Verified          bool      `json:"verified"`
	HourlyRate        float64   `json:"hourly_rate"`
	YearsExperience   int       `json:"years_experience"`
	RatingAvg         float64   `json:"rating_avg"`
	ReviewCount       int       `json:"review_count"`
	ConsultationCount int       `json:"consultation_count"`
	Specialties       []string  `json:"specialties"`
	BioPreview        string    `json:"bio_preview"`
}

// @Summary      Search lawyers
// @Description  Public, paginated directory with name/specialty/verified filters
// @Tags         lawyers
// @Produce      json
// @Param        page       query int    false "page"
// @Param        pageSize   query int    false "pageSize"
// @Param        q          query string false "name search"
// @Param        specialty  query string false "specialty name"
// @Param        verified   query bool   false "verified only"
// @Success      200  {object}  models.SuccessResponse
// @Router       /lawyers [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := parsePage(c)
	q := strings.TrimSpace(c.Query("q"))
	specialty := strings.TrimSpace(c.Query("specialty"))

	dbq := h.db.Model(&models.LawyerProfile{}).
		Joins("JOIN users ON users.id = lawyer_profiles.user_id").
		Where("users.active = ?", true)

	if q != "" {
		like := "%" + q + "%"
		dbq = dbq.Where("users.first_name ILIKE ? OR users.last_name ILIKE ?", like, like)
	}
	if specialty != "" {
		dbq = dbq.
			Joins("JOIN lawyer_specialties ls ON ls.lawyer_profile_id = lawyer_profiles.id").
			Joins("JOIN legal_specialties sp ON sp.id = ls.legal_specialty_id").
			Where("sp.name = ?", specialty)
	}
	if c.Query("verified") == "true" {
		dbq = dbq.Where("lawyer_profiles.verified = ?", true)
	}

	// Detached session: Count leaves its DISTINCT select behind on the
	// shared statement.
	var total int64
	if err := dbq.Session(&gorm.Session{}).Distinct("lawyer_profiles.id").Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var list []models.LawyerProfile
	if err := dbq.Select("lawyer_profiles.*").
		Preload("User").
		Preload("Specialties").
		Order("lawyer_profiles.verified DESC, lawyer_profiles.rating_avg DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&list).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]DirectoryItem, 0, len(list))
	for _, p := range list {
		names := make([]string, 0, len(p.Specialties))
		for _, s := range p.Specialties {
			names = append(names, s.Name)
		}
		items = append(items, DirectoryItem{
			ID:                p.ID,
			Name:              strings.TrimSpace(p.User.FirstName + " " + p.User.LastName),
			Verified:          p.Verified,
			HourlyRate:        p.HourlyRate,
			YearsExperience:   p.YearsExperience,
			RatingAvg:         p.RatingAvg,
			ReviewCount:       p.ReviewCount,
			ConsultationCount: p.ConsultationCount,
			Specialties:       names,
			BioPreview:        sanitize.Summary(sanitize.RedactPII(p.Bio), 240),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"page": page, "pageSize": size, "total": total,
			"pages": int(math.Ceil(float64(total) / float64(size))),
			"items": items,
		},
	})
}

type ProfileDetail struct {
	ID                uuid.UUID              `json:"id"`
	Name              string                 `json:"name"`
	Verified          bool                   `json:"verified"`
	LicenseNumber     string                 `json:"license_number"`
	BarAssociation    string                 `json:"bar_association"`
	YearsExperience   int                    `json:"years_experience"`
	HourlyRate        float64                `json:"hourly_rate"`
	RatingAvg         float64                `json:"rating_avg"`
	ReviewCount       int                    `json:"review_count"`
	ConsultationCount int                    `json:"consultation_count"`
	Bio               string                 `json:"bio"`
	Specialties       []models.LegalSpecialty `json:"specialties"`
	Services          []models.LawyerService  `json:"services"`
	CreatedAt         time.Time              `json:"created_at"`
}

// @Summary      Lawyer profile
// @Tags         lawyers
// @Produce      json
// @Param        id  path string true "lawyer profile id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lawyer id")
	}

	var p models.LawyerProfile
	err := h.db.
		Preload("User").
		Preload("Specialties").
		Preload("Services", func(db *gorm.DB) *gorm.DB {
			return db.Where("status = ?", models.ServiceActive).Order("created_at ASC")
		}).
		First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if p.Specialties == nil {
		p.Specialties = []models.LegalSpecialty{}
	}
	if p.Services == nil {
		p.Services = []models.LawyerService{}
	}

	return c.JSON(fiber.Map{"success": true, "data": ProfileDetail{
		ID:                p.ID,
		Name:              strings.TrimSpace(p.User.FirstName + " " + p.User.LastName),
		Verified:          p.Verified,
		LicenseNumber:     p.LicenseNumber,
		BarAssociation:    p.BarAssociation,
		YearsExperience:   p.YearsExperience,
		HourlyRate:        p.HourlyRate,
		RatingAvg:         p.RatingAvg,
		ReviewCount:       p.ReviewCount,
		ConsultationCount: p.ConsultationCount,
		Bio:               sanitize.RedactPII(p.Bio),
		Specialties:       p.Specialties,
		Services:          p.Services,
		CreatedAt:         p.CreatedAt,
	}})
}

/* ============================ Own profile =============================== */

type UpdateProfileRequest struct {
	LicenseNumber   *string  `json:"license_number" validate:"omitempty,license"`
	BarAssociation  *string  `json:"bar_association" validate:"omitempty,max=120"`
	YearsExperience *int     `json:"years_experience" validate:"omitempty,gte=0,lte=80"`
	HourlyRate      *float64 `json:"hourly_rate" validate:"omitempty,gte=0"`
	Bio             *string  `json:"bio" validate:"omitempty,max=4000"`
}

// mustOwnProfile loads the calling lawyer's profile or fails with 404.
func (h *Handler) mustOwnProfile(c *fiber.Ctx) (*models.LawyerProfile, error) {
	var p models.LawyerProfile
	if err := h.db.First(&p, "user_id = ?", auth.MustUserID(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "lawyer profile not found")
		}
		return nil, fiber.ErrInternalServerError
	}
	return &p, nil
}

// @Summary      Update own lawyer profile
// @Description  The verified flag cannot be changed here; only admins verify.
// @Tags         lawyers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "Profile fields"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me [put]
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p, err := h.mustOwnProfile(c)
	if err != nil {
		return err
	}

	old := fiber.Map{
		"license_number": p.LicenseNumber, "bar_association": p.BarAssociation,
		"years_experience": p.YearsExperience, "hourly_rate": p.HourlyRate,
	}

	updates := map[string]any{}
	if in.LicenseNumber != nil {
		updates["license_number"] = strings.TrimSpace(*in.LicenseNumber)
	}
	if in.BarAssociation != nil {
		updates["bar_association"] = strings.TrimSpace(*in.BarAssociation)
	}
	if in.YearsExperience != nil {
		updates["years_experience"] = *in.YearsExperience
	}
	if in.HourlyRate != nil {
		updates["hourly_rate"] = *in.HourlyRate
	}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}
	if len(updates) > 0 {
		if err := h.db.Model(p).Updates(updates).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	uid := auth.MustIdentity(c).UserID
	h.audit.Log(c.Context(), &uid, "profile_update", "lawyer_profile", &p.ID, old, updates)
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"id": p.ID}})
}

/* ============================= Specialties ============================== */

// @Summary      List legal specialties
// @Tags         lawyers
// @Produce      json
// @Success      200  {object}  models.SuccessResponse
// @Router       /specialties [get]
func (h *Handler) ListSpecialties(c *fiber.Ctx) error {
	var out []models.LegalSpecialty
	if err := h.db.Order("name ASC").Find(&out).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if out == nil {
		out = []models.LegalSpecialty{}
	}
	return c.JSON(fiber.Map{"success": true, "data": out})
}

type SetSpecialtiesRequest struct {
	SpecialtyIDs []string `json:"specialty_ids" validate:"required,dive,uuid4"`
}

// @Summary      Replace own specialty set
// @Tags         lawyers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SetSpecialtiesRequest  true  "Specialty ids"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /lawyers/me/specialties [put]
func (h *Handler) SetSpecialties(c *fiber.Ctx) error {
	var in SetSpecialtiesRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p, err := h.mustOwnProfile(c)
	if err != nil {
		return err
	}

	var specs []models.LegalSpecialty
	if len(in.SpecialtyIDs) > 0 {
		if err := h.db.Find(&specs, "id IN ?", in.SpecialtyIDs).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if len(specs) != len(in.SpecialtyIDs) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown specialty id")
		}
	}
	if err := h.db.Model(p).Association("Specialties").Replace(specs); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"count": len(specs)}})
}
