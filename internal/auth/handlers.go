package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/config"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /auth/register
type RegisterRequest struct {
	Role      string `json:"role" validate:"required,oneof=cliente abogado"`
	FirstName string `json:"first_name" validate:"required,min=2,max=80"`
	LastName  string `json:"last_name" validate:"omitempty,max=80"`
	Email     string `json:"email" validate:"required,email,max=120"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	// Optional for lawyers
	LicenseNumber  string `json:"license_number" validate:"omitempty,license"`
	BarAssociation string `json:"bar_association" validate:"omitempty,max=120"`
}

// Request body for /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for /auth/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

// PublicUser is the sanitized user shape returned by the API. It never
// carries the password hash.
type PublicUser struct {
	ID            uuid.UUID   `json:"id"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Phone         string      `json:"phone"`
	Active        bool        `json:"active"`
	EmailVerified bool        `json:"email_verified"`
	CreatedAt     time.Time   `json:"created_at"`
}

func Sanitize(u *models.User) PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

/* ============================== Handler ================================= */

type Handler struct {
	db      *gorm.DB
	limiter Limiter
	audit   *audit.Recorder
	log     *zap.Logger
}

func NewHandler(db *gorm.DB, limiter Limiter, rec *audit.Recorder, log *zap.Logger) *Handler {
	return &Handler{db: db, limiter: limiter, audit: rec, log: log}
}

// allow wraps the limiter; a backend outage is logged and fails open.
func (h *Handler) allow(c *fiber.Ctx, key string, limit int, window time.Duration) bool {
	ok, err := h.limiter.Allow(c.Context(), key, limit, window)
	if err != nil {
		h.log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

/* =============================== Register =============================== */

// @Summary      Register
// @Description  Register a new user (cliente or abogado); lawyers get a stub unverified profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RegisterRequest  true  "Registration payload"
// @Success      201      {object}  models.SuccessResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /auth/register [post]
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Active:       true,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		if u.Role == models.RoleLawyer {
			p := models.LawyerProfile{
				UserID:         u.ID,
				LicenseNumber:  strings.TrimSpace(in.LicenseNumber),
				BarAssociation: strings.TrimSpace(in.BarAssociation),
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	h.audit.Log(c.Context(), &u.ID, "user_register", "user", &u.ID, nil, fiber.Map{"role": u.Role})
	h.audit.Notify(c.Context(), u.ID, "Bienvenido a LexConnect",
		"Tu cuenta ha sido creada correctamente.", "registration", nil)

	token, _ := IssueToken(&u)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":      Sanitize(&u),
			"token":     token,
			"expiresIn": int(TokenTTL().Seconds()),
		},
	})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT; throttled per IP and per email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  models.SuccessResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Failure      403      {object}  models.ErrorResponse  "inactive account"
// @Failure      429      {object}  models.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	window := config.GetDurationEnv("LOGIN_WINDOW", 15*time.Minute)
	ipKey := "login:ip:" + c.IP()
	emailKey := "login:email:" + in.Email

	if !h.allow(c, ipKey, config.GetIntEnv("LOGIN_IP_LIMIT", 5), window) ||
		!h.allow(c, emailKey, config.GetIntEnv("LOGIN_EMAIL_LIMIT", 3), window) {
		return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
	}

	var u models.User
	if err := h.db.Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if !u.Active {
		return fiber.NewError(fiber.StatusForbidden, "account is deactivated")
	}

	// Successful login clears the throttling counters.
	for _, key := range []string{ipKey, emailKey} {
		if err := h.limiter.Reset(c.Context(), key); err != nil {
			h.log.Warn("rate limiter reset failed", zap.String("key", key), zap.Error(err))
		}
	}

	token, _ := IssueToken(&u)
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":      Sanitize(&u),
			"token":     token,
			"expiresIn": int(TokenTTL().Seconds()),
		},
	})
}

/* ================================= Me =================================== */

// @Summary      Current user profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  models.SuccessResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	var u models.User
	if err := h.db.First(&u, "id = ?", MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(fiber.Map{"success": true, "data": Sanitize(&u)})
}

/* ============================ Change password =========================== */

// @Summary      Change password
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ChangePasswordRequest  true  "Password change payload"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /auth/password [post]
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var in ChangePasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.First(&u, "id = ?", MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "current password is incorrect")
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err := h.db.Model(&u).Update("password_hash", string(hash)).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Log(c.Context(), &u.ID, "password_change", "user", &u.ID, nil, nil)
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"updated": true}})
}
