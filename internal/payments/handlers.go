package payments

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
	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/scope"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	audit *audit.Recorder
}

func NewHandler(db *gorm.DB, rec *audit.Recorder) *Handler {
	return &Handler{db: db, audit: rec}
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

/* =============================== Register =============================== */

type RegisterRequest struct {
	ConsultationID string  `json:"consultation_id" validate:"required,uuid4"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod  string  `json:"payment_method" validate:"required,max=30"`
	Status         string  `json:"status" validate:"omitempty,oneof=pendiente procesando completado fallido reembolsado"`
}

// @Summary      Register payment (admin)
// @Description  Manual ledger entry; at most one payment per consultation. Fees: 10% platform, 2.9% processing, remainder to the lawyer.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  RegisterRequest  true  "Payment payload"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "consultation not found"
// @Failure      409  {object}  models.ErrorResponse  "payment already exists"
// @Router       /payments [post]
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	consultationID, _ := uuid.Parse(in.ConsultationID)
	var cs models.Consultation
	if err := h.db.First(&cs, "id = ?", consultationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "consultation not found")
		}
		return fiber.ErrInternalServerError
	}

	platformFee, processingFee, lawyerEarnings := SplitFees(in.Amount)

	status := models.PaymentPending
	if in.Status != "" {
		status = models.PaymentStatus(in.Status)
	}

	pay := models.Payment{
		ConsultationID: cs.ID,
		Amount:         round2(in.Amount),
		PlatformFee:    platformFee,
		ProcessingFee:  processingFee,
		LawyerEarnings: lawyerEarnings,
		Status:         status,
		PaymentMethod:  in.PaymentMethod,
	}
	if status == models.PaymentCompleted {
		now := time.Now()
		pay.PaidAt = &now
	}

	// The unique index on consultation_id is the real guard; a create error
	// here means another payment won the race.
	if err := h.db.Create(&pay).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "a payment already exists for this consultation")
	}

	ident := auth.MustIdentity(c)
	h.audit.Log(c.Context(), &ident.UserID, "payment_register", "payment", &pay.ID, nil, fiber.Map{
		"consultation_id": cs.ID, "amount": pay.Amount, "status": pay.Status,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": pay})
}

/* ============================ Status update ============================= */

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pendiente procesando completado fallido reembolsado"`
}

// @Summary      Update payment status (admin)
// @Description  paid_at is set on the first transition into completado.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "payment id (uuid)"
// @Param        payload  body  StatusRequest  true  "New status"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id}/status [put]
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	var in StatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var pay models.Payment
	if err := h.db.First(&pay, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	oldStatus := pay.Status
	newStatus := models.PaymentStatus(in.Status)

	updates := map[string]any{"status": newStatus}
	if newStatus == models.PaymentCompleted && pay.PaidAt == nil {
		updates["paid_at"] = time.Now()
	}
	if err := h.db.Model(&pay).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	ident := auth.MustIdentity(c)
	h.audit.Log(c.Context(), &ident.UserID, "payment_status_change", "payment", &pay.ID,
		fiber.Map{"status": oldStatus}, fiber.Map{"status": newStatus})

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"id": pay.ID, "old_status": oldStatus, "status": newStatus,
	}})
}

/* ================================ List ================================== */

type ListItem struct {
	ID                uuid.UUID            `json:"id"`
	ConsultationID    uuid.UUID            `json:"consultation_id"`
	ConsultationTitle string               `json:"consultation_title"`
	Amount            float64              `json:"amount"`
	PlatformFee       float64              `json:"platform_fee"`
	ProcessingFee     float64              `json:"processing_fee"`
	LawyerEarnings    float64              `json:"lawyer_earnings"`
	Status            models.PaymentStatus `json:"status"`
	PaymentMethod     string               `json:"payment_method"`
	PaidAt            *time.Time           `json:"paid_at"`
	CreatedAt         time.Time            `json:"created_at"`
}

func (h *Handler) scoped(c *fiber.Ctx) (*gorm.DB, error) {
	ident := auth.MustIdentity(c)
	var profileID *uuid.UUID
	if ident.Role == models.RoleLawyer {
		var err error
		profileID, err = scope.LawyerProfileID(h.db, ident.UserID)
		if err != nil {
			return nil, fiber.ErrInternalServerError
		}
	}
	return scope.Payments(h.db.Model(&models.Payment{}), ident.Role, ident.UserID, profileID), nil
}

// @Summary      List payments
// @Description  Role-scoped: clients see payments on their consultations, lawyers on assigned ones, admins all.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  models.SuccessResponse
// @Router       /payments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := parsePage(c)

	q, err := h.scoped(c)
	if err != nil {
		return err
	}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if !models.KnownPaymentStatus(models.PaymentStatus(status)) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
		q = q.Where("payments.status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []ListItem
	if err := q.
		Select(`payments.*, c.title AS consultation_title`).
		Joins("JOIN consultations c ON c.id = payments.consultation_id").
		Order("payments.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []ListItem{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"page": page, "pageSize": size, "total": total,
			"pages": int(math.Ceil(float64(total) / float64(size))),
			"items": rows,
		},
	})
}

/* ================================ Stats ================================= */

type statsRow struct {
	Count         int64   `json:"count"`
	TotalAmount   float64 `json:"total_amount"`
	TotalPlatform float64 `json:"total_platform_fees"`
	TotalEarnings float64 `json:"total_lawyer_earnings"`
}

type statusCount struct {
	Status models.PaymentStatus `json:"status"`
	Count  int64                `json:"count"`
}

// @Summary      Payment stats
// @Description  Role-scoped totals and per-status counts.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  models.SuccessResponse
// @Router       /payments/stats [get]
func (h *Handler) Stats(c *fiber.Ctx) error {
	q, err := h.scoped(c)
	if err != nil {
		return err
	}

	var totals statsRow
	if err := q.Select(`COUNT(*) AS count,
		COALESCE(SUM(payments.amount), 0) AS total_amount,
		COALESCE(SUM(payments.platform_fee), 0) AS total_platform,
		COALESCE(SUM(payments.lawyer_earnings), 0) AS total_earnings`).
		Scan(&totals).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	q2, err := h.scoped(c)
	if err != nil {
		return err
	}
	var byStatus []statusCount
	if err := q2.Select("payments.status AS status, COUNT(*) AS count").
		Group("payments.status").
		Scan(&byStatus).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if byStatus == nil {
		byStatus = []statusCount{}
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"totals":    totals,
		"by_status": byStatus,
	}})
}
