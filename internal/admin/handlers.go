package admin

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
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

/* ============================ Verification ============================== */

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

func verificationNotice(action, notes string) (title, message string) {
	if action == actionApprove {
		return "Cuenta verificada",
			"Tu perfil de abogado ha sido verificado. Ya puedes recibir consultas."
	}
	message = "Tu solicitud de verificación fue rechazada."
	if strings.TrimSpace(notes) != "" {
		message += " Motivo: " + strings.TrimSpace(notes)
	}
	return "Verificación rechazada", message
}

type VerifyRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes" validate:"omitempty,max=1000"`
}

// @Summary      Verify lawyer
// @Description  Approve or reject a lawyer profile; the lawyer is notified with a canned message (reject includes notes).
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "lawyer profile id (uuid)"
// @Param        payload  body  VerifyRequest  true  "Verification decision"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "profile not found"
// @Router       /admin/lawyers/{id}/verify [post]
func (h *Handler) VerifyLawyer(c *fiber.Ctx) error {
	id := c.Params("id")
	profileID, err := uuid.Parse(id)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lawyer id")
	}

	var in VerifyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var p models.LawyerProfile
	if err := h.db.Preload("User").First(&p, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lawyer profile not found")
		}
		return fiber.ErrInternalServerError
	}

	oldVerified := p.Verified
	if err := h.db.Model(&p).Update("verified", in.Action == actionApprove).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	ident := auth.MustIdentity(c)
	h.audit.Log(c.Context(), &ident.UserID, "lawyer_verify_"+in.Action, "lawyer_profile", &p.ID,
		fiber.Map{"verified": oldVerified}, fiber.Map{"verified": in.Action == actionApprove, "notes": in.Notes})

	title, message := verificationNotice(in.Action, in.Notes)
	h.audit.Notify(c.Context(), p.UserID, title, message, "verification", &p.ID)

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"id": p.ID, "verified": in.Action == actionApprove,
	}})
}

// @Summary      Verification detail
// @Description  Profile plus its verification history (most recent first). Read-only.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "lawyer profile id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/lawyers/{id}/verify [get]
func (h *Handler) VerificationDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lawyer id")
	}

	var p models.LawyerProfile
	if err := h.db.Preload("User").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lawyer profile not found")
		}
		return fiber.ErrInternalServerError
	}

	var history []models.ActivityLog
	if err := h.db.
		Where("resource_type = ? AND resource_id = ?", "lawyer_profile", p.ID).
		Order("created_at DESC").
		Find(&history).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if history == nil {
		history = []models.ActivityLog{}
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"profile": fiber.Map{
			"id":              p.ID,
			"user_id":         p.UserID,
			"name":            strings.TrimSpace(p.User.FirstName + " " + p.User.LastName),
			"email":           p.User.Email,
			"license_number":  p.LicenseNumber,
			"bar_association": p.BarAssociation,
			"verified":        p.Verified,
		},
		"verification_history": history,
	}})
}

// @Summary      Pending lawyers
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  models.SuccessResponse
// @Router       /admin/lawyers/pending [get]
func (h *Handler) PendingLawyers(c *fiber.Ctx) error {
	page, size := parsePage(c)

	q := h.db.Model(&models.LawyerProfile{}).Where("verified = ?", false)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var list []models.LawyerProfile
	if err := q.Preload("User").
		Order("created_at ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&list).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]fiber.Map, 0, len(list))
	for _, p := range list {
		items = append(items, fiber.Map{
			"id":              p.ID,
			"user_id":         p.UserID,
			"name":            strings.TrimSpace(p.User.FirstName + " " + p.User.LastName),
			"email":           p.User.Email,
			"license_number":  p.LicenseNumber,
			"bar_association": p.BarAssociation,
			"created_at":      p.CreatedAt,
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

/* ============================ Batch verify ============================== */

type BatchVerifyRequest struct {
	LawyerIDs []string `json:"lawyer_ids" validate:"required,min=1,max=100"`
	Action    string   `json:"action" validate:"required,oneof=approve reject"`
	Notes     string   `json:"notes" validate:"omitempty,max=1000"`
}

type BatchResult struct {
	LawyerID string `json:"lawyer_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// @Summary      Batch verify lawyers
// @Description  Applies the decision per id inside one transaction; each item's outcome is reported independently and one failure does not abort the rest. Always 200.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  BatchVerifyRequest  true  "Batch decision"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /admin/lawyers/pending [post]
func (h *Handler) BatchVerify(c *fiber.Ctx) error {
	var in BatchVerifyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	type verifiedItem struct {
		profile     models.LawyerProfile
		wasVerified bool
	}

	results := make([]BatchResult, 0, len(in.LawyerIDs))
	verified := make([]verifiedItem, 0, len(in.LawyerIDs))

	err := h.db.Transaction(func(tx *gorm.DB) error {
		for _, raw := range in.LawyerIDs {
			item := BatchResult{LawyerID: raw}

			profileID, err := uuid.Parse(raw)
			if err != nil {
				item.Error = "invalid lawyer id"
				results = append(results, item)
				continue
			}

			// Existence is checked first so a missing row never touches the
			// transaction; per-item outcomes stay independent.
			var p models.LawyerProfile
			if err := tx.Preload("User").First(&p, "id = ?", profileID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					item.Error = "lawyer profile not found"
					results = append(results, item)
					continue
				}
				return err
			}
			wasVerified := p.Verified
			if err := tx.Model(&p).Update("verified", in.Action == actionApprove).Error; err != nil {
				return err
			}

			item.Success = true
			results = append(results, item)
			verified = append(verified, verifiedItem{profile: p, wasVerified: wasVerified})
		}
		return nil
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}

	// Side effects after commit, best-effort per item.
	ident := auth.MustIdentity(c)
	title, message := verificationNotice(in.Action, in.Notes)
	for _, v := range verified {
		h.audit.Log(c.Context(), &ident.UserID, "lawyer_verify_"+in.Action, "lawyer_profile", &v.profile.ID,
			fiber.Map{"verified": v.wasVerified}, fiber.Map{"verified": in.Action == actionApprove, "notes": in.Notes})
		h.audit.Notify(c.Context(), v.profile.UserID, title, message, "verification", &v.profile.ID)
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"results": results}})
}

/* ============================ User management =========================== */

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// @Summary      Activate/deactivate user
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "user id (uuid)"
// @Param        payload  body  SetActiveRequest  true  "Active flag"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/users/{id}/active [patch]
func (h *Handler) SetUserActive(c *fiber.Ctx) error {
	var in SetActiveRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.First(&u, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	old := u.Active
	if err := h.db.Model(&u).Update("active", *in.Active).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	action := "user_deactivate"
	if *in.Active {
		action = "user_activate"
	}
	ident := auth.MustIdentity(c)
	h.audit.Log(c.Context(), &ident.UserID, action, "user", &u.ID,
		fiber.Map{"active": old}, fiber.Map{"active": *in.Active})

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"id": u.ID, "active": *in.Active}})
}

// @Summary      Delete user
// @Description  Blocked while a lawyer profile, consultations, payments or messages reference the user; the error lists what blocks it.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "user id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "dependent records exist"
// @Router       /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var u models.User
	if err := h.db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var deps []string
	var cnt int64

	var profileIDs []uuid.UUID
	if err := h.db.Model(&models.LawyerProfile{}).Where("user_id = ?", u.ID).Pluck("id", &profileIDs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if len(profileIDs) > 0 {
		deps = append(deps, "lawyer profile")
	}

	q := h.db.Model(&models.Consultation{}).Where("client_id = ?", u.ID)
	if len(profileIDs) > 0 {
		q = h.db.Model(&models.Consultation{}).Where("client_id = ? OR lawyer_id IN ?", u.ID, profileIDs)
	}
	if err := q.Count(&cnt).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if cnt > 0 {
		deps = append(deps, fmt.Sprintf("%d consultation(s)", cnt))

		pq := h.db.Model(&models.Payment{}).
			Joins("JOIN consultations ON consultations.id = payments.consultation_id").
			Where("consultations.client_id = ?", u.ID)
		if len(profileIDs) > 0 {
			pq = h.db.Model(&models.Payment{}).
				Joins("JOIN consultations ON consultations.id = payments.consultation_id").
				Where("consultations.client_id = ? OR consultations.lawyer_id IN ?", u.ID, profileIDs)
		}
		if err := pq.Count(&cnt).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if cnt > 0 {
			deps = append(deps, fmt.Sprintf("%d payment(s)", cnt))
		}
	}

	if err := h.db.Model(&models.Message{}).Where("sender_id = ?", u.ID).Count(&cnt).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if cnt > 0 {
		deps = append(deps, fmt.Sprintf("%d message(s)", cnt))
	}

	if len(deps) > 0 {
		return fiber.NewError(fiber.StatusConflict,
			"cannot delete user: dependent records exist: "+strings.Join(deps, ", "))
	}

	if err := h.db.Delete(&u).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	ident := auth.MustIdentity(c)
	h.audit.Log(c.Context(), &ident.UserID, "user_delete", "user", &u.ID,
		fiber.Map{"email": u.Email, "role": u.Role}, nil)

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"deleted": true}})
}
