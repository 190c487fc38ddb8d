package consultations

import (
	"encoding/json"
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

// lawyerUserID resolves the user behind a consultation's assigned profile,
// nil when the consultation has no lawyer (deleted account).
func (h *Handler) lawyerUserID(cs *models.Consultation) (*uuid.UUID, error) {
	if cs.LawyerID == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	err := h.db.Model(&models.LawyerProfile{}).
		Where("id = ?", *cs.LawyerID).
		Limit(1).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// access loads a consultation and checks the caller is the client, the
// assigned lawyer, or an administrator. Returns 404 when absent, 403 when
// the caller is not a party.
func (h *Handler) access(c *fiber.Ctx) (*models.Consultation, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid consultation id")
	}

	var cs models.Consultation
	if err := h.db.First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}

	ident := auth.MustIdentity(c)
	switch ident.Role {
	case models.RoleAdmin:
		return &cs, nil
	case models.RoleClient:
		if cs.ClientID != nil && *cs.ClientID == ident.UserID {
			return &cs, nil
		}
	case models.RoleLawyer:
		profileID, err := scope.LawyerProfileID(h.db, ident.UserID)
		if err != nil {
			return nil, fiber.ErrInternalServerError
		}
		if profileID != nil && cs.LawyerID != nil && *cs.LawyerID == *profileID {
			return &cs, nil
		}
	}
	return nil, fiber.ErrForbidden
}

/* ================================ Create ================================ */

type CreateRequest struct {
	LawyerID    string `json:"lawyer_id" validate:"required,uuid4"`
	ServiceID   string `json:"service_id" validate:"omitempty,uuid4"`
	Title       string `json:"title" validate:"required,max=150"`
	Description string `json:"description" validate:"required,max=5000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=baja media alta urgente"`
}

// @Summary      Create consultation
// @Description  Client opens a consultation against a lawyer; status starts at pendiente
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateRequest  true  "Consultation payload"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "lawyer not found"
// @Router       /consultations [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	lawyerID, _ := uuid.Parse(in.LawyerID)
	var profile models.LawyerProfile
	if err := h.db.First(&profile, "id = ?", lawyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lawyer not found")
		}
		return fiber.ErrInternalServerError
	}

	var serviceID *uuid.UUID
	if in.ServiceID != "" {
		sid, _ := uuid.Parse(in.ServiceID)
		var svc models.LawyerService
		if err := h.db.First(&svc, "id = ? AND lawyer_id = ?", sid, lawyerID).Error; err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "service does not belong to this lawyer")
		}
		if svc.Status != models.ServiceActive {
			return fiber.NewError(fiber.StatusBadRequest, "service is not active")
		}
		serviceID = &sid
	}

	clientID := auth.MustIdentity(c).UserID
	cs := models.Consultation{
		ClientID:    &clientID,
		LawyerID:    &lawyerID,
		ServiceID:   serviceID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      models.ConsultationPending,
	}
	if in.Priority != "" {
		cs.Priority = in.Priority
	}
	if err := h.db.Create(&cs).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Log(c.Context(), &clientID, "consultation_create", "consultation", &cs.ID,
		nil, fiber.Map{"status": cs.Status, "lawyer_id": lawyerID})
	h.audit.Notify(c.Context(), profile.UserID, "Nueva consulta",
		"Has recibido una nueva solicitud de consulta: "+cs.Title, "consultation_created", &cs.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{"id": cs.ID}})
}

/* ============================ Public inquiry ============================ */

type PublicCreateRequest struct {
	LawyerID     string `json:"lawyer_id" validate:"required,uuid4"`
	Title        string `json:"title" validate:"required,max=150"`
	Description  string `json:"description" validate:"required,max=5000"`
	ContactName  string `json:"contact_name" validate:"required,max=120"`
	ContactEmail string `json:"contact_email" validate:"required,email,max=120"`
	ContactPhone string `json:"contact_phone" validate:"omitempty,max=20"`
}

// @Summary      Public consultation request
// @Description  Unauthenticated inquiry; contact info is stored as a client_notes JSON blob, no account is created
// @Tags         consultations
// @Accept       json
// @Produce      json
// @Param        payload  body  PublicCreateRequest  true  "Inquiry payload"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /public/consultations [post]
func (h *Handler) PublicCreate(c *fiber.Ctx) error {
	var in PublicCreateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	lawyerID, _ := uuid.Parse(in.LawyerID)
	var profile models.LawyerProfile
	if err := h.db.First(&profile, "id = ?", lawyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lawyer not found")
		}
		return fiber.ErrInternalServerError
	}

	contact, _ := json.Marshal(fiber.Map{
		"contact_name":  strings.TrimSpace(in.ContactName),
		"contact_email": strings.ToLower(strings.TrimSpace(in.ContactEmail)),
		"contact_phone": strings.TrimSpace(in.ContactPhone),
	})

	cs := models.Consultation{
		LawyerID:    &lawyerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      models.ConsultationPending,
		ClientNotes: string(contact),
	}
	if err := h.db.Create(&cs).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Log(c.Context(), nil, "consultation_public_create", "consultation", &cs.ID,
		nil, fiber.Map{"status": cs.Status, "lawyer_id": lawyerID})
	h.audit.Notify(c.Context(), profile.UserID, "Nueva consulta pública",
		"Has recibido una solicitud de consulta de un visitante: "+cs.Title, "consultation_created", &cs.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{"id": cs.ID}})
}

/* ================================ List ================================== */

type ListItem struct {
	ID        uuid.UUID                 `json:"id"`
	Title     string                    `json:"title"`
	Priority  string                    `json:"priority"`
	Status    models.ConsultationStatus `json:"status"`
	CreatedAt time.Time                 `json:"created_at"`
}

// @Summary      List consultations
// @Description  Role-scoped: clients see their own, lawyers their assigned, admins all
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  models.SuccessResponse
// @Router       /consultations [get]
func (h *Handler) List(c *fiber.Ctx) error {
	ident := auth.MustIdentity(c)
	page, size := parsePage(c)

	var profileID *uuid.UUID
	if ident.Role == models.RoleLawyer {
		var err error
		profileID, err = scope.LawyerProfileID(h.db, ident.UserID)
		if err != nil {
			return fiber.ErrInternalServerError
		}
	}

	q := scope.Consultations(h.db.Model(&models.Consultation{}), ident.Role, ident.UserID, profileID)

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if !models.KnownConsultationStatus(models.ConsultationStatus(status)) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
		q = q.Where("consultations.status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []ListItem
	if err := q.Order("consultations.created_at DESC").
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

// @Summary      Consultation detail
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "consultation id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /consultations/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	cs, err := h.access(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cs})
}

/* ================================ Accept ================================ */

type AcceptRequest struct {
	EstimatedPrice *float64 `json:"estimated_price" validate:"omitempty,gt=0"`
	LawyerNotes    string   `json:"lawyer_notes" validate:"omitempty,max=2000"`
}

// @Summary      Accept consultation
// @Description  Assigned lawyer accepts a pending consultation. The update is conditional on status = pendiente, so concurrent accepts cannot both win.
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "consultation id (uuid)"
// @Param        payload  body  AcceptRequest  false  "Optional price estimate and notes"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse  "not found, not owned, or not pending"
// @Router       /consultations/{id}/accept [post]
func (h *Handler) Accept(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid consultation id")
	}

	var in AcceptRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
		if errs, _ := validation.Validate(in); errs != nil {
			return validation.Respond(c, errs)
		}
	}

	ident := auth.MustIdentity(c)
	profileID, err := scope.LawyerProfileID(h.db, ident.UserID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if profileID == nil {
		return fiber.ErrNotFound
	}

	updates := map[string]any{
		"status":     models.ConsultationAccepted,
		"updated_at": time.Now(),
	}
	if in.EstimatedPrice != nil {
		updates["estimated_price"] = *in.EstimatedPrice
	}
	if strings.TrimSpace(in.LawyerNotes) != "" {
		updates["lawyer_notes"] = strings.TrimSpace(in.LawyerNotes)
	}

	res := h.db.Model(&models.Consultation{}).
		Where("id = ? AND lawyer_id = ? AND status = ?", id, *profileID, models.ConsultationPending).
		Updates(updates)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "consultation not found or not pending")
	}

	var cs models.Consultation
	if err := h.db.First(&cs, "id = ?", id).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Log(c.Context(), &ident.UserID, "consultation_accept", "consultation", &cs.ID,
		fiber.Map{"status": models.ConsultationPending},
		fiber.Map{"status": models.ConsultationAccepted, "estimated_price": cs.EstimatedPrice})
	if cs.ClientID != nil {
		h.audit.Notify(c.Context(), *cs.ClientID, "Consulta aceptada",
			"El abogado ha aceptado tu consulta: "+cs.Title, "consultation_accepted", &cs.ID)
	}

	return c.JSON(fiber.Map{"success": true, "data": cs})
}

/* ============================ Status update ============================= */

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pendiente aceptada en_proceso completada cancelada rechazada"`
}

// @Summary      Update consultation status
// @Description  Either party or an admin. Completed consultations are frozen for everyone except admins.
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "consultation id (uuid)"
// @Param        payload  body  StatusRequest  true  "New status"
// @Success      200  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "completed consultation"
// @Router       /consultations/{id}/status [put]
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var in StatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.access(c)
	if err != nil {
		return err
	}

	ident := auth.MustIdentity(c)
	if cs.Status == models.ConsultationCompleted && ident.Role != models.RoleAdmin {
		return fiber.NewError(fiber.StatusConflict, "completed consultation is immutable")
	}

	oldStatus := cs.Status
	newStatus := models.ConsultationStatus(in.Status)
	if err := h.db.Model(cs).Update("status", newStatus).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Log(c.Context(), &ident.UserID, "consultation_status_change", "consultation", &cs.ID,
		fiber.Map{"status": oldStatus}, fiber.Map{"status": newStatus})

	// Tell the other party, when there is one.
	if ident.Role != models.RoleClient && cs.ClientID != nil {
		h.audit.Notify(c.Context(), *cs.ClientID, "Consulta actualizada",
			"Tu consulta cambió de estado a "+string(newStatus)+": "+cs.Title, "consultation_status", &cs.ID)
	} else if ident.Role == models.RoleClient {
		if luid, err := h.lawyerUserID(cs); err == nil && luid != nil {
			h.audit.Notify(c.Context(), *luid, "Consulta actualizada",
				"La consulta cambió de estado a "+string(newStatus)+": "+cs.Title, "consultation_status", &cs.ID)
		}
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"id": cs.ID, "old_status": oldStatus, "status": newStatus,
	}})
}
