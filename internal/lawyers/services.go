package lawyers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/validation"
)

/* =============================== Services =============================== */

type ServiceRequest struct {
	Title           string  `json:"title" validate:"required,max=120"`
	Description     string  `json:"description" validate:"omitempty,max=2000"`
	Price           float64 `json:"price" validate:"required,gt=0"`
	DurationMinutes int     `json:"duration_minutes" validate:"omitempty,gte=0,lte=1440"`
	Type            string  `json:"type" validate:"omitempty,max=40"`
	Status          string  `json:"status" validate:"omitempty,oneof=activo suspendido inactivo"`
}

// @Summary      Create service
// @Tags         services
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ServiceRequest  true  "Service payload"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /lawyers/me/services [post]
func (h *Handler) CreateService(c *fiber.Ctx) error {
	var in ServiceRequest
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

	svc := models.LawyerService{
		LawyerID:        p.ID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Price:           in.Price,
		DurationMinutes: in.DurationMinutes,
		Type:            in.Type,
		Status:          models.ServiceActive,
	}
	if in.Status != "" {
		svc.Status = models.ServiceStatus(in.Status)
	}
	if err := h.db.Create(&svc).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	uid := auth.MustIdentity(c).UserID
	h.audit.Log(c.Context(), &uid, "service_create", "lawyer_service", &svc.ID, nil,
		fiber.Map{"title": svc.Title, "price": svc.Price})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": svc})
}

// loadService fetches a service the caller may edit: its owner or an admin.
func (h *Handler) loadService(c *fiber.Ctx) (*models.LawyerService, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid service id")
	}

	var svc models.LawyerService
	if err := h.db.First(&svc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}

	if auth.MustRole(c) == string(models.RoleAdmin) {
		return &svc, nil
	}
	p, err := h.mustOwnProfile(c)
	if err != nil {
		return nil, err
	}
	if svc.LawyerID != p.ID {
		return nil, fiber.ErrForbidden
	}
	return &svc, nil
}

// @Summary      Update service
// @Tags         services
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "service id (uuid)"
// @Param        payload  body  ServiceRequest  true  "Service payload"
// @Success      200  {object}  models.SuccessResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me/services/{id} [put]
func (h *Handler) UpdateService(c *fiber.Ctx) error {
	var in ServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	svc, err := h.loadService(c)
	if err != nil {
		return err
	}

	old := fiber.Map{"title": svc.Title, "price": svc.Price, "status": svc.Status}
	updates := map[string]any{
		"title":            strings.TrimSpace(in.Title),
		"description":      strings.TrimSpace(in.Description),
		"price":            in.Price,
		"duration_minutes": in.DurationMinutes,
		"type":             in.Type,
	}
	if in.Status != "" {
		updates["status"] = in.Status
	}
	if err := h.db.Model(svc).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	uid := auth.MustIdentity(c).UserID
	h.audit.Log(c.Context(), &uid, "service_update", "lawyer_service", &svc.ID, old, updates)
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"id": svc.ID}})
}

// @Summary      Delete service
// @Tags         services
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "service id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me/services/{id} [delete]
func (h *Handler) DeleteService(c *fiber.Ctx) error {
	svc, err := h.loadService(c)
	if err != nil {
		return err
	}
	if err := h.db.Delete(svc).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	uid := auth.MustIdentity(c).UserID
	h.audit.Log(c.Context(), &uid, "service_delete", "lawyer_service", &svc.ID,
		fiber.Map{"title": svc.Title}, nil)
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"deleted": true}})
}
