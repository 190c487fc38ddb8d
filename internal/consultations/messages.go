package consultations

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

// otherParty returns the user on the opposite side of the consultation from
// the caller, nil when that side has no account (public inquiry or deleted
// lawyer).
func (h *Handler) otherParty(cs *models.Consultation, callerID uuid.UUID) (*uuid.UUID, error) {
	if cs.ClientID != nil && *cs.ClientID == callerID {
		return h.lawyerUserID(cs)
	}
	return cs.ClientID, nil
}

// @Summary      List messages
// @Description  Reading marks all unread messages addressed to the caller as read.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "consultation id (uuid)"
// @Success      200  {object}  models.SuccessResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /consultations/{id}/messages [get]
func (h *Handler) ListMessages(c *fiber.Ctx) error {
	cs, err := h.access(c)
	if err != nil {
		return err
	}
	callerID := auth.MustIdentity(c).UserID

	// Side effect of the read: everything addressed to the caller is now read.
	if err := h.db.Model(&models.Message{}).
		Where("consultation_id = ? AND recipient_id = ? AND read = ?", cs.ID, callerID, false).
		Update("read", true).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var msgs []models.Message
	if err := h.db.
		Where("consultation_id = ?", cs.ID).
		Order("created_at ASC").
		Find(&msgs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	return c.JSON(fiber.Map{"success": true, "data": msgs})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

// @Summary      Post message
// @Description  Either party may write; the recipient is always the other party.
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "consultation id (uuid)"
// @Param        payload  body  PostMessageRequest  true  "Message content"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ErrorResponse  "empty content"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "no recipient account"
// @Router       /consultations/{id}/messages [post]
func (h *Handler) PostMessage(c *fiber.Ctx) error {
	if auth.MustRole(c) == string(models.RoleAdmin) {
		// Admins read conversations but do not take part in them.
		return fiber.ErrForbidden
	}

	cs, err := h.access(c)
	if err != nil {
		return err
	}

	var in PostMessageRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return fiber.NewError(fiber.StatusBadRequest, "content is required")
	}

	callerID := auth.MustIdentity(c).UserID
	recipient, err := h.otherParty(cs, callerID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if recipient == nil {
		return fiber.NewError(fiber.StatusConflict, "the other party has no account to receive messages")
	}

	msg := models.Message{
		ConsultationID: cs.ID,
		SenderID:       callerID,
		RecipientID:    *recipient,
		Content:        content,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.audit.Notify(c.Context(), *recipient, "Nuevo mensaje",
		"Tienes un nuevo mensaje en la consulta: "+cs.Title, "message", &cs.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": msg})
}
