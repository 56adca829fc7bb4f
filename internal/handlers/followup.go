package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/services"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// FollowUpHandler handles the per-conversation follow-up controls
type FollowUpHandler struct {
	controller *services.Controller
	assist     *services.AssistService
	store      storage.Store
}

// NewFollowUpHandler creates a new follow-up handler
func NewFollowUpHandler(controller *services.Controller, assist *services.AssistService, store storage.Store) *FollowUpHandler {
	return &FollowUpHandler{
		controller: controller,
		assist:     assist,
		store:      store,
	}
}

// AttachRequest is the body of an attach call
type AttachRequest struct {
	CategoryID uint `json:"category_id"`
}

// ArmRequest carries the token returned by the confirm call
type ArmRequest struct {
	Token string `json:"token"`
}

// Attach links the conversation to a category
func (h *FollowUpHandler) Attach(c *fiber.Ctx) error {
	var req AttachRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.CategoryID == 0 {
		return respondError(c, &followup.ValidationError{Field: "category_id", Reason: "is required"})
	}

	attachment, err := h.controller.Attach(c.UserContext(), c.Params("id"), req.CategoryID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"attachment": attachment,
		"state":      attachment.State(),
	})
}

// Status shows the attachment and when each template unlocks
func (h *FollowUpHandler) Status(c *fiber.Ctx) error {
	status, err := h.controller.Status(c.UserContext(), c.Params("id"))
	if followup.IsState(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// Detach removes the follow-up from the conversation
func (h *FollowUpHandler) Detach(c *fiber.Ctx) error {
	if err := h.controller.Detach(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RequestArm issues the confirmation token needed to arm
func (h *FollowUpHandler) RequestArm(c *fiber.Ctx) error {
	conf, err := h.controller.RequestArm(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      conf.Token,
		"expires_at": conf.ExpiresAt,
		"message":    "Confirm to start sending follow-ups automatically",
	})
}

// Arm turns automatic sending on
func (h *FollowUpHandler) Arm(c *fiber.Ctx) error {
	var req ArmRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	attachment, err := h.controller.Arm(c.UserContext(), c.Params("id"), req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"attachment": attachment,
		"state":      attachment.State(),
	})
}

// Disarm turns automatic sending off
func (h *FollowUpHandler) Disarm(c *fiber.Ctx) error {
	attachment, err := h.controller.Disarm(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"attachment": attachment,
		"state":      attachment.State(),
	})
}

// UnlockedTemplates lists the templates an agent may insert now
func (h *FollowUpHandler) UnlockedTemplates(c *fiber.Ctx) error {
	templates, err := h.assist.UnlockedTemplates(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

// InsertTemplate returns a template's text for the compose box
func (h *FollowUpHandler) InsertTemplate(c *fiber.Ctx) error {
	templateID, err := paramID(c, "templateID")
	if err != nil {
		return respondError(c, err)
	}

	text, err := h.assist.InsertTemplate(c.UserContext(), c.Params("id"), templateID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"template_id": templateID,
		"text":        text,
	})
}

// Dispatches lists the conversation's ledger for audit
func (h *FollowUpHandler) Dispatches(c *fiber.Ctx) error {
	records, err := h.store.ListDispatches(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"dispatches": records,
		"count":      len(records),
	})
}
