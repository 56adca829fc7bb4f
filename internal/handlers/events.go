package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/services"
)

// EventHandler accepts message events pushed over HTTP by the chat platform
type EventHandler struct {
	tracker *services.AnchorTracker
}

// NewEventHandler creates a new event handler
func NewEventHandler(tracker *services.AnchorTracker) *EventHandler {
	return &EventHandler{tracker: tracker}
}

// Inbound applies one message event
func (h *EventHandler) Inbound(c *fiber.Ctx) error {
	var ev models.InboundEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event payload",
		})
	}

	if err := h.tracker.HandleEvent(c.UserContext(), ev); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}
