package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/convo-followups/internal/services"
)

// WhatsAppHandler handles Twilio WhatsApp webhook requests. Every customer
// message restarts that conversation's follow-up cadence.
type WhatsAppHandler struct {
	tracker *services.AnchorTracker

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(tracker *services.AnchorTracker) *WhatsAppHandler {
	return &WhatsAppHandler{
		tracker: tracker,
		Now:     time.Now,
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid    string `form:"MessageSid"`
	AccountSid    string `form:"AccountSid"`
	From          string `form:"From"` // WhatsApp number (whatsapp:+919876543210)
	To            string `form:"To"`   // Your Twilio number
	Body          string `form:"Body"` // Message text
	NumMedia      string `form:"NumMedia"`
	MessageStatus string `form:"MessageStatus"` // set on delivery status callbacks
}

// IsMessage reports whether the payload is a customer message rather than a
// status callback
func (p TwilioWebhookPayload) IsMessage() bool {
	if p.From == "" || p.MessageStatus != "" {
		return false
	}
	return p.Body != "" || (p.NumMedia != "" && p.NumMedia != "0")
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	if !payload.IsMessage() {
		return c.SendStatus(fiber.StatusOK)
	}

	from := services.StripWhatsAppPrefix(payload.From)
	log.Printf("📱 WhatsApp message from %s", from)

	conversationID, err := h.tracker.HandleContactMessage(c.UserContext(), from, h.Now())
	if err != nil {
		log.Printf("Error recording inbound message from %s: %v", from, err)
		// Non-2xx makes Twilio retry the webhook.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record message",
		})
	}
	log.Printf("Inbound message recorded on conversation %s", conversationID)

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}
