package handlers

import "github.com/gofiber/fiber/v2"

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	Store   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, store string) *HealthHandler {
	return &HealthHandler{
		Version: version,
		Store:   store,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "Conversation Follow-ups",
		"version": h.Version,
		"store":   h.Store,
	})
}
