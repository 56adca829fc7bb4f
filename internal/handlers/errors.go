package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
)

// respondError maps service errors onto HTTP statuses
func respondError(c *fiber.Ctx, err error) error {
	var verr *followup.ValidationError
	var serr *followup.StateError

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.As(err, &serr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": serr.Error(),
		})
	case errors.Is(err, followup.ErrConfirmationRequired):
		return c.Status(fiber.StatusPreconditionRequired).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, followup.ErrTemplateLocked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, followup.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	log.Printf("Error handling %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

// paramID reads a positive numeric route parameter
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, &followup.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return uint(id), nil
}
