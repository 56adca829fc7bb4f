package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/services"
)

// CategoryHandler handles category and template requests
type CategoryHandler struct {
	catalog *services.CatalogService
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(catalog *services.CatalogService) *CategoryHandler {
	return &CategoryHandler{
		catalog: catalog,
	}
}

// CreateCategory handles creating a new category
func (h *CategoryHandler) CreateCategory(c *fiber.Ctx) error {
	var in models.CategoryInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	category, err := h.catalog.CreateCategory(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Category created successfully",
		"category": category,
	})
}

// GetCategory retrieves a single category with its templates
func (h *CategoryHandler) GetCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	category, err := h.catalog.GetCategory(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	templates, err := h.catalog.ListTemplates(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"category":  category,
		"templates": templates,
	})
}

// ListCategories lists categories, filtered by ?owner_id= when given
func (h *CategoryHandler) ListCategories(c *fiber.Ctx) error {
	categories, err := h.catalog.ListCategories(c.UserContext(), c.Query("owner_id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"categories": categories,
		"count":      len(categories),
	})
}

// DeleteCategory removes a category, its templates and attachments
func (h *CategoryHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.catalog.DeleteCategory(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateTemplate adds a template to a category
func (h *CategoryHandler) CreateTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in models.TemplateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	template, err := h.catalog.CreateTemplate(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Template created successfully",
		"template": template,
	})
}

// ListTemplates lists a category's templates in send order
func (h *CategoryHandler) ListTemplates(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	templates, err := h.catalog.ListTemplates(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

// UpdateTemplate rewrites a template
func (h *CategoryHandler) UpdateTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in models.TemplateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	template, err := h.catalog.UpdateTemplate(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Template updated successfully",
		"template": template,
	})
}

// DeleteTemplate removes a template
func (h *CategoryHandler) DeleteTemplate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.catalog.DeleteTemplate(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
