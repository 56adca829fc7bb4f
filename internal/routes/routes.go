package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Ananth-NQI/convo-followups/internal/config"
	"github.com/Ananth-NQI/convo-followups/internal/handlers"
	"github.com/Ananth-NQI/convo-followups/internal/middleware"
)

// Handlers groups everything SetupRoutes mounts
type Handlers struct {
	Health     *handlers.HealthHandler
	Categories *handlers.CategoryHandler
	FollowUps  *handlers.FollowUpHandler
	Events     *handlers.EventHandler
	WhatsApp   *handlers.WhatsAppHandler
}

// NewApp creates the fiber app with the standard middleware stack
func NewApp(name string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: name,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, cfg *config.Config) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Conversation follow-up service",
			"version": h.Health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"api":     "/api",
				"webhook": "/webhook/whatsapp",
			},
		})
	})
	app.Get("/health", h.Health.Check)

	api := app.Group("/api")

	// Categories and templates
	categories := api.Group("/categories")
	categories.Post("/", h.Categories.CreateCategory)
	categories.Get("/", h.Categories.ListCategories)
	categories.Get("/:id", h.Categories.GetCategory)
	categories.Delete("/:id", h.Categories.DeleteCategory)
	categories.Post("/:id/templates", h.Categories.CreateTemplate)
	categories.Get("/:id/templates", h.Categories.ListTemplates)

	templates := api.Group("/templates")
	templates.Put("/:id", h.Categories.UpdateTemplate)
	templates.Delete("/:id", h.Categories.DeleteTemplate)

	// Per-conversation follow-up controls
	conversations := api.Group("/conversations/:id")
	conversations.Post("/followup", h.FollowUps.Attach)
	conversations.Get("/followup", h.FollowUps.Status)
	conversations.Delete("/followup", h.FollowUps.Detach)
	conversations.Post("/followup/confirm", h.FollowUps.RequestArm)
	conversations.Post("/followup/arm", h.FollowUps.Arm)
	conversations.Post("/followup/disarm", h.FollowUps.Disarm)
	conversations.Get("/followup/templates", h.FollowUps.UnlockedTemplates)
	conversations.Post("/followup/templates/:templateID/insert", h.FollowUps.InsertTemplate)
	conversations.Get("/dispatches", h.FollowUps.Dispatches)

	// Message events from the chat platform
	api.Post("/events/inbound", h.Events.Inbound)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if cfg.IsDevelopment() || cfg.DisableWebhookSig {
		webhooks.Post("/whatsapp", h.WhatsApp.HandleWebhook)
		log.Println("⚠️  WhatsApp webhook validation DISABLED")
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(cfg.Twilio.AuthToken), h.WhatsApp.HandleWebhook)
	}
}
