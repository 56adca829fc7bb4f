package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Ananth-NQI/convo-followups/database"
	"github.com/Ananth-NQI/convo-followups/internal/config"
	"github.com/Ananth-NQI/convo-followups/internal/events"
	"github.com/Ananth-NQI/convo-followups/internal/handlers"
	"github.com/Ananth-NQI/convo-followups/internal/jobs"
	"github.com/Ananth-NQI/convo-followups/internal/routes"
	"github.com/Ananth-NQI/convo-followups/internal/services"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Initialize storage
	var store storage.Store
	storageType := "PostgreSQL Database"
	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
		storageType = "In-Memory"
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect database:", err)
		}

		log.Println("🔄 Running database migrations...")
		if err := database.Migrate(db); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(db)
	}

	// Delivery channel
	var dispatcher services.Dispatcher = services.LogDispatcher{}
	if cfg.Twilio.Configured() {
		twilioService, err := services.NewTwilioService(cfg.Twilio, store)
		if err != nil {
			log.Fatal("Failed to initialize Twilio service:", err)
		}
		dispatcher = twilioService
		log.Println("✅ Twilio service initialized")
	} else {
		log.Println("⚠️  Twilio credentials not found - follow-ups will only be logged")
	}

	// Services
	catalog := services.NewCatalogService(store)
	tracker := services.NewAnchorTracker(store)
	controller := services.NewController(store, cfg.FollowUp.ConfirmationTTL)
	assist := services.NewAssistService(store)

	followUpJob := jobs.NewFollowUpJob(store, dispatcher, cfg.FollowUp)

	// Optional event bus
	var amqpConn *amqp091.Connection
	var subscriber *events.Subscriber
	if cfg.AMQP.Enabled() {
		amqpConn, subscriber = startEventBus(cfg.AMQP, tracker, followUpJob)
	}

	if err := followUpJob.Start(); err != nil {
		log.Fatal("Failed to start follow-up job:", err)
	}

	app := routes.NewApp("Conversation Follow-ups v" + version)
	routes.SetupRoutes(app, routes.Handlers{
		Health:     handlers.NewHealthHandler(version, storageType),
		Categories: handlers.NewCategoryHandler(catalog),
		FollowUps:  handlers.NewFollowUpHandler(controller, assist, store),
		Events:     handlers.NewEventHandler(tracker),
		WhatsApp:   handlers.NewWhatsAppHandler(tracker),
	}, cfg)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping follow-up job...")
		followUpJob.Stop()
		if subscriber != nil {
			_ = subscriber.Close()
		}
		if amqpConn != nil {
			_ = amqpConn.Close()
		}
		log.Println("⏹️  Shutting down server...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Println("========================================")
	log.Printf("🚀 Follow-up service starting on port %s", cfg.Port)
	log.Printf("📊 Storage: %s", storageType)
	log.Printf("🌍 Environment: %s", cfg.Environment)
	log.Printf("⏱️  Tick every %s, %d workers", cfg.FollowUp.TickInterval, cfg.FollowUp.Workers)
	log.Printf("📨 Event bus: %v", cfg.AMQP.Enabled())
	log.Println("========================================")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

// startEventBus consumes inbound chat events and publishes dispatch results.
// A broker that cannot be reached is logged; HTTP ingestion still works.
func startEventBus(cfg config.AMQPConfig, tracker *services.AnchorTracker, job *jobs.FollowUpJob) (*amqp091.Connection, *events.Subscriber) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("component", "events"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := events.DialWithRetry(ctx, events.ConnectionOptions{
		URL:           cfg.URL,
		RetryAttempts: 5,
		Delay:         2 * time.Second,
		Logger:        logger,
	})
	if err != nil {
		log.Printf("⚠️  Event bus unavailable: %v", err)
		return nil, nil
	}

	publisher, err := events.NewPublisher(conn, cfg.Exchange, logger)
	if err != nil {
		log.Printf("⚠️  Result publisher disabled: %v", err)
	} else {
		job.SetPublisher(publisher)
	}

	subscriber, err := events.NewSubscriber(conn, cfg.Exchange, logger, 64, 4)
	if err != nil {
		log.Printf("⚠️  Inbound consumer disabled: %v", err)
		return conn, nil
	}
	subscriber.RegisterHandler(events.KeyChatInbound, events.ChatInboundHandler(tracker))
	if err := subscriber.Start(cfg.Queue); err != nil {
		log.Printf("⚠️  Inbound consumer disabled: %v", err)
		_ = subscriber.Close()
		return conn, nil
	}
	log.Printf("✅ Consuming %s from %s", events.KeyChatInbound, cfg.Queue)
	return conn, subscriber
}
