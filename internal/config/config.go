// Package config loads runtime settings from the environment. A .env file is
// read first for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration
type Config struct {
	Port              string
	Environment       string
	UseMemoryStore    bool
	DisableWebhookSig bool

	Database DatabaseConfig
	Twilio   TwilioConfig
	FollowUp FollowUpConfig
	AMQP     AMQPConfig
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	User                   string
	Password               string
	Name                   string
	Host                   string
	Port                   int
	InstanceConnectionName string // Cloud SQL, connects over /cloudsql socket
}

// TwilioConfig holds WhatsApp delivery credentials
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // Format: "whatsapp:+14155238886"
}

// Configured reports whether every credential is present
func (t TwilioConfig) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.WhatsAppFrom != ""
}

// FollowUpConfig tunes the scheduler loop
type FollowUpConfig struct {
	TickInterval    time.Duration
	DispatchTimeout time.Duration
	Workers         int
	ClaimLease      time.Duration
	ConfirmationTTL time.Duration
}

// AMQPConfig enables the RabbitMQ event transport when URL is set
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// Enabled reports whether an AMQP broker is configured
func (a AMQPConfig) Enabled() bool {
	return a.URL != ""
}

// Load reads .env files (if any) and the environment
func Load() *Config {
	// Cloud Run injects INSTANCE_CONNECTION_NAME; locally try .env files
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			if err := godotenv.Load("environments/.env.development"); err != nil {
				log.Println("⚠️  No .env file found - using environment variables")
			}
		}
	}

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		UseMemoryStore:    getEnvBool("USE_MEMORY_STORE", false),
		DisableWebhookSig: getEnvBool("DISABLE_WEBHOOK_VALIDATION", false),
		Database: DatabaseConfig{
			User:                   getEnv("DB_USER", "postgres"),
			Password:               os.Getenv("DB_PASS"),
			Name:                   getEnv("DB_NAME", "followups"),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnvInt("DB_PORT", 5432),
			InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		},
		Twilio: TwilioConfig{
			AccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
		},
		FollowUp: FollowUpConfig{
			TickInterval:    getEnvDuration("FOLLOWUP_TICK_INTERVAL", 30*time.Second),
			DispatchTimeout: getEnvDuration("FOLLOWUP_DISPATCH_TIMEOUT", 15*time.Second),
			Workers:         getEnvInt("FOLLOWUP_WORKERS", 8),
			ClaimLease:      getEnvDuration("FOLLOWUP_CLAIM_LEASE", 5*time.Minute),
			ConfirmationTTL: getEnvDuration("ARM_CONFIRMATION_TTL", 5*time.Minute),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "chat.events"),
			Queue:    getEnv("AMQP_QUEUE", "followups.inbound"),
		},
	}
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
		log.Printf("⚠️  Ignoring invalid %s=%q", key, v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("⚠️  Ignoring invalid %s=%q", key, v)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("⚠️  Ignoring invalid %s=%q", key, v)
	}
	return fallback
}
