package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Kafka     KafkaConfig
	RabbitMQ  RabbitMQConfig
	SMTP      SMTPConfig
	Studio    StudioConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	PublicURL      string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type KafkaConfig struct {
	Brokers  []string
	CRMTopic string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
	DLX      string
	DLQ      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// StudioConfig holds the business rules that depend on the studio itself.
type StudioConfig struct {
	Timezone        string
	OpeningHour     int
	ClosingHour     int
	SlotInterval    int // in minutes
	BookingLockTTL  int // in seconds
	CheckInSecret   string
	LowStockTrigger int
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
}

type RateLimitConfig struct {
	Requests int
	Window   int // in seconds
}

func Load() *Config {
	// .env is optional; real deployments inject the environment directly
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("PUBLIC_URL", "http://localhost:3000")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("STRIPE_CURRENCY", "usd")
	viper.SetDefault("KAFKA_CRM_TOPIC", "crm.deals")
	viper.SetDefault("RABBITMQ_EXCHANGE", "studio.events")
	viper.SetDefault("RABBITMQ_QUEUE", "studio.email")
	viper.SetDefault("RABBITMQ_DLX", "studio.email.dlx")
	viper.SetDefault("RABBITMQ_DLQ", "studio.email.dlq")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_FROM", "hello@tcreativestudio.com")
	viper.SetDefault("STUDIO_TIMEZONE", "America/Los_Angeles")
	viper.SetDefault("STUDIO_OPENING_HOUR", 10)
	viper.SetDefault("STUDIO_CLOSING_HOUR", 19)
	viper.SetDefault("STUDIO_SLOT_INTERVAL", 30)
	viper.SetDefault("STUDIO_BOOKING_LOCK_TTL", 10)
	viper.SetDefault("STUDIO_LOW_STOCK", 3)
	viper.SetDefault("OTEL_SERVICE_NAME", "studio-api")
	viper.SetDefault("RATE_LIMIT_REQUESTS", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW", 60)

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			PublicURL:      strings.TrimRight(viper.GetString("PUBLIC_URL"), "/"),
			AllowedOrigins: splitCSV(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Stripe: StripeConfig{
			SecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:      viper.GetString("STRIPE_CURRENCY"),
			SuccessURL:    viper.GetString("STRIPE_SUCCESS_URL"),
			CancelURL:     viper.GetString("STRIPE_CANCEL_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitCSV(viper.GetString("KAFKA_BROKERS")),
			CRMTopic: viper.GetString("KAFKA_CRM_TOPIC"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      viper.GetString("RABBITMQ_URL"),
			Exchange: viper.GetString("RABBITMQ_EXCHANGE"),
			Queue:    viper.GetString("RABBITMQ_QUEUE"),
			DLX:      viper.GetString("RABBITMQ_DLX"),
			DLQ:      viper.GetString("RABBITMQ_DLQ"),
		},
		SMTP: SMTPConfig{
			Host:     viper.GetString("SMTP_HOST"),
			Port:     viper.GetInt("SMTP_PORT"),
			User:     viper.GetString("SMTP_USER"),
			Password: viper.GetString("SMTP_PASSWORD"),
			From:     viper.GetString("SMTP_FROM"),
		},
		Studio: StudioConfig{
			Timezone:        viper.GetString("STUDIO_TIMEZONE"),
			OpeningHour:     viper.GetInt("STUDIO_OPENING_HOUR"),
			ClosingHour:     viper.GetInt("STUDIO_CLOSING_HOUR"),
			SlotInterval:    viper.GetInt("STUDIO_SLOT_INTERVAL"),
			BookingLockTTL:  viper.GetInt("STUDIO_BOOKING_LOCK_TTL"),
			CheckInSecret:   viper.GetString("STUDIO_CHECKIN_SECRET"),
			LowStockTrigger: viper.GetInt("STUDIO_LOW_STOCK"),
		},
		Tracing: TracingConfig{
			Endpoint:    viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: viper.GetString("OTEL_SERVICE_NAME"),
		},
		RateLimit: RateLimitConfig{
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetInt("RATE_LIMIT_WINDOW"),
		},
	}
}

// DSN builds the Postgres connection string for the pgx stdlib driver
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.Schema)
}

// Addr returns the host:port pair for the Redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Location resolves the studio time zone, falling back to UTC
func (c StudioConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c StudioConfig) LockTTL() time.Duration {
	return time.Duration(c.BookingLockTTL) * time.Second
}

func (c RateLimitConfig) WindowDuration() time.Duration {
	return time.Duration(c.Window) * time.Second
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
