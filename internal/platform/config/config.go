package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                   string
	DatabaseURL            string
	JWTSecret              string
	Environment            string
	MigrationsDir          string
	RunMigrations          bool
	RunSeed                bool
	SeedHRUserID           string
	Timezone               string
	DocumentDir            string
	DocumentEncryptionKey  string
	CORSAllowedOrigins     []string
	EmailFrom              string
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPUseTLS             bool
	MaxBodyBytes           int64
	MaxUploadBytes         int64
	RateLimitPerMinute     int
	NotificationQueueSize  int
	MetricsEnabled         bool
	WorkdayStart           string
	WorkdayEnd             string
	WorkingDays            []string
	MinPermitDuration      time.Duration
	MaxPermitDuration      time.Duration
	RejectCommentMinLength int
	ReminderAfter          time.Duration
	ReminderSchedule       string
	BalanceResetSchedule   string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load failed", "err", err)
	}

	return Config{
		Addr:                   getEnv("APP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		Environment:            getEnv("APP_ENV", "development"),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", "migrations"),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                getEnvBool("RUN_SEED", false),
		SeedHRUserID:           getEnv("SEED_HR_USER_ID", ""),
		Timezone:               getEnv("TIMEZONE", "Local"),
		DocumentDir:            getEnv("DOCUMENT_DIR", "data/documents"),
		DocumentEncryptionKey:  getEnv("DOCUMENT_ENCRYPTION_KEY", ""),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", nil),
		EmailFrom:              getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:           getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUser:               getEnv("SMTP_USER", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:             getEnvBool("SMTP_USE_TLS", true),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		MaxUploadBytes:         int64(getEnvInt("MAX_UPLOAD_BYTES", 4*1024*1024)),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		NotificationQueueSize:  getEnvInt("NOTIFICATION_QUEUE_SIZE", 256),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		WorkdayStart:           getEnv("WORKDAY_START", "08:00"),
		WorkdayEnd:             getEnv("WORKDAY_END", "15:00"),
		WorkingDays:            getEnvList("WORKING_DAYS", []string{"mon", "tue", "wed", "thu", "fri"}),
		MinPermitDuration:      getEnvDuration("MIN_PERMIT_DURATION", 15*time.Minute),
		MaxPermitDuration:      getEnvDuration("MAX_PERMIT_DURATION", 8*time.Hour),
		RejectCommentMinLength: getEnvInt("REJECT_COMMENT_MIN_LENGTH", 10),
		ReminderAfter:          getEnvDuration("REMINDER_AFTER", 48*time.Hour),
		ReminderSchedule:       getEnv("REMINDER_SCHEDULE", "@every 1h"),
		BalanceResetSchedule:   getEnv("BALANCE_RESET_SCHEDULE", "0 0 1 * *"),
	}
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.MinPermitDuration <= 0 || c.MaxPermitDuration < c.MinPermitDuration {
		return fmt.Errorf("MIN_PERMIT_DURATION must be positive and not exceed MAX_PERMIT_DURATION")
	}
	if c.RejectCommentMinLength < 1 {
		return fmt.Errorf("REJECT_COMMENT_MIN_LENGTH must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	return nil
}
