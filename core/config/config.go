package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App           AppConfig
	MCP           MCPConfig
	Paths         PathsConfig
	Database      DatabaseConfig
	Valkey        ValkeyConfig
	Notifications NotificationsConfig
	Email         EmailConfig
	Whatsapp      WhatsappConfig
	WorkerPool    WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	CorsAllowedOrigins []string
	Timezone           string
	BusinessName       string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver   string // sqlite, postgres or memory
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type NotificationsConfig struct {
	DeadlineSeconds      int
	BatchLimit           int
	ErrorCap             int
	PostAppointmentDelay time.Duration
	RetryBackoff         time.Duration
	RetryBackoffMax      time.Duration
	MaxAttempts          int
	DryRun               bool
	ReconcileOnRead      bool
	CronRun              string
	CronReconcile        string
}

type EmailConfig struct {
	Enabled bool
	SMTPURL string
	Timeout time.Duration
}

type WhatsappConfig struct {
	Enabled     bool
	StoreURI    string
	LogLevel    string
	CountryCode string
	DeviceName  string
}

type WorkerPoolConfig struct {
	// Size is the notification group size and the concurrent send cap.
	Size int
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: corsOrigins,
		Timezone:           getEnv("APP_TIMEZONE", "UTC"),
		BusinessName:       getEnv("APP_BUSINESS_NAME", "AZ Makeup Studio"),
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Name:     getEnv("DB_NAME", filepath.Join(baseDir, "bookings.db")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
	}

	notifyCfg := NotificationsConfig{
		DeadlineSeconds:      getEnvInt("NOTIFY_DEADLINE_SECONDS", 50),
		BatchLimit:           getEnvInt("NOTIFY_BATCH_LIMIT", 0),
		ErrorCap:             getEnvInt("NOTIFY_ERROR_CAP", 20),
		PostAppointmentDelay: getEnvDuration("NOTIFY_POST_APPOINTMENT_DELAY", 24*time.Hour),
		RetryBackoff:         getEnvDuration("NOTIFY_RETRY_BACKOFF", 0),
		RetryBackoffMax:      getEnvDuration("NOTIFY_RETRY_BACKOFF_MAX", 0),
		MaxAttempts:          getEnvInt("NOTIFY_MAX_ATTEMPTS", 0),
		DryRun:               getEnvBool("NOTIFY_DRY_RUN", false),
		ReconcileOnRead:      getEnvBool("NOTIFY_RECONCILE_ON_READ", true),
		CronRun:              getEnv("NOTIFY_CRON_RUN", "@every 1h"),
		CronReconcile:        getEnv("NOTIFY_CRON_RECONCILE", "@every 6h"),
	}

	emailURL := getEnv("EMAIL_SMTP_URL", "")
	emailCfg := EmailConfig{
		Enabled: getEnvBool("EMAIL_ENABLED", emailURL != ""),
		SMTPURL: emailURL,
		Timeout: getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
	}

	waCfg := WhatsappConfig{
		Enabled:     getEnvBool("WHATSAPP_ENABLED", false),
		StoreURI:    getEnv("WHATSAPP_DB_URI", fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(baseDir, "whatsapp.db"))),
		LogLevel:    getEnv("WHATSAPP_LOG_LEVEL", "ERROR"),
		CountryCode: getEnv("WHATSAPP_COUNTRY_CODE", ""),
		DeviceName:  getEnv("WHATSAPP_DEVICE_NAME", "AZ Bookings"),
	}

	cfg := &Config{
		App:      appCfg,
		MCP:      MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Paths:    PathsConfig{Storages: baseDir},
		Database: dbCfg,
		Valkey: ValkeyConfig{
			Enabled:   getEnvBool("VALKEY_ENABLED", false),
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azbookings:"),
		},
		Notifications: notifyCfg,
		Email:         emailCfg,
		Whatsapp:      waCfg,
		WorkerPool:    WorkerPoolConfig{Size: getEnvInt("NOTIFY_GROUP_SIZE", 5)},
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	Global = cfg
	return cfg, nil
}

// Location resolves App.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// Deadline returns the processing budget of one batch run.
func (c NotificationsConfig) Deadline() time.Duration {
	if c.DeadlineSeconds <= 0 {
		return 50 * time.Second
	}
	return time.Duration(c.DeadlineSeconds) * time.Second
}
