package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	BatchSchedule string // "daily" or "weekly"
	TimeZone      string

	// Database configuration
	DatabasePath string

	// Azure Storage configuration (session archive, optional)
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Analysis configuration
	AnalysisWorkers        int
	AnalysisTimeoutSeconds int
	ProbeTimeoutSeconds    int
	MentionContextRadius   int
	StatsWindowDays        int

	// Report digests after recalculation
	EnableVisibilityReports bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Debug:         getBoolEnv("DEBUG", false),
		BatchSchedule: getEnv("BATCH_SCHEDULE", "daily"),
		TimeZone:      getEnv("TIMEZONE", "UTC"),

		DatabasePath: getEnv("DATABASE_PATH", "visibility.db"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "analysis-sessions"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		AnalysisWorkers:        getIntEnv("ANALYSIS_WORKERS", 8),
		AnalysisTimeoutSeconds: getIntEnv("ANALYSIS_TIMEOUT_SECONDS", 120),
		ProbeTimeoutSeconds:    getIntEnv("PROBE_TIMEOUT_SECONDS", 15),
		MentionContextRadius:   getIntEnv("MENTION_CONTEXT_RADIUS", 100),
		StatsWindowDays:        getIntEnv("STATS_WINDOW_DAYS", 30),

		EnableVisibilityReports: getBoolEnv("ENABLE_VISIBILITY_REPORTS", true),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSchedule != "daily" && c.BatchSchedule != "weekly" {
		return fmt.Errorf("BATCH_SCHEDULE must be 'daily' or 'weekly'")
	}

	if c.TeamsWebhookURL == "" && c.NotificationEmail == "" {
		return fmt.Errorf("at least one notification method must be configured (TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL)")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.AnalysisWorkers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be at least 1")
	}

	if c.AnalysisTimeoutSeconds < 1 {
		return fmt.Errorf("ANALYSIS_TIMEOUT_SECONDS must be at least 1")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
