package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultDBPath        = "./dev.db"
	defaultPort          = "8080"
	defaultEnv           = "development"
	defaultMigrationsDir = "migrations"
	defaultKafkaTopic    = "sow.pm-hours-removal"
	defaultLogLevel      = "info"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env            string
	SessionSecret  string
	DBPath         string
	Port           string
	RulesPath      string
	MigrationsDir  string
	ApproverEmails []string
	KafkaBrokers   []string
	KafkaTopic     string
	LogLevel       string

	// Warnings lists missing settings that have no safe default. They are
	// reported once a logger exists.
	Warnings []string
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = godotenv.Load(".env")

	cfg := Config{
		Env:            getenv("APP_ENV", defaultEnv),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		DBPath:         getenv("DB_PATH", defaultDBPath),
		Port:           getenv("PORT", defaultPort),
		RulesPath:      os.Getenv("RULES_PATH"),
		MigrationsDir:  getenv("MIGRATIONS_DIR", defaultMigrationsDir),
		ApproverEmails: splitList(os.Getenv("APPROVER_EMAILS")),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getenv("KAFKA_TOPIC", defaultKafkaTopic),
		LogLevel:       getenv("LOG_LEVEL", defaultLogLevel),
	}

	if cfg.SessionSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "SESSION_SECRET is not set")
	}
	if len(cfg.ApproverEmails) == 0 {
		cfg.Warnings = append(cfg.Warnings, "APPROVER_EMAILS is not set; nobody can decide pm hours removal requests")
	}

	return cfg
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "local":
		return true
	}
	return false
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
