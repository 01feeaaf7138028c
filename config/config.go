package config

import (
	"log"
	"os"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Admin auth
	AdminTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Server
	HTTPAddr string

	// Script source paths (SCRIPT_PATH, CSV_PATH); cmd/barlang takes its
	// paths from its --script and --csv flags instead
	ScriptPath string
	CSVPath    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		AdminTOTPSecret: mustEnv("ADMIN_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/barlang.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ScriptPath: getEnv("SCRIPT_PATH", ""),
		CSVPath:    getEnv("CSV_PATH", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
