package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores all configuration of the application, read from the
// environment at startup.
type Config struct {
	Env  string
	Port string

	// Database: either a full URL or discrete connection parameters
	DatabaseURL string
	PGHost      string
	PGPort      string
	PGUser      string
	PGPassword  string
	PGDatabase  string
	DBSSL       bool

	// Media storage
	UploadDir string

	// CORS allowlist; empty means allow every origin
	CORSAllowedOrigins []string

	// Redis (rate limiting); limiter is disabled when RedisAddr is empty
	RedisAddr       string
	RedisPassword   string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Env:  getEnv("GO_ENV", "development"),
		Port: getEnv("PORT", "4000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		PGHost:      getEnv("PGHOST", "localhost"),
		PGPort:      getEnv("PGPORT", "5432"),
		PGUser:      getEnv("PGUSER", "postgres"),
		PGPassword:  getEnv("PGPASSWORD", "postgres"),
		PGDatabase:  getEnv("PGDATABASE", "jan_setu"),
		DBSSL:       getEnvAsBool("DB_SSL", false),

		UploadDir: getEnv("UPLOAD_DIR", "uploads"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr:       getEnv("REDIS_ADDRESS", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 1000),
		RateLimitWindow: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute,
	}
}

// DSN returns the Postgres connection string. DATABASE_URL wins when set;
// otherwise the string is assembled from the discrete PG* parameters.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	sslMode := "disable"
	if c.DBSSL {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.PGHost, c.PGUser, c.PGPassword, c.PGDatabase, c.PGPort, sslMode)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
