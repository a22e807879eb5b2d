package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr           string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	JWTSigningKey  string
	AdminTokenHash string
	StatsCacheTTL  time.Duration
	VerifyTimeout  time.Duration
	AppendRetries  int
	AutoMigrate    bool
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:           getEnv("MEDLEDGER_ADDR", ":8080"),
		Environment:    getEnv("MEDLEDGER_ENV", "development"),
		DatabaseURL:    os.Getenv("MEDLEDGER_DATABASE_URL"),
		RedisURL:       os.Getenv("MEDLEDGER_REDIS_URL"),
		AdminTokenHash: os.Getenv("MEDLEDGER_ADMIN_TOKEN_HASH"),
		StatsCacheTTL:  getDuration("MEDLEDGER_STATS_CACHE_TTL", 15*time.Second),
		VerifyTimeout:  getDuration("MEDLEDGER_VERIFY_TIMEOUT", 5*time.Minute),
		AppendRetries:  getInt("MEDLEDGER_APPEND_RETRIES", 3),
		AutoMigrate:    getEnv("MEDLEDGER_AUTO_MIGRATE", "false") == "true",
	}

	cfg.JWTSigningKey = os.Getenv("MEDLEDGER_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
