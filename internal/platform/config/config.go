package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Domain tunables (quota
// sizes, freshness windows) live in internal/verification/config.
type Server struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	JWTSigningKey   string
	ProviderBaseURL string
	WebhookSecret   string
	KafkaBrokers    []string
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean. Empty DATABASE_URL / REDIS_URL / KAFKA_BROKERS select the in-memory
// fallbacks, which is the single-node development mode.
func FromEnv() Server {
	addr := os.Getenv("TRUSTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	providerBaseURL := os.Getenv("PROFILE_PROVIDER_URL")
	if providerBaseURL == "" {
		providerBaseURL = "http://localhost:9090"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSigningKey:   jwtSigningKey,
		ProviderBaseURL: providerBaseURL,
		WebhookSecret:   os.Getenv("CHECKOUT_WEBHOOK_SECRET"),
		KafkaBrokers:    brokers,
		ShutdownTimeout: 10 * time.Second,
	}
}
