package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SigningConfig holds the secret and lifetimes for signed file URLs and API
// bearer tokens.
type SigningConfig struct {
	Secret          string
	URLTTLMinutes   int
	ExpirationHours int
}

// NewSigningConfig creates a signing configuration from environment variables.
// It reads JWT_SECRET (required), FILE_URL_TTL_MINUTES (default: 15) and
// JWT_EXPIRATION_HOURS (default: 24).
func NewSigningConfig() (*SigningConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}

	ttl, err := intFromEnv("FILE_URL_TTL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	expirationHours, err := intFromEnv("JWT_EXPIRATION_HOURS", 24)
	if err != nil {
		return nil, err
	}

	config := &SigningConfig{
		Secret:          secret,
		URLTTLMinutes:   ttl,
		ExpirationHours: expirationHours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// URLTTL returns how long signed file URLs stay valid.
func (c *SigningConfig) URLTTL() time.Duration {
	return time.Duration(c.URLTTLMinutes) * time.Minute
}

// normalize validates the configuration.
func (c *SigningConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.URLTTLMinutes < 1 {
		return fmt.Errorf("FILE_URL_TTL_MINUTES must be at least 1 minute, got: %d", c.URLTTLMinutes)
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return v, nil
}
