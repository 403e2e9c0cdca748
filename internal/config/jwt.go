package config

import (
	"fmt"
	"os"
	"strconv"
)

// JWT environment variables
const (
	EnvJWTSecret          = "JWT_SECRET"
	EnvJWTExpirationHours = "JWT_EXPIRATION_HOURS"
	EnvJWTIssuer          = "JWT_ISSUER"

	DefaultJWTIssuer = "bulk-analysis"
)

// JWTConfig holds configuration for minting backend bearer tokens and
// verifying control API callers.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
	Issuer          string
}

// NewJWTConfig creates a new JWT configuration from environment variables.
// It reads JWT_SECRET (required), JWT_EXPIRATION_HOURS (default: 24) and JWT_ISSUER.
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv(EnvJWTSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s is required but not set", EnvJWTSecret)
	}

	expirationStr := os.Getenv(EnvJWTExpirationHours)
	if expirationStr == "" {
		expirationStr = "24" // default
	}

	expirationHours, err := strconv.Atoi(expirationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", EnvJWTExpirationHours, err)
	}

	issuer := os.Getenv(EnvJWTIssuer)
	if issuer == "" {
		issuer = DefaultJWTIssuer
	}

	config := &JWTConfig{
		Secret:          secret,
		ExpirationHours: expirationHours,
		Issuer:          issuer,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// OptionalJWTConfig is NewJWTConfig for callers where signing is opt-in.
// It returns nil, nil when JWT_SECRET is unset.
func OptionalJWTConfig() (*JWTConfig, error) {
	if os.Getenv(EnvJWTSecret) == "" {
		return nil, nil
	}
	return NewJWTConfig()
}

func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("%s cannot be empty", EnvJWTSecret)
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("%s must be at least 1 hour, got: %d", EnvJWTExpirationHours, c.ExpirationHours)
	}
	return nil
}
