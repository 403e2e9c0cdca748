package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_DefaultValues(t *testing.T) {
	t.Setenv(EnvJWTSecret, "test-secret-key")
	t.Setenv(EnvJWTExpirationHours, "")
	t.Setenv(EnvJWTIssuer, "")

	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "test-secret-key", cfg.Secret)
	assert.Equal(t, 24, cfg.ExpirationHours, "should use default expiration of 24 hours")
	assert.Equal(t, DefaultJWTIssuer, cfg.Issuer)
}

func TestNewJWTConfig_CustomExpiration(t *testing.T) {
	tests := []struct {
		name          string
		expiration    string
		expectedHours int
		wantErr       bool
	}{
		{name: "custom expiration 12 hours", expiration: "12", expectedHours: 12},
		{name: "minimum expiration 1 hour", expiration: "1", expectedHours: 1},
		{name: "zero expiration", expiration: "0", wantErr: true},
		{name: "negative expiration", expiration: "-5", wantErr: true},
		{name: "not a number", expiration: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvJWTSecret, "test-secret-key")
			t.Setenv(EnvJWTExpirationHours, tt.expiration)

			cfg, err := NewJWTConfig()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedHours, cfg.ExpirationHours)
		})
	}
}

func TestNewJWTConfig_MissingSecret(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")

	cfg, err := NewJWTConfig()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestOptionalJWTConfig(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	cfg, err := OptionalJWTConfig()
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	t.Setenv(EnvJWTSecret, "s3cret")
	t.Setenv(EnvJWTIssuer, "ops")
	cfg, err = OptionalJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Issuer)
}
