package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/config"
)

func setupTestJWTService(_ *testing.T, expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: expirationHours,
		Issuer:          "bulk-analysis",
	})
}

func TestJWTService_GenerateToken(t *testing.T) {
	service := setupTestJWTService(t, 24)

	token, err := service.GenerateToken("user-1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3, "JWT should have 3 parts separated by dots")

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "bulk-analysis", claims.Issuer)
}

func TestJWTService_GenerateToken_RequiresUser(t *testing.T) {
	service := setupTestJWTService(t, 24)
	_, err := service.GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_Errors(t *testing.T) {
	service := setupTestJWTService(t, 1)
	valid, err := service.GenerateToken("user-1")
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{Secret: "another-secret", ExpirationHours: 1, Issuer: "bulk-analysis"})
	foreign, err := other.GenerateToken("user-1")
	require.NoError(t, err)

	wrongIssuer := NewJWTService(&config.JWTConfig{Secret: "test-secret-key-for-jwt-signing-minimum-32-bytes", ExpirationHours: 1, Issuer: "someone-else"})
	misissued, err := wrongIssuer.GenerateToken("user-1")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{name: "empty", token: "", wantMsg: "empty"},
		{name: "malformed", token: "not.a.jwt", wantMsg: "malformed"},
		{name: "wrong secret", token: foreign, wantMsg: "signature"},
		{name: "wrong issuer", token: misissued, wantMsg: "failed to parse token"},
		{name: "alg none", token: noneToken, wantMsg: "token"},
		{name: "tampered", token: valid[:len(valid)-2] + "xx", wantMsg: "signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := setupTestJWTService(t, 1)
	service.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	token, err := service.GenerateToken("user-1")
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTService_TokenSource(t *testing.T) {
	service := setupTestJWTService(t, 24)
	next := service.TokenSource("user-7")

	token, err := next()
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.GetUserID())
}
