package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClaims string

func (c staticClaims) GetUserID() string { return string(c) }

// mapValidator accepts the tokens in its map.
type mapValidator map[string]string

func (v mapValidator) ValidateToken(tokenString string) (UserIDGetter, error) {
	userID, ok := v[tokenString]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return staticClaims(userID), nil
}

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := GetUserID(r)
		if err != nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(userID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(mapValidator{"good": "user-1"}, "/health")(echoUser(t))

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", method: "GET", path: "/projects/p1/domains", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "case-insensitive scheme", method: "GET", path: "/x", header: "bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "missing header", method: "GET", path: "/x", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", method: "GET", path: "/x", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "extra parts", method: "GET", path: "/x", header: "Bearer good extra", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", method: "GET", path: "/x", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "public path", method: "GET", path: "/health", wantStatus: http.StatusNoContent},
		{name: "preflight", method: "OPTIONS", path: "/x", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	_, err := GetUserID(httptest.NewRequest("GET", "/", nil))
	require.ErrorIs(t, err, ErrNoUser)

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithUserID(req.Context(), "u9"))
	got, err := GetUserID(req)
	require.NoError(t, err)
	assert.Equal(t, "u9", got)
}
