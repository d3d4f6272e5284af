package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func signedToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthHandler(t *testing.T, config JWTAuthConfig) (http.Handler, *string) {
	t.Helper()
	var subject string
	auth := NewJWTAuth(config, testLogger(t))
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = AuthenticatedSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &subject
}

func TestJWTAuthValidToken(t *testing.T) {
	handler, subject := newAuthHandler(t, JWTAuthConfig{Enabled: true, SecretKey: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "operator", time.Minute))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", *subject)
}

func TestJWTAuthMissingToken(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{Enabled: true, SecretKey: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestJWTAuthWrongSecret(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{Enabled: true, SecretKey: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other-secret", "operator", time.Minute))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthExpiredToken(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{Enabled: true, SecretKey: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "operator", -time.Minute))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthExpiredWithinClockSkew(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{
		Enabled:   true,
		SecretKey: testSecret,
		ClockSkew: 5 * time.Minute,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "operator", -time.Minute))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMalformedHeader(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{Enabled: true, SecretKey: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthDisabledPassesThrough(t *testing.T) {
	handler, _ := newAuthHandler(t, JWTAuthConfig{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
