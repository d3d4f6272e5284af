package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rmahmud/route-director/pkg/logger"
)

// JWTAuthConfig contains admin API authentication configuration. Only HMAC
// algorithms are supported; the admin surface has no key-distribution
// needs beyond a shared secret.
type JWTAuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	SecretKey string        `yaml:"secret_key"`
	Algorithm string        `yaml:"algorithm"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

// subjectContextKey carries the authenticated subject through the request.
type subjectContextKey struct{}

// JWTAuth validates bearer tokens on the admin API.
type JWTAuth struct {
	config JWTAuthConfig
	logger *logger.Logger
}

// NewJWTAuth creates the admin authentication middleware.
func NewJWTAuth(config JWTAuthConfig, log *logger.Logger) *JWTAuth {
	if config.Algorithm == "" {
		config.Algorithm = "HS256"
	}
	return &JWTAuth{
		config: config,
		logger: log.MiddlewareLogger("jwt_auth"),
	}
}

// Middleware returns the authentication http middleware. When disabled it
// passes requests through untouched.
func (ja *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ja.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				ja.unauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := ja.validateToken(token)
			if err != nil {
				ja.unauthorized(w, r, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateToken parses and verifies an HMAC-signed token.
func (ja *JWTAuth) validateToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if token.Method.Alg() != ja.config.Algorithm {
			return nil, fmt.Errorf("unexpected algorithm %s", token.Method.Alg())
		}
		return []byte(ja.config.SecretKey), nil
	}, jwt.WithLeeway(ja.config.ClockSkew))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (ja *JWTAuth) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	ja.logger.WithFields(map[string]interface{}{
		"client_ip": ClientIP(r),
		"path":      r.URL.Path,
		"reason":    reason,
	}).Warn("Admin request rejected")

	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// AuthenticatedSubject returns the token subject stored by the middleware.
func AuthenticatedSubject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey{}).(string)
	return subject
}
