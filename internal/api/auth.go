package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the "role" claim.
const (
	RoleAdmin  = "admin"
	RoleReader = "reader"
)

// ClaimsKey is the context key for verified token claims.
const ClaimsKey contextKey = "claims"

// Claims are the JWT claims Kestrel issues and accepts.
type Claims struct {
	Role string `json:"role"`
	// Tenant pins the token to one tenant. Empty allows any tenant.
	Tenant string `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject.
func IssueToken(cfg domain.AuthConfig, subject, role, tenant string, ttl time.Duration) (string, error) {
	if !cfg.Enabled() {
		return "", errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		Role:   role,
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken verifies a token's signature, expiry and issuer.
func ParseToken(cfg domain.AuthConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// AuthMiddleware requires a bearer token carrying one of roles. It is a
// no-op when no secret is configured.
func AuthMiddleware(cfg domain.AuthConfig, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "bearer token is required",
				})
				return
			}

			claims, err := ParseToken(cfg, tokenString)
			if err != nil {
				slog.Debug("token rejected", "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
				return
			}

			if !hasRole(claims.Role, roles) {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error": fmt.Sprintf("role %q may not access this route", claims.Role),
				})
				return
			}

			if tenantID := GetTenantID(r.Context()); claims.Tenant != "" && tenantID != "" && claims.Tenant != tenantID {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error": "token is not valid for this tenant",
				})
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasRole(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
