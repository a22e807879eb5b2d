package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"medledger/pkg/secrets"
)

// OperatorClaims are the claims the dashboard's operator tokens carry.
type OperatorClaims struct {
	UserID string
	Role   string
}

type operatorKey struct{}

// GetOperator retrieves the authenticated operator from the context.
func GetOperator(ctx context.Context) OperatorClaims {
	claims, ok := ctx.Value(operatorKey{}).(OperatorClaims)
	if !ok {
		return OperatorClaims{}
	}
	return claims
}

// RequireOperator validates the Bearer token on dashboard routes. Tokens are
// HS256 JWTs signed with the shared operator key.
func RequireOperator(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(signingKey), nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "operator token rejected",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			operator := OperatorClaims{}
			if sub, ok := claims["sub"].(string); ok {
				operator.UserID = sub
			}
			if role, ok := claims["role"].(string); ok {
				operator.Role = role
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin guards administrative routes with a bcrypt-hashed shared token
// supplied via the X-Admin-Token header.
func RequireAdmin(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			token := r.Header.Get("X-Admin-Token")
			if token == "" || secrets.Verify(token, tokenHash) != nil {
				logger.WarnContext(r.Context(), "admin token rejected",
					"request_id", GetRequestID(r.Context()),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
