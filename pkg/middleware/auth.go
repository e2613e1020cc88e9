package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vivaly-settlement/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claims issued by the identity service. Subject carries the user ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthJWT validates the bearer token and puts the user ID and role into
// the request context.
func AuthJWT(secret, issuer string, logger *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.ResponseUnauthorized(w, "Missing authorization token")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				utils.ResponseUnauthorized(w, "Invalid token format. Use: Bearer <token>")
				return
			}

			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
			if issuer != "" {
				opts = append(opts, jwt.WithIssuer(issuer))
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			}, opts...)
			if err != nil || !token.Valid {
				if errors.Is(err, jwt.ErrTokenExpired) {
					utils.ResponseUnauthorized(w, "Token expired")
					return
				}
				logger.Warn("Rejected bearer token", zap.Error(err), zap.String("path", r.URL.Path))
				utils.ResponseUnauthorized(w, "Invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				utils.ResponseUnauthorized(w, "Invalid token subject")
				return
			}
			if !knownRole(claims.Role) {
				utils.ResponseUnauthorized(w, fmt.Sprintf("Unknown role %q", claims.Role))
				return
			}

			ctx := utils.SetUserContext(r.Context(), userID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole - middleware cek role user
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := utils.GetRoleFromContext(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			userID, _ := utils.GetUserIDFromContext(r.Context())
			logger.Warn("Role check failed",
				zap.String("user_id", userID.String()),
				zap.String("role", role),
				zap.Strings("required", roles),
				zap.String("path", r.URL.Path))
			utils.ResponseForbidden(w, "Insufficient role for this action")
		})
	}
}

func knownRole(role string) bool {
	switch role {
	case "parent", "caregiver", "admin":
		return true
	}
	return false
}
