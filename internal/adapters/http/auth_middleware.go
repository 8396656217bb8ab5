package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTMiddleware verifies HS256 access tokens issued by the identity provider
// and stores the subject in the context.
func JWTMiddleware(jwtSecret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, "Authorization header required", http.StatusUnauthorized, logger)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				// Only HS256 is accepted.
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, errors.New("unexpected signing method")
				}
				return jwtSecret, nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				logger.Warn("JWT validation failed", "error", err)
				writeJSONError(w, "Invalid token", http.StatusUnauthorized, logger)
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				writeJSONError(w, "Invalid token claims", http.StatusUnauthorized, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), sub)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
