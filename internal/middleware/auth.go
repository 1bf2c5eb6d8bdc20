package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bastionhq/sessiongate/internal/auth"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// RequireAuth returns a middleware that authenticates a request via
// JWT and attaches the resulting Principal (spec §3) to the request
// context. This is the built-in default backing the authenticate
// collaborator of spec §1; callers needing a different identity
// source implement collab.Authenticator directly instead of this
// middleware.
func RequireAuth(tokenManager *auth.TokenManager, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if cookie, err := r.Cookie("sessiongate_token"); err == nil && cookie.Value != "" {
				token = cookie.Value
			} else {
				authHeader := r.Header.Get("Authorization")
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					log.Warn("missing or malformed authorization header", map[string]interface{}{"path": r.URL.Path})
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				token = parts[1]
			}

			claims, err := tokenManager.ValidateToken(token)
			if err != nil {
				log.Warn("invalid token", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal := models.Principal{UserID: claims.UserID, Username: claims.Username}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext retrieves the authenticated Principal from ctx.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// CORS returns a middleware that adds CORS headers for the configured
// allowed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
					break
				}
			}
			if !allowed && len(allowedOrigins) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigins[0])
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
