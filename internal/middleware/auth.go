package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/pkg/apierror"
)

// UserKey is the key for storing the authenticated user in request context.
const UserKey contextKey = "user"

// TokenValidator resolves a bearer token to its subject id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (int64, error)
}

// UserLookup loads the user behind a subject id.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Tokens TokenValidator
	Users  UserLookup

	// PublicPaths bypass authentication. An entry ending in "*" matches by prefix.
	// Nil selects DefaultPublicPaths.
	PublicPaths []string
}

// DefaultPublicPaths lists the routes reachable without a token.
func DefaultPublicPaths() []string {
	return []string{
		"/api/v1/auth/register",
		"/api/v1/auth/auth-by-username",
		"/api/v1/auth/auth-by-user-id",
		"/api/v1/health",
		"/api/v1/ready",
		"/docs*",
		"/metrics",
	}
}

// NewAuthMiddleware creates the authorization gate.
// Dependencies are injected through cfg and captured by the closure.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	public := cfg.PublicPaths
	if public == nil {
		public = DefaultPublicPaths()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, public) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, "Not authenticated")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeUnauthorized(w, "Invalid authentication scheme")
				return
			}

			userID, err := cfg.Tokens.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, model.ErrInvalidToken) {
					log.Printf("[Auth] Token validation failed, request_id=%s: %v", GetRequestID(r.Context()), err)
				}
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			user, err := cfg.Users.GetByID(r.Context(), userID)
			if errors.Is(err, model.ErrNotFound) {
				writeUnauthorized(w, "User not found")
				return
			}
			if err != nil {
				log.Printf("[Auth] Failed to load user_id=%d, request_id=%s: %v", userID, GetRequestID(r.Context()), err)
				writeError(w, apierror.InternalError(""))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isPublicPath(path string, public []string) bool {
	for _, p := range public {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p || path == p+"/" {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, apierror.Unauthorized(message))
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// UserFromContext retrieves the authenticated user from request context.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(UserKey).(*model.User)
	return user, ok && user != nil
}
