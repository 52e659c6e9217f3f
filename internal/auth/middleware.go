package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type userIDKey struct{}

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// Middleware rejects requests without a valid bearer token. Failures get a
// bare 401: no detail leaks to unauthenticated callers. The token is
// accepted from the Authorization header or, for EventSource clients that
// cannot set headers, the "token" query parameter.
func Middleware(jwt *JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			userID, err := jwt.Validate(token)
			if err != nil {
				if logger != nil {
					logger.Warn("jwt validation failed", "error", err)
				}
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// BearerToken returns the raw token of an authenticated request so it can be
// forwarded to tool servers.
func BearerToken(r *http.Request) string {
	if token := extractBearer(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
