package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

// Define typed context keys
type contextKey string

const IdentityKey contextKey = "identity"

// ScopeQueryParam is the query parameter the scoped-list filter is injected
// into. Handlers read it back to narrow list and export queries.
const ScopeQueryParam = "userId"

// Authenticate validates the bearer access token and stores the resulting
// identity in the request context. Requests without a valid token never reach
// a handler.
func Authenticate(tokens TokenService, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				l.WarnContext(ctx, "Missing Authorization header")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Access token is required")
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				l.WarnContext(ctx, "Invalid Authorization header format")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			claims, err := tokens.VerifyAccess(headerParts[1])
			if err != nil {
				l.WarnContext(ctx, "Token parsing/validation failed", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				l.WarnContext(ctx, "Malformed userId claim", slog.String("userId", claims.UserID))
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid token")
				return
			}

			identity := api.Identity{
				UserID:   userID,
				Username: claims.Username,
				Role:     claims.Role,
			}
			ctx = context.WithValue(ctx, IdentityKey, identity)
			l.DebugContext(ctx, "Authentication successful", slog.String("userID", claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnforceDataScope narrows list reads to the caller's own records: for GET
// requests from non-admins the owner filter is forced into the query string,
// overriding any client-supplied value. Admins pass through untouched and may
// filter explicitly. Writes pass through too; the per-record policy check
// happens inside the handler so 404 and 403 stay distinguishable.
func EnforceDataScope(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				api.ErrorResponse(w, r, http.StatusUnauthorized, "User not authenticated")
				return
			}

			if r.Method == http.MethodGet && !identity.IsAdmin() {
				q := r.URL.Query()
				q.Set(ScopeQueryParam, identity.UserID.String())
				r.URL.RawQuery = q.Encode()
				logger.DebugContext(r.Context(), "Enforcing owner scope",
					slog.String("path", r.URL.Path),
					slog.String("userID", identity.UserID.String()),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentityFromContext returns the identity stored by Authenticate.
func GetIdentityFromContext(ctx context.Context) (api.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(api.Identity)
	return identity, ok
}

// ScopedOwnerFilter resolves the owner filter for list/export queries from
// the (possibly rewritten) query string. A missing value means no filter,
// which only admins can reach. A malformed value is an error so an admin's
// bad filter is rejected instead of silently widening to the full set.
func ScopedOwnerFilter(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(ScopeQueryParam)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s filter %q: %w", ScopeQueryParam, raw, err)
	}
	return &id, nil
}
