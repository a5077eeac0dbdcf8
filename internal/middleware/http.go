package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/services/access"
)

// Identity is the authenticated caller attached to a request by the
// authentication layer. This package only consumes it.
type Identity struct {
	UserID     string
	BusinessID string
}

type contextKey int

const identityKey contextKey = iota

// WithIdentity returns a context carrying the caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// HeaderIdentity reads the caller identity from trusted headers set by the
// edge proxy and attaches it to the request context. Requests without a
// user id pass through unauthenticated; permission middleware rejects them.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		id := Identity{
			UserID:     userID,
			BusinessID: r.Header.Get("X-Business-ID"),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// ResourceExtractor derives the resource the request targets. The default
// reads the {id} route variable as a project id.
type ResourceExtractor func(r *http.Request) (resourceID, resourceKind string)

func defaultResourceExtractor(r *http.Request) (string, string) {
	return mux.Vars(r)["id"], ""
}

// Guard builds permission-checking middleware around an access service.
type Guard struct {
	service *access.Service
	extract ResourceExtractor
	logger  *zap.Logger
}

// NewGuard creates permission middleware. extract may be nil for the
// default route-variable extractor.
func NewGuard(service *access.Service, extract ResourceExtractor, logger *zap.Logger) *Guard {
	if extract == nil {
		extract = defaultResourceExtractor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{service: service, extract: extract, logger: logger}
}

// RequirePermission rejects requests whose caller does not hold the
// permission in their business context.
func (g *Guard) RequirePermission(permission string) mux.MiddlewareFunc {
	return g.RequireAnyPermission(permission)
}

// RequireAnyPermission rejects requests whose caller holds none of the
// given permissions.
func (g *Guard) RequireAnyPermission(permissions ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			resourceID, resourceKind := g.extract(r)
			c := access.Context{
				BusinessID:   id.BusinessID,
				ResourceID:   resourceID,
				ResourceKind: resourceKind,
			}

			for _, permission := range permissions {
				ok, err := g.service.HasPermission(r.Context(), id.UserID, permission, c)
				if err != nil {
					if _, malformed := err.(*entities.MalformedPermissionError); malformed {
						g.logger.Error("route guarded with malformed permission",
							zap.String("permission", permission),
							zap.String("path", r.URL.Path),
						)
						http.Error(w, "internal error", http.StatusInternalServerError)
						return
					}
					g.logger.Error("permission check failed",
						zap.String("user_id", id.UserID),
						zap.Error(err),
					)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				if ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "permission denied", http.StatusForbidden)
		})
	}
}
