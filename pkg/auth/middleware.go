package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

// RoleContextKey carries the visitor's role through the request context.
const RoleContextKey contextKey = "role"

// RoleFromContext returns the role the gate stored on the request.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(RoleContextKey).(Role)
	return role, ok
}

// Middleware enforces the role gate on pages and JSON endpoints.
type Middleware struct {
	manager *Manager
	logger  *zap.Logger
}

// NewMiddleware creates the gate middleware.
func NewMiddleware(manager *Manager, logger *zap.Logger) *Middleware {
	return &Middleware{
		manager: manager,
		logger:  logger.Named("auth-middleware"),
	}
}

// RequirePage gates a browser page: visitors without a role are sent to
// the login page. When adminOnly is set, employees are sent back to the
// chat page instead of seeing an error.
func (m *Middleware) RequirePage(adminOnly bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := m.manager.Role(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if adminOnly && role != RoleAdmin {
			m.logger.Info("admin page refused",
				zap.String("path", r.URL.Path),
				zap.String("role", string(role)))
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), RoleContextKey, role)))
	}
}

// RequireAPI gates a JSON endpoint: 401 without a role, 403 when an
// employee calls an admin-only operation.
func (m *Middleware) RequireAPI(adminOnly bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := m.manager.Role(r)
		if !ok {
			m.writeError(w, http.StatusUnauthorized, "unauthorized", "Sign in required")
			return
		}
		if adminOnly && role != RoleAdmin {
			m.logger.Info("admin operation refused",
				zap.String("path", r.URL.Path),
				zap.String("role", string(role)))
			m.writeError(w, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), RoleContextKey, role)))
	}
}

// RedirectSignedIn keeps signed-in visitors off the login page.
func (m *Middleware) RedirectSignedIn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.manager.Role(r); ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
