package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
)

// AuthHandler runs the login flow: admins sign in with credentials,
// employees enter with one click, and either way a signed role cookie is
// issued.
type AuthHandler struct {
	manager *auth.Manager
	pages   *PageHandler
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(manager *auth.Manager, pages *PageHandler, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		manager: manager,
		pages:   pages,
		logger:  logger.Named("auth-handler"),
	}
}

// RegisterRoutes registers the login routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, gate *auth.Middleware) {
	mux.HandleFunc("GET /login", gate.RedirectSignedIn(h.LoginPage))
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
}

// LoginPage renders the login form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.RenderLogin(w, http.StatusOK, "")
}

// Login handles the login form post. mode=employee grants the employee
// role without credentials; anything else is an admin sign-in.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.RenderLogin(w, http.StatusBadRequest, "请求格式错误")
		return
	}

	role := auth.RoleAdmin
	if r.FormValue("mode") == "employee" {
		role = auth.RoleEmployee
	} else {
		err := h.manager.Authenticate(r.FormValue("username"), r.FormValue("password"))
		if errors.Is(err, auth.ErrBadCredentials) {
			h.logger.Info("admin sign-in refused",
				zap.String("username", r.FormValue("username")))
			h.pages.RenderLogin(w, http.StatusUnauthorized, "用户名或密码错误")
			return
		}
		if err != nil {
			h.pages.RenderLogin(w, http.StatusInternalServerError, "登录失败，请稍后重试")
			return
		}
	}

	if err := h.manager.SetRole(w, r, role); err != nil {
		h.logger.Error("set role cookie", zap.Error(err))
		h.pages.RenderLogin(w, http.StatusInternalServerError, "登录失败，请稍后重试")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the role cookie and returns to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ClearRole(w, r); err != nil {
		h.logger.Warn("clear role cookie", zap.Error(err))
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}
