package handlers

import (
	"html/template"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
)

// PageData is the template payload for server-rendered pages.
type PageData struct {
	Role    auth.Role
	Version string
	Error   string
}

// PageHandler serves the console's three pages and its static assets.
// Templates are parsed once at startup from the embedded (or, in debug
// builds, on-disk) asset filesystem.
type PageHandler struct {
	assets   fs.FS
	index    *template.Template
	login    *template.Template
	training *template.Template
	version  string
	logger   *zap.Logger
}

// NewPageHandler parses the page templates.
func NewPageHandler(assets fs.FS, version string, logger *zap.Logger) (*PageHandler, error) {
	parse := func(page string) (*template.Template, error) {
		return template.ParseFS(assets, "templates/layout.html", "templates/"+page)
	}

	index, err := parse("index.html")
	if err != nil {
		return nil, err
	}
	login, err := parse("login.html")
	if err != nil {
		return nil, err
	}
	training, err := parse("training.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		assets:   assets,
		index:    index,
		login:    login,
		training: training,
		version:  version,
		logger:   logger.Named("page-handler"),
	}, nil
}

// RegisterRoutes registers the page and static asset routes.
func (h *PageHandler) RegisterRoutes(mux *http.ServeMux, gate *auth.Middleware) {
	mux.Handle("GET /static/", http.FileServerFS(h.assets))
	mux.HandleFunc("GET /{$}", gate.RequirePage(false, h.Index))
	mux.HandleFunc("GET /training", gate.RequirePage(true, h.Training))
}

// Index renders the chat page.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	role, _ := auth.RoleFromContext(r.Context())
	h.render(w, h.index, PageData{Role: role, Version: h.version})
}

// Training renders the training-data admin page.
func (h *PageHandler) Training(w http.ResponseWriter, r *http.Request) {
	role, _ := auth.RoleFromContext(r.Context())
	h.render(w, h.training, PageData{Role: role, Version: h.version})
}

// RenderLogin renders the login page, optionally with a sign-in error.
func (h *PageHandler) RenderLogin(w http.ResponseWriter, statusCode int, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	if err := h.login.ExecuteTemplate(w, "layout", PageData{Version: h.version, Error: errMsg}); err != nil {
		h.logger.Error("render login page", zap.Error(err))
	}
}

func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		h.logger.Error("render page", zap.Error(err))
	}
}
