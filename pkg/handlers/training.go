package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
)

// uploadLimit bounds bulk-import uploads (in-memory parse threshold).
const uploadLimit = 10 << 20

// TrainingHandler exposes the training-data admin console: CRUD, bulk
// import with a downloadable template, and the review queue. Every route
// is admin-only.
type TrainingHandler struct {
	service services.TrainingService
	logger  *zap.Logger
}

// NewTrainingHandler creates a new TrainingHandler.
func NewTrainingHandler(service services.TrainingService, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{
		service: service,
		logger:  logger.Named("training-handler"),
	}
}

// RegisterRoutes registers the training admin routes on the given mux.
func (h *TrainingHandler) RegisterRoutes(mux *http.ServeMux, gate *auth.Middleware) {
	mux.HandleFunc("GET /app/training", gate.RequireAPI(true, h.List))
	mux.HandleFunc("POST /app/training", gate.RequireAPI(true, h.Add))
	mux.HandleFunc("DELETE /app/training/{id}", gate.RequireAPI(true, h.Remove))
	mux.HandleFunc("POST /app/training/import", gate.RequireAPI(true, h.Import))
	mux.HandleFunc("GET /app/training/template", gate.RequireAPI(true, h.Template))
	mux.HandleFunc("GET /app/reviews", gate.RequireAPI(true, h.PendingReviews))
	mux.HandleFunc("POST /app/reviews/{id}", gate.RequireAPI(true, h.Review))
}

// List handles GET /app/training.
func (h *TrainingHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Add handles POST /app/training.
func (h *TrainingHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string `json:"type"`
		Question string `json:"question"`
		Content  string `json:"content"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := h.service.Add(r.Context(), models.TrainingItem{
		Type:     models.NormalizeTrainingType(req.Type),
		Question: req.Question,
		Content:  req.Content,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Remove handles DELETE /app/training/{id}?type=sql.
func (h *TrainingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dataType := models.NormalizeTrainingType(r.URL.Query().Get("type"))
	if id == "" || dataType.Suffix() == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "id and a known type are required")
		return
	}

	if err := h.service.Remove(r.Context(), id, dataType); err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Import handles POST /app/training/import: a multipart upload of an
// .xlsx or .csv file.
func (h *TrainingHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadLimit); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "expected a multipart file upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	defer file.Close()

	resp, err := h.service.Import(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

// Template handles GET /app/training/template: the xlsx import template.
func (h *TrainingHandler) Template(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Template()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="training-template.xlsx"`)
	_, _ = w.Write(data)
}

// PendingReviews handles GET /app/reviews.
func (h *TrainingHandler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.PendingReviews(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"reviews": items})
}

// Review handles POST /app/reviews/{id}: approve or reject one entry.
func (h *TrainingHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := readJSON(r, &req); err != nil || id == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "id and approved are required")
		return
	}

	if err := h.service.Review(r.Context(), id, req.Approved); err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
