package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
)

// TableHandler exposes result-table presentation controls and the two
// export paths: a local CSV of the processed table and a redirect to the
// backend's own CSV download.
type TableHandler struct {
	orchestrator services.Orchestrator
	logger       *zap.Logger
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(orchestrator services.Orchestrator, logger *zap.Logger) *TableHandler {
	return &TableHandler{
		orchestrator: orchestrator,
		logger:       logger.Named("table-handler"),
	}
}

// RegisterRoutes registers the table routes on the given mux.
func (h *TableHandler) RegisterRoutes(mux *http.ServeMux, gate *auth.Middleware) {
	mux.HandleFunc("POST /app/table/sort", gate.RequireAPI(false, h.Sort))
	mux.HandleFunc("POST /app/table/page", gate.RequireAPI(false, h.Page))
	mux.HandleFunc("POST /app/table/page-size", gate.RequireAPI(false, h.PageSize))
	mux.HandleFunc("GET /app/table/export", gate.RequireAPI(false, h.Export))
	mux.HandleFunc("GET /app/download/csv", gate.RequireAPI(false, h.DownloadCSV))
}

// Sort handles POST /app/table/sort: toggle or switch the sort column.
func (h *TableHandler) Sort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column string `json:"column"`
	}
	if err := readJSON(r, &req); err != nil || req.Column == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "column is required")
		return
	}

	state, err := h.orchestrator.SortTable(req.Column)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// Page handles POST /app/table/page: move to another result page.
func (h *TableHandler) Page(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page int `json:"page"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	state, err := h.orchestrator.SetTablePage(req.Page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// PageSize handles POST /app/table/page-size: switch the page size.
func (h *TableHandler) PageSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size int `json:"size"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	state, err := h.orchestrator.SetTablePageSize(req.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// Export handles GET /app/table/export: the full processed table as CSV,
// in the current sort order.
func (h *TableHandler) Export(w http.ResponseWriter, r *http.Request) {
	table, err := h.orchestrator.ResultTable()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("result-%s.csv", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		h.logger.Warn("csv export aborted", zap.Error(err))
		return
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, column := range table.Columns {
			record[i] = row[column]
		}
		if err := writer.Write(record); err != nil {
			h.logger.Warn("csv export aborted", zap.Error(err))
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Warn("csv export flush failed", zap.Error(err))
	}
}

// DownloadCSV handles GET /app/download/csv: redirect the browser to the
// backend's CSV download for the focused query.
func (h *TableHandler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	target, err := h.orchestrator.DownloadURL()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
