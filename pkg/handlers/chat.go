package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
)

// ChatHandler exposes the query workflow as JSON operations. Every route
// requires a signed-in role; employees and admins are treated alike here.
type ChatHandler struct {
	orchestrator services.Orchestrator
	logger       *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(orchestrator services.Orchestrator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		logger:       logger.Named("chat-handler"),
	}
}

// RegisterRoutes registers the chat workflow routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, gate *auth.Middleware) {
	mux.HandleFunc("GET /app/state", gate.RequireAPI(false, h.State))
	mux.HandleFunc("POST /app/ask", gate.RequireAPI(false, h.Ask))
	mux.HandleFunc("POST /app/variables", gate.RequireAPI(false, h.ApplyVariables))
	mux.HandleFunc("POST /app/retry", gate.RequireAPI(false, h.Retry))
	mux.HandleFunc("POST /app/sql/apply", gate.RequireAPI(false, h.ApplySQL))
	mux.HandleFunc("POST /app/conversation/reset", gate.RequireAPI(false, h.Reset))
	mux.HandleFunc("GET /app/questions", gate.RequireAPI(false, h.Questions))
	mux.HandleFunc("GET /app/history", gate.RequireAPI(false, h.History))
	mux.HandleFunc("POST /app/history/load", gate.RequireAPI(false, h.LoadHistory))
	mux.HandleFunc("POST /app/review/submit", gate.RequireAPI(false, h.SubmitReview))
}

// State handles GET /app/state: the current workspace snapshot.
func (h *ChatHandler) State(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, h.orchestrator.State())
}

// Ask handles POST /app/ask: submit a natural-language question.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	state, err := h.orchestrator.Ask(r.Context(), req.Question)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// ApplyVariables handles POST /app/variables: bind values to the pending
// variable form and execute.
func (h *ChatHandler) ApplyVariables(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Values map[string]string `json:"values"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	state, err := h.orchestrator.ApplyVariables(r.Context(), req.Values)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// Retry handles POST /app/retry: one manual correction attempt for the
// focused error.
func (h *ChatHandler) Retry(w http.ResponseWriter, r *http.Request) {
	state, err := h.orchestrator.RetryLast(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// ApplySQL handles POST /app/sql/apply: adopt edited SQL and re-execute.
func (h *ChatHandler) ApplySQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := readJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	state, err := h.orchestrator.ApplyEditedSQL(r.Context(), req.SQL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// Reset handles POST /app/conversation/reset: start a new conversation.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, h.orchestrator.NewConversation())
}

// Questions handles GET /app/questions: example prompts for an empty page.
func (h *ChatHandler) Questions(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"questions": h.orchestrator.ExampleQuestions(r.Context()),
	})
}

// History handles GET /app/history: refresh and return the server-backed
// question history.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	state := h.orchestrator.RefreshHistory(r.Context())
	_ = WriteJSON(w, http.StatusOK, map[string]any{"history": state.History})
}

// LoadHistory handles POST /app/history/load: restore a past question.
func (h *ChatHandler) LoadHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := readJSON(r, &req); err != nil || req.ID == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "id is required")
		return
	}

	state, err := h.orchestrator.LoadQuestion(r.Context(), req.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}

// SubmitReview handles POST /app/review/submit: queue the focused Q&A
// pair for admin review.
func (h *ChatHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	state, err := h.orchestrator.SubmitForReview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, state)
}
