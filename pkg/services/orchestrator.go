// Package services holds the console's workflow services: the query
// orchestrator that drives the ask/execute/vary/retry lifecycle, and the
// training-data service behind the admin console.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/apperrors"
	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/conversation"
	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
	"github.com/hongcheng-ai/sqlchat-console/pkg/resultset"
	"github.com/hongcheng-ai/sqlchat-console/pkg/sqlvars"
)

// Workflow phases reported in State.Phase.
const (
	PhaseIdle       = "idle"
	PhaseGenerating = "generating"
	PhaseExecuting  = "executing"
)

// State is the full view-model snapshot handed to the page layer after
// every operation. It is a copy; mutating it does not affect the service.
type State struct {
	Conversation      []models.ConversationItem `json:"conversation"`
	Current           *models.FocusedResponse   `json:"current,omitempty"`
	Table             *resultset.Table          `json:"table,omitempty"`
	PageRows          []map[string]string       `json:"pageRows,omitempty"`
	Variables         []models.SQLVariable      `json:"variables,omitempty"`
	ShowVariableForm  bool                      `json:"showVariableForm"`
	FollowupQuestions []string                  `json:"followupQuestions,omitempty"`
	ShowSavePrompt    bool                      `json:"showSavePrompt"`
	RecentQuestions   []string                  `json:"recentQuestions,omitempty"`
	History           []models.HistoryQuestion  `json:"history,omitempty"`
	Phase             string                    `json:"phase"`
}

// Orchestrator drives the question lifecycle and owns all page-level
// state: the turn log, the focused response, the result table and the
// pending variable form. Every method returns the post-operation State.
//
// Backend and workflow failures are folded into the State as error
// envelopes; a method returns a non-nil error only for caller mistakes
// (empty input, no pending form, no retryable error).
type Orchestrator interface {
	Ask(ctx context.Context, question string) (*State, error)
	ApplyVariables(ctx context.Context, values map[string]string) (*State, error)
	RetryLast(ctx context.Context) (*State, error)
	ApplyEditedSQL(ctx context.Context, edited string) (*State, error)
	LoadQuestion(ctx context.Context, id string) (*State, error)
	NewConversation() *State
	State() *State
	ExampleQuestions(ctx context.Context) []string
	RefreshHistory(ctx context.Context) *State
	SortTable(column string) (*State, error)
	SetTablePage(page int) (*State, error)
	SetTablePageSize(size int) (*State, error)
	ResultTable() (*resultset.Table, error)
	DownloadURL() (string, error)
	SubmitForReview(ctx context.Context) (*State, error)
}

type orchestrator struct {
	client *assistant.Client
	logger *zap.Logger

	// fallbackQuestions is served when the backend cannot supply example
	// prompts. Loaded once at startup.
	fallbackQuestions []string

	// mu serializes every operation. The console serves one workspace, so
	// holding the lock across backend calls is the simplest way to keep
	// the multi-step flows atomic.
	mu sync.Mutex

	turns  *conversation.Store
	recent *conversation.RecentQuestions

	current    *models.FocusedResponse
	table      *resultset.Table
	variables  []models.SQLVariable
	showVars   bool
	pendingID  string
	followups  []string
	savePrompt bool
	history    []models.HistoryQuestion
	phase      string
}

var _ Orchestrator = (*orchestrator)(nil)

// NewOrchestrator creates the workflow service. fallbackQuestions may be
// nil when no local example list is configured.
func NewOrchestrator(client *assistant.Client, fallbackQuestions []string, logger *zap.Logger) Orchestrator {
	return &orchestrator{
		client:            client,
		logger:            logger.Named("orchestrator"),
		fallbackQuestions: fallbackQuestions,
		turns:             conversation.NewStore(),
		recent:            conversation.NewRecentQuestions(),
		phase:             PhaseIdle,
	}
}

// Ask submits a question: echo the user turn, generate SQL, stop for a
// variable form when the SQL carries placeholders, otherwise execute and,
// on execution failure, retry once through the backend's corrector.
func (o *orchestrator) Ask(ctx context.Context, question string) (*State, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.ErrEmptyQuestion
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setIdle()

	o.recent.Add(question)
	o.clearVariableForm()
	o.savePrompt = false
	o.phase = PhaseGenerating

	// Context is the log as it stood before this question; the user turn
	// is echoed after capture so it is not sent back to the generator.
	contextEntries := o.turns.Context()
	o.turns.Append(models.NewUserTurn(question))

	gen, err := o.client.GenerateSQL(ctx, question, contextEntries)
	if err != nil {
		o.logger.Warn("sql generation failed", zap.String("question", question), zap.Error(err))
		o.failTurn(question, "", &models.QueryError{
			Message: "查询执行失败",
			Code:    models.CodeRequestError,
			Details: err.Error(),
		}, false)
		return o.snapshot(), nil
	}

	// Variable gate: when the generated SQL carries unbound placeholders,
	// or the backend declared a variable map, show the form and stop
	// before execution.
	if form := sqlvars.BuildForm(gen.Text, gen.Variables); len(form) > 0 {
		o.variables = form
		o.showVars = true
		o.pendingID = gen.ID
		o.current = &models.FocusedResponse{
			Question:    question,
			SQL:         gen.Text,
			SessionID:   gen.ID,
			Explanation: gen.Explanation,
		}
		o.table = nil
		turn := models.NewSystemTurn(gen.ID, question)
		turn.SQL = gen.Text
		turn.Explanation = gen.Explanation
		o.turns.Append(turn)
		return o.snapshot(), nil
	}

	o.phase = PhaseExecuting
	o.executeAndRecord(ctx, question, gen)

	// Follow-ups and history refresh are best-effort regardless of how
	// execution went.
	o.fetchFollowups(ctx, gen.ID)
	o.refreshHistoryLocked(ctx)

	return o.snapshot(), nil
}

// executeAndRecord runs the generated SQL and appends the system turn,
// retrying once through the backend corrector on execution failure.
func (o *orchestrator) executeAndRecord(ctx context.Context, question string, gen *assistant.SQLGeneration) {
	df, err := o.client.RunSQL(ctx, gen.ID)
	if err != nil {
		o.retryOnce(ctx, gen.ID, gen.Text, question, models.QueryError{
			Message: "SQL执行失败",
			Code:    models.CodeSQLExecutionError,
			Details: err.Error(),
		}, false)
		return
	}
	if df.Failed() {
		o.retryOnce(ctx, gen.ID, gen.Text, question, executionEnvelope(df), false)
		return
	}

	o.current = &models.FocusedResponse{
		Question:    question,
		SQL:         gen.Text,
		Result:      df.DF,
		SessionID:   gen.ID,
		Explanation: gen.Explanation,
	}
	o.processResult(df.DF)

	turn := models.NewSystemTurn(gen.ID, question)
	turn.SQL = gen.Text
	turn.Result = df.DF
	turn.Explanation = gen.Explanation
	o.turns.Append(turn)
	o.savePrompt = o.current.Error == nil
}

// executionEnvelope folds a failed DataFrame into the local error shape.
// Details carries the execution status plus the whole backend response so
// the corrector sees everything the backend reported.
func executionEnvelope(df *assistant.DataFrame) models.QueryError {
	message := "SQL执行失败"
	if df.ErrorInfo != nil && df.ErrorInfo.Message != "" {
		message = df.ErrorInfo.Message
	}
	status := df.ExecutionStatus
	if status == "" {
		status = "unknown"
	}
	raw, err := json.Marshal(df)
	if err != nil {
		raw = []byte("{}")
	}
	return models.QueryError{
		Message: message,
		Code:    models.CodeSQLExecutionError,
		Details: fmt.Sprintf("执行状态: %s, 原始错误: %s", status, raw),
	}
}

// retryOnce makes the single automatic correction attempt. In the submit
// path (patch=false) the outcome is appended as a new system turn; in the
// variable-apply and manual-retry paths (patch=true) the last turn is
// rewritten in place so the log keeps one turn per question.
func (o *orchestrator) retryOnce(ctx context.Context, id, sqlText, question string, envelope models.QueryError, patch bool) {
	o.logger.Info("retrying failed sql",
		zap.String("id", id),
		zap.String("reason", envelope.Message))

	res, err := o.client.RetrySQL(ctx, id, sqlText, envelope)
	if err != nil {
		o.logger.Warn("retry request failed", zap.String("id", id), zap.Error(err))
		o.failTurn(question, sqlText, &models.QueryError{
			Message: "重试请求失败",
			Code:    models.CodeRequestError,
			Details: err.Error(),
		}, patch)
		return
	}

	if res.Succeeded() {
		o.current = &models.FocusedResponse{
			Question:    question,
			SQL:         res.CorrectedSQL,
			Result:      res.DF,
			SessionID:   res.ID,
			Explanation: res.Explanation,
		}
		o.processResult(res.DF)
		o.recordTurn(res.ID, question, func(turn *models.ConversationItem) {
			turn.SQL = res.CorrectedSQL
			turn.Result = res.DF
			turn.Explanation = res.Explanation
			turn.Error = nil
		}, patch)
		o.savePrompt = o.current.Error == nil
		return
	}

	message := "重试执行失败"
	if res.ErrorInfo != nil && res.ErrorInfo.Message != "" {
		message = res.ErrorInfo.Message
	}
	failure := &models.QueryError{
		Message: message,
		Code:    models.CodeSQLExecutionError,
		Details: fmt.Sprintf("原始SQL: %s\n修正后SQL: %s", res.OriginalSQL, res.CorrectedSQL),
	}
	o.current = &models.FocusedResponse{
		Question:  question,
		SQL:       res.CorrectedSQL,
		SessionID: res.ID,
		Error:     failure,
	}
	o.table = nil
	o.recordTurn(res.ID, question, func(turn *models.ConversationItem) {
		turn.SQL = res.CorrectedSQL
		turn.Result = nil
		turn.Error = failure
	}, patch)
}

// failTurn records a terminal failure on the focused response and the log.
func (o *orchestrator) failTurn(question, sqlText string, failure *models.QueryError, patch bool) {
	o.current = &models.FocusedResponse{
		Question: question,
		SQL:      sqlText,
		Error:    failure,
	}
	o.table = nil
	o.recordTurn("", question, func(turn *models.ConversationItem) {
		turn.SQL = sqlText
		turn.Result = nil
		turn.Error = failure
	}, patch)
}

// recordTurn either appends a fresh system turn or patches the last one.
func (o *orchestrator) recordTurn(id, question string, fill func(*models.ConversationItem), patch bool) {
	if patch && o.turns.Len() > 0 {
		o.turns.PatchLast(fill)
		return
	}
	turn := models.NewSystemTurn(id, question)
	fill(&turn)
	o.turns.Append(turn)
}

// processResult builds the result table from a df payload. A payload the
// table builder cannot digest becomes a PROCESS_ERROR on the focused
// response instead of failing the whole operation.
func (o *orchestrator) processResult(raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		o.table = nil
		return
	}
	table, err := resultset.Process(raw)
	if err != nil {
		o.logger.Warn("result processing failed", zap.Error(err))
		o.table = nil
		if o.current != nil {
			o.current.Error = &models.QueryError{
				Message: "处理查询结果失败",
				Code:    models.CodeProcessError,
				Details: err.Error(),
			}
		}
		return
	}
	o.table = table
}

// ApplyVariables screens and submits the pending variable values, then
// executes the bound SQL. Failures go through the same single-retry flow
// as plain execution, but rewrite the existing turn instead of adding one.
func (o *orchestrator) ApplyVariables(ctx context.Context, values map[string]string) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setIdle()

	if !o.showVars || o.pendingID == "" || o.current == nil {
		return nil, apperrors.ErrNoPendingVariables
	}

	if flagged := sqlvars.CheckValues(values); len(flagged) > 0 {
		names := make([]string, 0, len(flagged))
		for _, f := range flagged {
			names = append(names, f.VariableName)
		}
		o.logger.Warn("variable values rejected",
			zap.Strings("variables", names))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInjectionDetected, strings.Join(names, ", "))
	}

	o.phase = PhaseExecuting
	question := o.current.Question
	id := o.pendingID

	applied, err := o.client.ApplyVariables(ctx, id, values)
	if err != nil {
		o.retryOnce(ctx, id, o.current.SQL, question, models.QueryError{
			Message: "变量应用失败",
			Code:    models.CodeRequestError,
			Details: err.Error(),
		}, true)
		o.clearVariableForm()
		return o.snapshot(), nil
	}

	df, err := o.client.RunSQLWithVariables(ctx, id)
	switch {
	case err != nil:
		o.retryOnce(ctx, id, applied.FinalSQL, question, models.QueryError{
			Message: "SQL执行失败",
			Code:    models.CodeSQLExecutionError,
			Details: err.Error(),
		}, true)
	case df.Failed():
		o.retryOnce(ctx, id, applied.FinalSQL, question, executionEnvelope(df), true)
	default:
		o.current.SQL = applied.FinalSQL
		o.current.Result = df.DF
		o.current.Error = nil
		// Execution may carry a fresher explanation than generation did.
		if df.Explanation != "" {
			o.current.Explanation = df.Explanation
		}
		o.processResult(df.DF)
		o.turns.PatchLast(func(turn *models.ConversationItem) {
			turn.SQL = applied.FinalSQL
			turn.Result = df.DF
			turn.Explanation = o.current.Explanation
			turn.Error = nil
		})
		o.savePrompt = o.current.Error == nil
	}

	o.clearVariableForm()
	o.fetchFollowups(ctx, id)
	return o.snapshot(), nil
}

// RetryLast makes one manual correction attempt for the focused error.
func (o *orchestrator) RetryLast(ctx context.Context) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setIdle()

	if o.current == nil {
		return nil, apperrors.ErrNoFocusedResponse
	}
	if o.current.Error == nil || o.current.SQL == "" || o.current.SessionID == "" {
		return nil, apperrors.ErrNotRetryable
	}

	o.phase = PhaseExecuting
	o.retryOnce(ctx, o.current.SessionID, o.current.SQL, o.current.Question, *o.current.Error, true)
	return o.snapshot(), nil
}

// ApplyEditedSQL re-executes the focused query and adopts the edited SQL
// text into the view. Execution uses the SQL the backend holds under the
// session id; the edited text is display state until the backend exposes
// an execute-by-text operation. The turn log is left untouched: the
// focused response may have been loaded from history, in which case the
// last turn belongs to a different exchange.
func (o *orchestrator) ApplyEditedSQL(ctx context.Context, edited string) (*State, error) {
	edited = strings.TrimSpace(edited)
	if edited == "" {
		return nil, apperrors.ErrEmptySQL
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setIdle()

	if o.current == nil || o.current.SessionID == "" {
		return nil, apperrors.ErrNoFocusedResponse
	}

	o.phase = PhaseExecuting
	df, err := o.client.RunSQL(ctx, o.current.SessionID)
	if err != nil {
		o.current.Error = &models.QueryError{
			Message: "SQL执行失败",
			Code:    models.CodeRequestError,
			Details: err.Error(),
		}
		return o.snapshot(), nil
	}
	if df.Failed() {
		env := executionEnvelope(df)
		o.current.Error = &env
		return o.snapshot(), nil
	}

	o.current.SQL = edited
	o.current.Result = df.DF
	o.current.Error = nil
	o.processResult(df.DF)
	return o.snapshot(), nil
}

// LoadQuestion restores a previously answered question from the backend
// cache into the focused view.
func (o *orchestrator) LoadQuestion(ctx context.Context, id string) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setIdle()

	cache, err := o.client.LoadQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	o.clearVariableForm()
	o.savePrompt = false
	o.current = &models.FocusedResponse{
		Question:  cache.Question,
		SQL:       cache.SQL,
		Result:    cache.DF,
		SessionID: cache.ID,
	}
	o.processResult(cache.DF)
	if len(cache.FollowupQuestions) > 0 {
		o.followups = cache.FollowupQuestions
	}
	return o.snapshot(), nil
}

/// NewConversation drops the whole workspace in one step: the log, the
// focused response, the table, follow-ups and the variable form. The
// recent-questions buffer survives.
func (o *orchestrator) NewConversation() *State {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.turns.Reset()
	o.current = nil
	o.table = nil
	o.followups = nil
	o.savePrompt = false
	o.clearVariableForm()
	o.phase = PhaseIdle
	return o.snapshot()
}

// State returns the current workspace snapshot without side effects.
func (o *orchestrator) State() *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

// ExampleQuestions serves backend-generated example prompts, falling back
// to the locally configured list when the backend is unreachable.
func (o *orchestrator) ExampleQuestions(ctx context.Context) []string {
	list, err := o.client.GenerateQuestions(ctx)
	if err != nil || len(list.Questions) == 0 {
		if err != nil {
			o.logger.Warn("example questions unavailable", zap.Error(err))
		}
		return o.fallbackQuestions
	}
	return list.Questions
}

// RefreshHistory reloads the server-backed question history.
func (o *orchestrator) RefreshHistory(ctx context.Context) *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshHistoryLocked(ctx)
	return o.snapshot()
}

// SortTable toggles or sets the sort column of the result table.
func (o *orchestrator) SortTable(column string) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.table == nil {
		return nil, apperrors.ErrNoResult
	}
	o.table.SortBy(column)
	return o.snapshot(), nil
}

// SetTablePage moves to the given result page, clamped to range.
func (o *orchestrator) SetTablePage(page int) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.table == nil {
		return nil, apperrors.ErrNoResult
	}
	o.table.SetPage(page)
	return o.snapshot(), nil
}

// SetTablePageSize switches the page size and resets to the first page.
func (o *orchestrator) SetTablePageSize(size int) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.table == nil {
		return nil, apperrors.ErrNoResult
	}
	if err := o.table.SetPageSize(size); err != nil {
		return nil, err
	}
	return o.snapshot(), nil
}

// ResultTable returns a copy of the full result table for export.
func (o *orchestrator) ResultTable() (*resultset.Table, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.table == nil {
		return nil, apperrors.ErrNoResult
	}
	copied := *o.table
	return &copied, nil
}

// DownloadURL returns the backend CSV download URL for the focused query.
func (o *orchestrator) DownloadURL() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.SessionID == "" {
		return "", apperrors.ErrNoFocusedResponse
	}
	return o.client.CSVDownloadURL(o.current.SessionID), nil
}

// SubmitForReview queues the focused question and SQL for admin review
// and dismisses the save prompt.
func (o *orchestrator) SubmitForReview(ctx context.Context) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.SQL == "" {
		return nil, apperrors.ErrNoFocusedResponse
	}

	err := o.client.SubmitSQLForReview(ctx, assistant.ReviewSubmission{
		Question:    o.current.Question,
		SQL:         o.current.SQL,
		Result:      o.current.Result,
		Explanation: o.current.Explanation,
	})
	if err != nil {
		return nil, err
	}
	o.savePrompt = false
	return o.snapshot(), nil
}

func (o *orchestrator) fetchFollowups(ctx context.Context, id string) {
	list, err := o.client.GenerateFollowupQuestions(ctx, id)
	if err != nil {
		o.logger.Warn("followup questions unavailable", zap.String("id", id), zap.Error(err))
		return
	}
	o.followups = list.Questions
}

func (o *orchestrator) refreshHistoryLocked(ctx context.Context) {
	hist, err := o.client.GetQuestionHistory(ctx)
	if err != nil {
		o.logger.Warn("question history unavailable", zap.Error(err))
		return
	}
	entries := make([]models.HistoryQuestion, 0, len(hist.Questions))
	for _, q := range hist.Questions {
		entries = append(entries, models.HistoryQuestion{
			ID:        q.ID,
			Question:  q.Question,
			Timestamp: q.Timestamp,
		})
	}
	o.history = entries
}

func (o *orchestrator) clearVariableForm() {
	o.variables = nil
	o.showVars = false
	o.pendingID = ""
}

func (o *orchestrator) setIdle() {
	o.phase = PhaseIdle
}

// snapshot builds the State copy. Callers hold o.mu.
func (o *orchestrator) snapshot() *State {
	s := &State{
		Conversation:      o.turns.Snapshot(),
		ShowVariableForm:  o.showVars,
		FollowupQuestions: append([]string(nil), o.followups...),
		ShowSavePrompt:    o.savePrompt,
		RecentQuestions:   o.recent.List(),
		History:           append([]models.HistoryQuestion(nil), o.history...),
		Phase:             o.phase,
	}
	if o.current != nil {
		current := *o.current
		s.Current = &current
	}
	if o.table != nil {
		table := *o.table
		s.Table = &table
		s.PageRows = o.table.PageRows()
	}
	if len(o.variables) > 0 {
		s.Variables = append([]models.SQLVariable(nil), o.variables...)
	}
	return s
}
