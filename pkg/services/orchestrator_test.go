package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/apperrors"
	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
)

// fakeBackend is a scriptable stand-in for the assistant API. Handlers
// default to 404; tests register only the endpoints they exercise.
type fakeBackend struct {
	t        *testing.T
	mux      *http.ServeMux
	server   *httptest.Server
	runCalls atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, mux: http.NewServeMux()}
	b.server = httptest.NewServer(b.mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) client() *assistant.Client {
	return assistant.New(b.server.URL, nil, zap.NewNop())
}

func (b *fakeBackend) respond(pattern string, payload any) {
	b.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			b.t.Errorf("encode %s response: %v", pattern, err)
		}
	})
}

func (b *fakeBackend) stubAncillary() {
	b.respond("/generate_followup_questions", assistant.QuestionList{
		Type:      "question_list",
		Questions: []string{"按城市分组统计用户?"},
	})
	b.respond("/get_question_history", assistant.QuestionHistory{
		Type: "question_history",
		Questions: []assistant.HistoryQuestion{
			{ID: "q-1", Question: "列出所有用户"},
		},
	})
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend) Orchestrator {
	t.Helper()
	return NewOrchestrator(backend.client(), []string{"备用问题"}, zap.NewNop())
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	o := newTestOrchestrator(t, newFakeBackend(t))
	_, err := o.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyQuestion)
}

func TestAskSuccess(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type:        assistant.TypeSQL,
		ID:          "gen-1",
		Text:        "SELECT id, name FROM users",
		Explanation: "全表扫描 users",
	})
	// df double-encoded as a string, as the backend often delivers it.
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		ID:              "gen-1",
		DF:              json.RawMessage(`"[{\"id\":1,\"name\":null}]"`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	state, err := o.Ask(context.Background(), "列出所有用户")
	require.NoError(t, err)

	require.Len(t, state.Conversation, 2)
	assert.True(t, state.Conversation[0].IsUser)
	assert.False(t, state.Conversation[1].IsUser)
	assert.Equal(t, "SELECT id, name FROM users", state.Conversation[1].SQL)

	require.NotNil(t, state.Current)
	assert.Equal(t, "gen-1", state.Current.SessionID)
	assert.Nil(t, state.Current.Error)

	require.NotNil(t, state.Table)
	assert.Equal(t, []string{"id", "name"}, state.Table.Columns)
	require.Len(t, state.Table.Rows, 1)
	assert.Equal(t, "-", state.Table.Rows[0]["name"])

	assert.True(t, state.ShowSavePrompt)
	assert.Equal(t, []string{"列出所有用户"}, state.RecentQuestions)
	assert.Equal(t, []string{"按城市分组统计用户?"}, state.FollowupQuestions)
	require.Len(t, state.History, 1)
	assert.Equal(t, PhaseIdle, state.Phase)
}

func TestAskStopsForVariableForm(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQLWithVariables,
		ID:   "gen-2",
		Text: "SELECT * FROM orders WHERE city = :城市",
		Variables: map[string]string{
			"城市": "订单所属城市",
		},
	})
	backend.mux.HandleFunc("/run_sql", func(w http.ResponseWriter, r *http.Request) {
		backend.runCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	o := newTestOrchestrator(t, backend)
	state, err := o.Ask(context.Background(), "查询某个城市的订单")
	require.NoError(t, err)

	assert.True(t, state.ShowVariableForm)
	require.Len(t, state.Variables, 1)
	assert.Equal(t, "城市", state.Variables[0].Name)
	assert.Equal(t, "订单所属城市", state.Variables[0].Description)

	// Execution must not happen until values are supplied.
	assert.Zero(t, backend.runCalls.Load())
	assert.Nil(t, state.Table)
	require.Len(t, state.Conversation, 2)
	assert.Equal(t, "SELECT * FROM orders WHERE city = :城市", state.Conversation[1].SQL)
}

func TestAskRetriesOnceAndAppendsCorrectedTurn(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-3",
		Text: "SELECT * FROM user",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		ID:              "gen-3",
		ExecutionStatus: assistant.StatusFailed,
		ErrorInfo:       &assistant.ErrorInfo{Message: "table user does not exist"},
	})

	var retryCalls atomic.Int32
	backend.mux.HandleFunc("/retry_sql", func(w http.ResponseWriter, r *http.Request) {
		retryCalls.Add(1)
		var req struct {
			ID        string            `json:"id"`
			SQL       string            `json:"sql"`
			ErrorInfo models.QueryError `json:"error_info"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode retry request: %v", err)
		}
		assert.Equal(t, "gen-3", req.ID)
		assert.Equal(t, models.CodeSQLExecutionError, req.ErrorInfo.Code)
		assert.Equal(t, "table user does not exist", req.ErrorInfo.Message)
		assert.Contains(t, req.ErrorInfo.Details, "执行状态: failed")
		assert.Contains(t, req.ErrorInfo.Details, "原始错误:")

		json.NewEncoder(w).Encode(assistant.RetryResult{
			Type:            "retry",
			ID:              "gen-3r",
			OriginalSQL:     "SELECT * FROM user",
			CorrectedSQL:    "SELECT * FROM users",
			DF:              json.RawMessage(`[{"id":1}]`),
			ExecutionStatus: assistant.StatusSuccess,
		})
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	state, err := o.Ask(context.Background(), "列出所有用户")
	require.NoError(t, err)

	assert.Equal(t, int32(1), retryCalls.Load())
	require.NotNil(t, state.Current)
	assert.Equal(t, "SELECT * FROM users", state.Current.SQL)
	assert.Equal(t, "gen-3r", state.Current.SessionID)
	assert.Nil(t, state.Current.Error)

	// Submit path appends the corrected outcome as a fresh system turn.
	require.Len(t, state.Conversation, 2)
	assert.Equal(t, "SELECT * FROM users", state.Conversation[1].SQL)
	require.NotNil(t, state.Table)
	assert.Equal(t, 1, state.Table.Total)
}

func TestAskRetryFailureRecordsBothSQLVersions(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-4",
		Text: "SELECT * FROM user",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		ID:              "gen-4",
		ExecutionStatus: assistant.StatusErrored,
		ErrorInfo:       &assistant.ErrorInfo{Message: "syntax error"},
	})
	backend.respond("/retry_sql", assistant.RetryResult{
		Type:            "retry",
		ID:              "gen-4r",
		OriginalSQL:     "SELECT * FROM user",
		CorrectedSQL:    "SELECT * FROM userz",
		ExecutionStatus: assistant.StatusFailed,
		ErrorInfo:       &assistant.ErrorInfo{Message: "still broken"},
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	state, err := o.Ask(context.Background(), "列出所有用户")
	require.NoError(t, err)

	require.NotNil(t, state.Current)
	require.NotNil(t, state.Current.Error)
	assert.Equal(t, "still broken", state.Current.Error.Message)
	assert.Contains(t, state.Current.Error.Details, "原始SQL: SELECT * FROM user")
	assert.Contains(t, state.Current.Error.Details, "修正后SQL: SELECT * FROM userz")
	assert.Nil(t, state.Table)
	assert.False(t, state.ShowSavePrompt)

	require.Len(t, state.Conversation, 2)
	require.NotNil(t, state.Conversation[1].Error)
}

func TestAskSendsPriorTurnsAsContext(t *testing.T) {
	backend := newFakeBackend(t)
	var contexts []string
	backend.mux.HandleFunc("/generate_sql", func(w http.ResponseWriter, r *http.Request) {
		contexts = append(contexts, r.URL.Query().Get("conversation_context"))
		json.NewEncoder(w).Encode(assistant.SQLGeneration{
			Type: assistant.TypeSQL,
			ID:   fmt.Sprintf("gen-%d", len(contexts)),
			Text: "SELECT 1",
		})
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`[{"n":1}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "第一个问题")
	require.NoError(t, err)
	_, err = o.Ask(ctx, "第二个问题")
	require.NoError(t, err)

	require.Len(t, contexts, 2)
	assert.Empty(t, contexts[0], "first question carries no context")

	var entries []models.ContextEntry
	require.NoError(t, json.Unmarshal([]byte(contexts[1]), &entries))
	// Both turns of the first exchange, but not the second user turn.
	require.Len(t, entries, 2)
	assert.Equal(t, "第一个问题", entries[0].Question)
	assert.True(t, entries[0].IsUser)
	assert.False(t, entries[1].IsUser)
}

func TestApplyVariablesPatchesTurnInPlace(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type:      assistant.TypeSQLWithVariables,
		ID:        "gen-5",
		Text:      "SELECT * FROM orders WHERE city = :city",
		Variables: map[string]string{"city": "城市名称"},
	})
	backend.respond("/apply_variables", assistant.VariablesApplied{
		Type:        "variables_applied",
		ID:          "gen-5",
		OriginalSQL: "SELECT * FROM orders WHERE city = :city",
		FinalSQL:    "SELECT * FROM orders WHERE city = '上海'",
	})
	backend.respond("/run_sql_with_variables", assistant.DataFrame{
		Type:            "df",
		ID:              "gen-5",
		DF:              json.RawMessage(`[{"order_id":7}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "查询上海的订单")
	require.NoError(t, err)

	state, err := o.ApplyVariables(ctx, map[string]string{"city": "上海"})
	require.NoError(t, err)

	assert.False(t, state.ShowVariableForm)
	assert.Empty(t, state.Variables)
	require.NotNil(t, state.Current)
	assert.Equal(t, "SELECT * FROM orders WHERE city = '上海'", state.Current.SQL)
	require.NotNil(t, state.Table)
	assert.True(t, state.ShowSavePrompt)

	// The pending turn is rewritten, not duplicated.
	require.Len(t, state.Conversation, 2)
	assert.Equal(t, "SELECT * FROM orders WHERE city = '上海'", state.Conversation[1].SQL)
}

func TestApplyVariablesAdoptsExecutionExplanation(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type:        assistant.TypeSQLWithVariables,
		ID:          "gen-11",
		Text:        "SELECT * FROM orders WHERE city = :city",
		Explanation: "按城市过滤订单",
		Variables:   map[string]string{"city": "城市名称"},
	})
	backend.respond("/apply_variables", assistant.VariablesApplied{
		Type:     "variables_applied",
		ID:       "gen-11",
		FinalSQL: "SELECT * FROM orders WHERE city = '上海'",
	})
	backend.respond("/run_sql_with_variables", assistant.DataFrame{
		Type:            "df",
		ID:              "gen-11",
		DF:              json.RawMessage(`[{"order_id":7}]`),
		ExecutionStatus: assistant.StatusSuccess,
		Explanation:     "上海地区的全部订单",
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "查询上海的订单")
	require.NoError(t, err)

	state, err := o.ApplyVariables(ctx, map[string]string{"city": "上海"})
	require.NoError(t, err)

	require.NotNil(t, state.Current)
	assert.Equal(t, "上海地区的全部订单", state.Current.Explanation)
	require.Len(t, state.Conversation, 2)
	assert.Equal(t, "上海地区的全部订单", state.Conversation[1].Explanation)
}

func TestApplyVariablesRejectsInjection(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type:      assistant.TypeSQLWithVariables,
		ID:        "gen-6",
		Text:      "SELECT * FROM orders WHERE city = :city",
		Variables: map[string]string{"city": "城市名称"},
	})
	var applyCalls atomic.Int32
	backend.mux.HandleFunc("/apply_variables", func(w http.ResponseWriter, r *http.Request) {
		applyCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "查询上海的订单")
	require.NoError(t, err)

	_, err = o.ApplyVariables(ctx, map[string]string{"city": "' OR 1=1 --"})
	assert.ErrorIs(t, err, apperrors.ErrInjectionDetected)
	assert.Zero(t, applyCalls.Load(), "flagged values never reach the backend")
}

func TestApplyVariablesWithoutPendingForm(t *testing.T) {
	o := newTestOrchestrator(t, newFakeBackend(t))
	_, err := o.ApplyVariables(context.Background(), map[string]string{"city": "上海"})
	assert.ErrorIs(t, err, apperrors.ErrNoPendingVariables)
}

func TestRetryLastGuards(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-7",
		Text: "SELECT 1",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`[{"n":1}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)

	_, err := o.RetryLast(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoFocusedResponse)

	_, err = o.Ask(context.Background(), "查询")
	require.NoError(t, err)

	_, err = o.RetryLast(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotRetryable, "a clean result has nothing to retry")
}

func TestNewConversationKeepsRecentQuestions(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-8",
		Text: "SELECT 1",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`[{"n":1}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	_, err := o.Ask(context.Background(), "查询")
	require.NoError(t, err)

	state := o.NewConversation()
	assert.Empty(t, state.Conversation)
	assert.Nil(t, state.Current)
	assert.Nil(t, state.Table)
	assert.Empty(t, state.FollowupQuestions)
	assert.False(t, state.ShowSavePrompt)
	assert.Equal(t, []string{"查询"}, state.RecentQuestions)
}

func TestExampleQuestionsFallsBack(t *testing.T) {
	backend := newFakeBackend(t)
	backend.mux.HandleFunc("/generate_questions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	o := newTestOrchestrator(t, backend)
	assert.Equal(t, []string{"备用问题"}, o.ExampleQuestions(context.Background()))
}

func TestLoadQuestionRestoresWorkspace(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/load_question", assistant.QuestionCache{
		Type:              "question_cache",
		ID:                "q-9",
		Question:          "列出所有用户",
		SQL:               "SELECT id FROM users",
		DF:                json.RawMessage(`[{"id":1},{"id":2}]`),
		FollowupQuestions: []string{"统计用户数量?"},
	})

	o := newTestOrchestrator(t, backend)
	state, err := o.LoadQuestion(context.Background(), "q-9")
	require.NoError(t, err)

	require.NotNil(t, state.Current)
	assert.Equal(t, "q-9", state.Current.SessionID)
	assert.Equal(t, "SELECT id FROM users", state.Current.SQL)
	require.NotNil(t, state.Table)
	assert.Equal(t, 2, state.Table.Total)
	assert.Equal(t, []string{"统计用户数量?"}, state.FollowupQuestions)
}

func TestApplyEditedSQLKeepsTurnLogAfterHistoryLoad(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-12",
		Text: "SELECT 1",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`[{"n":1}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.respond("/load_question", assistant.QuestionCache{
		Type:     "question_cache",
		ID:       "q-old",
		Question: "上个月的订单",
		SQL:      "SELECT * FROM orders",
		DF:       json.RawMessage(`[{"order_id":1}]`),
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "当前问题")
	require.NoError(t, err)

	_, err = o.LoadQuestion(ctx, "q-old")
	require.NoError(t, err)

	// Re-executing the loaded question must not rewrite the unrelated
	// last turn of the live conversation.
	state, err := o.ApplyEditedSQL(ctx, "SELECT id FROM orders")
	require.NoError(t, err)

	require.NotNil(t, state.Current)
	assert.Equal(t, "SELECT id FROM orders", state.Current.SQL)
	require.Len(t, state.Conversation, 2)
	assert.Equal(t, "当前问题", state.Conversation[1].Question)
	assert.Equal(t, "SELECT 1", state.Conversation[1].SQL)
}

func TestLoadQuestionKeepsFollowupsWhenCacheHasNone(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-13",
		Text: "SELECT 1",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`[{"n":1}]`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.respond("/load_question", assistant.QuestionCache{
		Type:     "question_cache",
		ID:       "q-old",
		Question: "上个月的订单",
		SQL:      "SELECT * FROM orders",
		DF:       json.RawMessage(`[{"order_id":1}]`),
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	ctx := context.Background()
	_, err := o.Ask(ctx, "当前问题")
	require.NoError(t, err)

	state, err := o.LoadQuestion(ctx, "q-old")
	require.NoError(t, err)
	assert.Equal(t, []string{"按城市分组统计用户?"}, state.FollowupQuestions)
}

func TestAskAttachesProcessErrorOnBadPayload(t *testing.T) {
	backend := newFakeBackend(t)
	backend.respond("/generate_sql", assistant.SQLGeneration{
		Type: assistant.TypeSQL,
		ID:   "gen-10",
		Text: "SELECT 1",
	})
	backend.respond("/run_sql", assistant.DataFrame{
		Type:            "df",
		DF:              json.RawMessage(`{"not":"an array"}`),
		ExecutionStatus: assistant.StatusSuccess,
	})
	backend.stubAncillary()

	o := newTestOrchestrator(t, backend)
	state, err := o.Ask(context.Background(), "查询")
	require.NoError(t, err)

	require.NotNil(t, state.Current)
	require.NotNil(t, state.Current.Error)
	assert.Equal(t, models.CodeProcessError, state.Current.Error.Code)
	assert.Nil(t, state.Table)
}
