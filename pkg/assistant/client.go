// Package assistant is the typed client for the remote NL→SQL backend.
// It shapes requests and decodes responses; all workflow decisions stay
// with the caller.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
)

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the assistant backend under its /api/v0 base path.
// No timeout is configured here: failures surface through the backend's
// own error responses or transport-level rejection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the given API base URL (including the version
// prefix). Pass nil httpClient to use http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("assistant-client"),
	}
}

// GenerateQuestions fetches example prompts.
func (c *Client) GenerateQuestions(ctx context.Context) (*QuestionList, error) {
	var out QuestionList
	if err := c.get(ctx, "generate_questions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateSQL translates a question to SQL, passing prior turns as
// serialized conversation context to aid multi-turn generation.
func (c *Client) GenerateSQL(ctx context.Context, question string, conversationContext []models.ContextEntry) (*SQLGeneration, error) {
	params := url.Values{"question": {question}}
	if len(conversationContext) > 0 {
		serialized, err := json.Marshal(conversationContext)
		if err != nil {
			return nil, fmt.Errorf("serialize conversation context: %w", err)
		}
		params.Set("conversation_context", string(serialized))
	}

	var out SQLGeneration
	if err := c.get(ctx, "generate_sql", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunSQL executes the stored query for the given generation id.
func (c *Client) RunSQL(ctx context.Context, id string) (*DataFrame, error) {
	var out DataFrame
	if err := c.get(ctx, "run_sql", url.Values{"id": {id}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyVariables binds user-supplied values to the query's :name
// placeholders server-side and returns the substituted SQL.
func (c *Client) ApplyVariables(ctx context.Context, id string, values map[string]string) (*VariablesApplied, error) {
	var out VariablesApplied
	body := map[string]any{"id": id, "variable_values": values}
	if err := c.post(ctx, "apply_variables", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunSQLWithVariables executes the query after variable substitution.
func (c *Client) RunSQLWithVariables(ctx context.Context, id string) (*DataFrame, error) {
	var out DataFrame
	if err := c.post(ctx, "run_sql_with_variables", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrySQL asks the backend to self-correct a failing query and re-execute
// it in one call.
func (c *Client) RetrySQL(ctx context.Context, id, sqlText string, errInfo models.QueryError) (*RetryResult, error) {
	var out RetryResult
	body := map[string]any{"id": id, "sql": sqlText, "error_info": errInfo}
	if err := c.post(ctx, "retry_sql", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateFollowupQuestions fetches suggestions keyed by a generation id.
func (c *Client) GenerateFollowupQuestions(ctx context.Context, id string) (*QuestionList, error) {
	var out QuestionList
	if err := c.get(ctx, "generate_followup_questions", url.Values{"id": {id}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQuestionHistory fetches the server-backed question history.
func (c *Client) GetQuestionHistory(ctx context.Context) (*QuestionHistory, error) {
	var out QuestionHistory
	if err := c.get(ctx, "get_question_history", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadQuestion fetches the cached record for a history entry.
func (c *Client) LoadQuestion(ctx context.Context, id string) (*QuestionCache, error) {
	var out QuestionCache
	if err := c.get(ctx, "load_question", url.Values{"id": {id}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrainingData fetches all curated training data as a tabular payload.
func (c *Client) GetTrainingData(ctx context.Context) (*DataFrame, error) {
	var out DataFrame
	if err := c.get(ctx, "get_training_data", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Train adds one training-data item.
func (c *Client) Train(ctx context.Context, req TrainRequest) (*TrainResponse, error) {
	var out TrainResponse
	if err := c.post(ctx, "train", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveTrainingData deletes one item by its type-suffixed id.
func (c *Client) RemoveTrainingData(ctx context.Context, id string) (bool, error) {
	var out RemoveResponse
	if err := c.post(ctx, "remove_training_data", map[string]any{"id": id}, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// ImportTrainingData forwards an uploaded spreadsheet to the backend's
// bulk import endpoint as multipart form data.
func (c *Client) ImportTrainingData(ctx context.Context, filename string, file io.Reader) (*ImportResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/import_training_data", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out ImportResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSQLForReview queues a solved Q&A pair for admin review.
func (c *Client) SubmitSQLForReview(ctx context.Context, submission ReviewSubmission) error {
	return c.post(ctx, "submit_sql_for_review", submission, nil)
}

// GetPendingSQLReviews fetches the review queue.
func (c *Client) GetPendingSQLReviews(ctx context.Context) (*PendingReviews, error) {
	var out PendingReviews
	if err := c.get(ctx, "get_pending_sql_reviews", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReviewSQL approves or rejects one pending review.
func (c *Client) ReviewSQL(ctx context.Context, id string, approved bool) error {
	return c.post(ctx, "review_sql", map[string]any{"id": id, "approved": approved}, nil)
}

// CSVDownloadURL returns the browser-navigated CSV download URL for a
// result id.
func (c *Client) CSVDownloadURL(id string) string {
	return c.baseURL + "/download_csv?id=" + url.QueryEscape(id)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("backend error response",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
