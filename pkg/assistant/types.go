package assistant

import "encoding/json"

// Response type tags emitted by the backend.
const (
	TypeSQL              = "sql"
	TypeSQLWithVariables = "sql_with_variables"
)

// Execution status values in DataFrame and Retry responses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusErrored = "error"
)

// ErrorInfo is the backend's execution error shape.
type ErrorInfo struct {
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Offset    string `json:"offset,omitempty"`
}

// QuestionList is returned by generate_questions and
// generate_followup_questions.
type QuestionList struct {
	Type      string   `json:"type"`
	Questions []string `json:"questions"`
	Header    string   `json:"header,omitempty"`
}

// SQLGeneration is returned by generate_sql. When Type is
// "sql_with_variables" the Variables map carries name → description for
// every unbound placeholder.
type SQLGeneration struct {
	Type        string            `json:"type"`
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Explanation string            `json:"explanation,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// DataFrame is returned by run_sql, run_sql_with_variables and
// get_training_data. DF is kept raw: it is either a JSON array of row
// objects or that array double-encoded as a string.
type DataFrame struct {
	Type            string          `json:"type"`
	ID              string          `json:"id"`
	DF              json.RawMessage `json:"df"`
	ExecutionStatus string          `json:"execution_status,omitempty"`
	ErrorInfo       *ErrorInfo      `json:"error_info,omitempty"`
	SQL             string          `json:"sql,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
}

// Failed reports whether the response describes an execution failure,
// either through the status flag or an attached error object.
func (d *DataFrame) Failed() bool {
	return d.ExecutionStatus == StatusFailed || d.ExecutionStatus == StatusErrored || d.ErrorInfo != nil
}

// VariablesApplied is returned by apply_variables.
type VariablesApplied struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	OriginalSQL string `json:"original_sql"`
	FinalSQL    string `json:"final_sql"`
}

// RetryResult is returned by retry_sql: the backend self-corrects the
// failing SQL and re-executes it in one call.
type RetryResult struct {
	Type            string          `json:"type"`
	ID              string          `json:"id"`
	OriginalSQL     string          `json:"original_sql"`
	CorrectedSQL    string          `json:"corrected_sql"`
	DF              json.RawMessage `json:"df"`
	ExecutionStatus string          `json:"execution_status"`
	Explanation     string          `json:"explanation,omitempty"`
	ErrorInfo       *ErrorInfo      `json:"error_info,omitempty"`
}

// Succeeded reports whether the retry executed cleanly.
func (r *RetryResult) Succeeded() bool {
	return r.ExecutionStatus == StatusSuccess
}

// QuestionHistory is returned by get_question_history.
type QuestionHistory struct {
	Type      string            `json:"type"`
	Questions []HistoryQuestion `json:"questions"`
}

// HistoryQuestion is one entry of the server-backed history list.
type HistoryQuestion struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Timestamp string `json:"timestamp,omitempty"`
}

// QuestionCache is returned by load_question: a previously answered
// question with its cached SQL, result and follow-ups.
type QuestionCache struct {
	Type              string          `json:"type"`
	ID                string          `json:"id"`
	Question          string          `json:"question"`
	SQL               string          `json:"sql"`
	DF                json.RawMessage `json:"df"`
	FollowupQuestions []string        `json:"followup_questions,omitempty"`
}

// TrainRequest adds one training-data item. Exactly one of the per-type
// payload fields is set, matching TrainingDataType.
type TrainRequest struct {
	Question         string `json:"question,omitempty"`
	SQL              string `json:"sql,omitempty"`
	DDL              string `json:"ddl,omitempty"`
	Documentation    string `json:"documentation,omitempty"`
	Answer           string `json:"answer,omitempty"`
	Content          string `json:"content,omitempty"`
	TrainingDataType string `json:"training_data_type"`
}

// TrainResponse is returned by train.
type TrainResponse struct {
	ID string `json:"id"`
}

// RemoveResponse is returned by remove_training_data.
type RemoveResponse struct {
	Success bool `json:"success"`
}

// ImportResponse is returned by import_training_data.
type ImportResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReviewSubmission asks for a solved Q&A pair to be queued for admin
// review before it becomes training data.
type ReviewSubmission struct {
	Question    string          `json:"question"`
	SQL         string          `json:"sql"`
	Result      json.RawMessage `json:"result,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// PendingReview is one entry of the review queue.
type PendingReview struct {
	ID          string          `json:"id"`
	Question    string          `json:"question"`
	SQL         string          `json:"sql"`
	Result      json.RawMessage `json:"result,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Timestamp   string          `json:"timestamp"`
	Status      string          `json:"status"`
}

// PendingReviews is returned by get_pending_sql_reviews.
type PendingReviews struct {
	Reviews []PendingReview `json:"reviews"`
}
