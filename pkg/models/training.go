package models

import "strings"

// TrainingType is the normalized training-data category.
type TrainingType string

const (
	TrainingTypeSQL           TrainingType = "sql"
	TrainingTypeDDL           TrainingType = "ddl"
	TrainingTypeDocumentation TrainingType = "documentation"
	TrainingTypeSolution      TrainingType = "solution"
)

// NormalizeTrainingType folds the heterogeneous labels the backend emits
// ("doc", "文档", "document", ...) into one of the four canonical types.
// Unknown labels pass through lowercased so they remain visible in the UI.
func NormalizeTrainingType(label string) TrainingType {
	t := strings.ToLower(strings.TrimSpace(label))
	switch {
	case t == "sql":
		return TrainingTypeSQL
	case t == "ddl":
		return TrainingTypeDDL
	case t == "doc" || t == "文档" || strings.Contains(t, "document") || strings.Contains(t, "文档"):
		return TrainingTypeDocumentation
	case strings.Contains(t, "solution"):
		return TrainingTypeSolution
	default:
		return TrainingType(t)
	}
}

// Suffix returns the id suffix the backend keys deletions on.
func (t TrainingType) Suffix() string {
	switch t {
	case TrainingTypeSQL:
		return "-sql"
	case TrainingTypeDDL:
		return "-ddl"
	case TrainingTypeDocumentation:
		return "-doc"
	case TrainingTypeSolution:
		return "-solution"
	default:
		return ""
	}
}

// TrainingItem is one curated training-data record as shown in the admin
// console. Content holds the type-appropriate body (SQL text, DDL,
// documentation paragraph, or solution answer).
type TrainingItem struct {
	ID            string       `json:"id"`
	Question      string       `json:"question,omitempty"`
	Content       string       `json:"content"`
	Type          TrainingType `json:"trainingDataType"`
	SQL           string       `json:"sql,omitempty"`
	DDL           string       `json:"ddl,omitempty"`
	Documentation string       `json:"documentation,omitempty"`
	Solution      string       `json:"solution,omitempty"`
	Answer        string       `json:"answer,omitempty"`
}

// ReviewItem is one pending entry of the solved-Q&A review queue.
type ReviewItem struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	SQL         string `json:"sql"`
	Result      any    `json:"result,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
}
