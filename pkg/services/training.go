package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/apperrors"
	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/jsonutil"
	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
)

// importHeader is the column layout of bulk-import files and of the
// downloadable template.
var importHeader = []string{"training_data_type", "question", "content"}

// ImportValidationError reports rows of a bulk-import file that were
// rejected before anything was sent to the backend.
type ImportValidationError struct {
	Problems []string
}

func (e *ImportValidationError) Error() string {
	return fmt.Sprintf("import file rejected: %s", strings.Join(e.Problems, "; "))
}

// TrainingService curates the backend's training data: listing, adding
// and removing single items, bulk import with local pre-validation, and
// the solved-Q&A review queue.
type TrainingService interface {
	List(ctx context.Context) ([]models.TrainingItem, error)
	Add(ctx context.Context, item models.TrainingItem) (string, error)
	Remove(ctx context.Context, id string, dataType models.TrainingType) error
	Import(ctx context.Context, filename string, file io.Reader) (*assistant.ImportResponse, error)
	Template() ([]byte, error)
	PendingReviews(ctx context.Context) ([]models.ReviewItem, error)
	Review(ctx context.Context, id string, approved bool) error
}

type trainingService struct {
	client *assistant.Client
	logger *zap.Logger
}

var _ TrainingService = (*trainingService)(nil)

// NewTrainingService creates the training-data service.
func NewTrainingService(client *assistant.Client, logger *zap.Logger) TrainingService {
	return &trainingService{
		client: client,
		logger: logger.Named("training-service"),
	}
}

// trainingRow is the backend's flat training-data record, delivered as
// rows of a df payload.
type trainingRow struct {
	ID               string `json:"id"`
	Question         string `json:"question"`
	Content          string `json:"content"`
	TrainingDataType string `json:"training_data_type"`
}

// List fetches and normalizes the full training-data inventory.
func (s *trainingService) List(ctx context.Context) ([]models.TrainingItem, error) {
	df, err := s.client.GetTrainingData(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := jsonutil.DecodeRows(df.DF)
	if err != nil {
		return nil, fmt.Errorf("decode training data: %w", err)
	}

	items := make([]models.TrainingItem, 0, len(rows))
	for _, raw := range rows {
		var row trainingRow
		if err := json.Unmarshal(raw, &row); err != nil {
			s.logger.Warn("skipping undecodable training row", zap.Error(err))
			continue
		}
		items = append(items, models.TrainingItem{
			ID:       row.ID,
			Question: row.Question,
			Content:  row.Content,
			Type:     models.NormalizeTrainingType(row.TrainingDataType),
		})
	}
	return items, nil
}

// Add creates one training item, shaping the request by type.
func (s *trainingService) Add(ctx context.Context, item models.TrainingItem) (string, error) {
	req, err := buildTrainRequest(item)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Train(ctx, req)
	if err != nil {
		return "", err
	}
	s.logger.Info("training item added",
		zap.String("id", resp.ID),
		zap.String("type", string(item.Type)))
	return resp.ID, nil
}

func buildTrainRequest(item models.TrainingItem) (assistant.TrainRequest, error) {
	req := assistant.TrainRequest{TrainingDataType: string(item.Type)}
	content := strings.TrimSpace(item.Content)

	switch item.Type {
	case models.TrainingTypeSQL:
		if strings.TrimSpace(item.Question) == "" || content == "" {
			return req, errors.New("sql training item needs a question and sql text")
		}
		req.Question = item.Question
		req.SQL = content
	case models.TrainingTypeDDL:
		if content == "" {
			return req, errors.New("ddl training item needs ddl text")
		}
		req.DDL = content
	case models.TrainingTypeDocumentation:
		if content == "" {
			return req, errors.New("documentation training item needs content")
		}
		req.Documentation = content
	case models.TrainingTypeSolution:
		if strings.TrimSpace(item.Question) == "" || content == "" {
			return req, errors.New("solution training item needs a question and an answer")
		}
		req.Question = item.Question
		req.Answer = content
	default:
		return req, fmt.Errorf("unknown training data type %q", item.Type)
	}
	return req, nil
}

// knownSuffixes lists the id suffixes the backend keys deletions on.
var knownSuffixes = []string{"-sql", "-ddl", "-doc", "-solution"}

// SuffixedID derives the backend deletion id. An id that already carries
// the type's suffix passes through; an id carrying a different known
// suffix is a caller bug and is rejected rather than silently deleting
// the wrong record.
func SuffixedID(id string, dataType models.TrainingType) (string, error) {
	want := dataType.Suffix()
	if want == "" {
		return "", fmt.Errorf("unknown training data type %q", dataType)
	}
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(id, suffix) {
			if suffix != want {
				return "", fmt.Errorf("%w: id %q, type %q", apperrors.ErrTypeSuffixMismatch, id, dataType)
			}
			return id, nil
		}
	}
	return id + want, nil
}

// Remove deletes one training item by its suffixed id.
func (s *trainingService) Remove(ctx context.Context, id string, dataType models.TrainingType) error {
	suffixed, err := SuffixedID(id, dataType)
	if err != nil {
		return err
	}
	ok, err := s.client.RemoveTrainingData(ctx, suffixed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("backend refused to remove %q: %w", suffixed, apperrors.ErrNotFound)
	}
	s.logger.Info("training item removed", zap.String("id", suffixed))
	return nil
}

// Import pre-validates a bulk-import file locally (header layout, known
// types, required fields), then forwards the untouched file to the
// backend. Nothing is sent when any row fails validation.
func (s *trainingService) Import(ctx context.Context, filename string, file io.Reader) (*assistant.ImportResponse, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}

	var records [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		records, err = readWorkbook(data)
	case ".csv":
		records, err = readCSV(data)
	default:
		return nil, fmt.Errorf("unsupported import format %q, expected .xlsx or .csv", filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}

	if verr := validateImportRecords(records); verr != nil {
		return nil, verr
	}

	resp, err := s.client.ImportTrainingData(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s.logger.Info("training data imported",
		zap.String("file", filename),
		zap.Int("count", resp.Count))
	return resp, nil
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read workbook rows: %w", err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func validateImportRecords(records [][]string) error {
	verr := &ImportValidationError{}

	if len(records) == 0 {
		verr.Problems = append(verr.Problems, "file is empty")
		return verr
	}

	header := records[0]
	if len(header) < len(importHeader) {
		verr.Problems = append(verr.Problems,
			fmt.Sprintf("header must be %s", strings.Join(importHeader, ", ")))
		return verr
	}
	for i, want := range importHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			verr.Problems = append(verr.Problems,
				fmt.Sprintf("header column %d is %q, expected %q", i+1, header[i], want))
		}
	}
	if len(verr.Problems) > 0 {
		return verr
	}

	if len(records) == 1 {
		verr.Problems = append(verr.Problems, "file has no data rows")
		return verr
	}

	for i, record := range records[1:] {
		rowNum := i + 2
		if isBlankRecord(record) {
			continue
		}
		if len(record) < len(importHeader) {
			verr.Problems = append(verr.Problems, fmt.Sprintf("row %d has too few columns", rowNum))
			continue
		}
		item := models.TrainingItem{
			Type:     models.NormalizeTrainingType(record[0]),
			Question: strings.TrimSpace(record[1]),
			Content:  strings.TrimSpace(record[2]),
		}
		if item.Type.Suffix() == "" {
			verr.Problems = append(verr.Problems,
				fmt.Sprintf("row %d has unknown type %q", rowNum, record[0]))
			continue
		}
		if _, err := buildTrainRequest(item); err != nil {
			verr.Problems = append(verr.Problems, fmt.Sprintf("row %d: %v", rowNum, err))
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// Template builds the downloadable xlsx import template: the header row
// plus one example row per training-data type.
func (s *trainingService) Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"training_data_type", "question", "content"},
		{"sql", "列出所有用户", "SELECT id, name FROM users"},
		{"ddl", "", "CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR(100))"},
		{"documentation", "", "users 表保存平台的注册用户"},
		{"solution", "如何统计活跃用户", "按 last_login 字段过滤最近30天的记录"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}

// PendingReviews lists the solved-Q&A pairs awaiting admin review.
func (s *trainingService) PendingReviews(ctx context.Context) ([]models.ReviewItem, error) {
	pending, err := s.client.GetPendingSQLReviews(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]models.ReviewItem, 0, len(pending.Reviews))
	for _, r := range pending.Reviews {
		item := models.ReviewItem{
			ID:          r.ID,
			Question:    r.Question,
			SQL:         r.SQL,
			Explanation: r.Explanation,
			Timestamp:   r.Timestamp,
			Status:      r.Status,
		}
		if len(r.Result) > 0 {
			item.Result = json.RawMessage(r.Result)
		}
		items = append(items, item)
	}
	return items, nil
}

// Review approves or rejects one pending entry. Approval promotes the
// pair to training data on the backend side.
func (s *trainingService) Review(ctx context.Context, id string, approved bool) error {
	if err := s.client.ReviewSQL(ctx, id, approved); err != nil {
		return err
	}
	s.logger.Info("review resolved",
		zap.String("id", id),
		zap.Bool("approved", approved))
	return nil
}
