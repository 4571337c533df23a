package handlers

import (
	"context"
	"io"

	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
	"github.com/hongcheng-ai/sqlchat-console/pkg/resultset"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
)

// stubOrchestrator implements services.Orchestrator with overridable
// function fields. Unset fields return an empty idle state.
type stubOrchestrator struct {
	askFn          func(ctx context.Context, question string) (*services.State, error)
	applyVarsFn    func(ctx context.Context, values map[string]string) (*services.State, error)
	retryFn        func(ctx context.Context) (*services.State, error)
	applySQLFn     func(ctx context.Context, edited string) (*services.State, error)
	loadFn         func(ctx context.Context, id string) (*services.State, error)
	sortFn         func(column string) (*services.State, error)
	pageFn         func(page int) (*services.State, error)
	pageSizeFn     func(size int) (*services.State, error)
	tableFn        func() (*resultset.Table, error)
	downloadFn     func() (string, error)
	submitReviewFn func(ctx context.Context) (*services.State, error)
}

var _ services.Orchestrator = (*stubOrchestrator)(nil)

func emptyState() *services.State {
	return &services.State{Phase: services.PhaseIdle}
}

func (s *stubOrchestrator) Ask(ctx context.Context, question string) (*services.State, error) {
	if s.askFn != nil {
		return s.askFn(ctx, question)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) ApplyVariables(ctx context.Context, values map[string]string) (*services.State, error) {
	if s.applyVarsFn != nil {
		return s.applyVarsFn(ctx, values)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) RetryLast(ctx context.Context) (*services.State, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) ApplyEditedSQL(ctx context.Context, edited string) (*services.State, error) {
	if s.applySQLFn != nil {
		return s.applySQLFn(ctx, edited)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) LoadQuestion(ctx context.Context, id string) (*services.State, error) {
	if s.loadFn != nil {
		return s.loadFn(ctx, id)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) NewConversation() *services.State { return emptyState() }

func (s *stubOrchestrator) State() *services.State { return emptyState() }

func (s *stubOrchestrator) ExampleQuestions(ctx context.Context) []string {
	return []string{"列出所有用户"}
}

func (s *stubOrchestrator) RefreshHistory(ctx context.Context) *services.State {
	state := emptyState()
	state.History = []models.HistoryQuestion{{ID: "h-1", Question: "列出所有用户"}}
	return state
}

func (s *stubOrchestrator) SortTable(column string) (*services.State, error) {
	if s.sortFn != nil {
		return s.sortFn(column)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) SetTablePage(page int) (*services.State, error) {
	if s.pageFn != nil {
		return s.pageFn(page)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) SetTablePageSize(size int) (*services.State, error) {
	if s.pageSizeFn != nil {
		return s.pageSizeFn(size)
	}
	return emptyState(), nil
}

func (s *stubOrchestrator) ResultTable() (*resultset.Table, error) {
	if s.tableFn != nil {
		return s.tableFn()
	}
	return &resultset.Table{}, nil
}

func (s *stubOrchestrator) DownloadURL() (string, error) {
	if s.downloadFn != nil {
		return s.downloadFn()
	}
	return "http://backend/download_csv?id=x", nil
}

func (s *stubOrchestrator) SubmitForReview(ctx context.Context) (*services.State, error) {
	if s.submitReviewFn != nil {
		return s.submitReviewFn(ctx)
	}
	return emptyState(), nil
}

// stubTrainingService implements services.TrainingService the same way.
type stubTrainingService struct {
	listFn     func(ctx context.Context) ([]models.TrainingItem, error)
	addFn      func(ctx context.Context, item models.TrainingItem) (string, error)
	removeFn   func(ctx context.Context, id string, dataType models.TrainingType) error
	importFn   func(ctx context.Context, filename string, file io.Reader) (*assistant.ImportResponse, error)
	templateFn func() ([]byte, error)
	pendingFn  func(ctx context.Context) ([]models.ReviewItem, error)
	reviewFn   func(ctx context.Context, id string, approved bool) error
}

var _ services.TrainingService = (*stubTrainingService)(nil)

func (s *stubTrainingService) List(ctx context.Context) ([]models.TrainingItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubTrainingService) Add(ctx context.Context, item models.TrainingItem) (string, error) {
	if s.addFn != nil {
		return s.addFn(ctx, item)
	}
	return "new-id", nil
}

func (s *stubTrainingService) Remove(ctx context.Context, id string, dataType models.TrainingType) error {
	if s.removeFn != nil {
		return s.removeFn(ctx, id, dataType)
	}
	return nil
}

func (s *stubTrainingService) Import(ctx context.Context, filename string, file io.Reader) (*assistant.ImportResponse, error) {
	if s.importFn != nil {
		return s.importFn(ctx, filename, file)
	}
	return &assistant.ImportResponse{Success: true}, nil
}

func (s *stubTrainingService) Template() ([]byte, error) {
	if s.templateFn != nil {
		return s.templateFn()
	}
	return []byte("xlsx"), nil
}

func (s *stubTrainingService) PendingReviews(ctx context.Context) ([]models.ReviewItem, error) {
	if s.pendingFn != nil {
		return s.pendingFn(ctx)
	}
	return nil, nil
}

func (s *stubTrainingService) Review(ctx context.Context, id string, approved bool) error {
	if s.reviewFn != nil {
		return s.reviewFn(ctx, id, approved)
	}
	return nil
}
