package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// BatchStore persists ingest batch runs
type BatchStore interface {
	Create(ctx context.Context, run *models.BatchRun) error
	Finish(ctx context.Context, run *models.BatchRun) error
	GetByID(ctx context.Context, id string) (*models.BatchRun, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.BatchRun, error)
}

// BatchService records and reads ingest batch runs
type BatchService struct {
	store BatchStore
}

// NewBatchService creates a new batch service
func NewBatchService(store BatchStore) *BatchService {
	return &BatchService{store: store}
}

// Start records a running batch over dir
func (s *BatchService) Start(ctx context.Context, dir string) (*models.BatchRun, error) {
	run := &models.BatchRun{Directory: dir, Status: models.BatchStatusRunning}
	run.StartedAt = time.Now().UTC()
	if err := s.store.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Finish copies the report counters into run and marks it completed, or
// failed when runErr is set. A nil report keeps the counters at zero.
func (s *BatchService) Finish(ctx context.Context, run *models.BatchRun, report *BatchReport, runErr error) error {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = models.BatchStatusCompleted
	if runErr != nil {
		run.Status = models.BatchStatusFailed
		run.ErrorMessage = runErr.Error()
	}

	if report != nil {
		run.Files = report.Files
		run.Accepted = report.Accepted
		run.Rejected = len(report.Rejections)
		run.Duplicates = len(report.Duplicates)
		run.Stored = report.Stored
		run.Invalid = report.Invalid
		run.Failed = len(report.Failures)
		run.Events = report.Events

		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal batch report: %w", err)
		}
		run.ReportJSON = string(data)
	}
	return s.store.Finish(ctx, run)
}

// GetBatch returns a batch run, nil when absent
func (s *BatchService) GetBatch(ctx context.Context, id string) (*models.BatchRun, error) {
	return s.store.GetByID(ctx, id)
}

// ListBatches returns batch runs, newest first
func (s *BatchService) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchRun, error) {
	return s.store.List(ctx, filter)
}
