package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// BatchRepository handles database operations for ingest batch runs
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch run repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, directory, status, files, accepted, rejected, duplicates, stored,
		invalid, failed, events, report_json, error_message, started_ms, finished_ms`

// Create inserts a running batch and assigns its ID
func (r *BatchRepository) Create(ctx context.Context, run *models.BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.BatchStatusRunning
	}

	query := `INSERT INTO batch_runs (id, directory, status, started_ms) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), run.ID, run.Directory, run.Status, toMillis(run.StartedAt)); err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

// Finish stores the final counters, report and status of a batch
func (r *BatchRepository) Finish(ctx context.Context, run *models.BatchRun) error {
	query := `
		UPDATE batch_runs
		SET status = ?, files = ?, accepted = ?, rejected = ?, duplicates = ?, stored = ?,
			invalid = ?, failed = ?, events = ?, report_json = ?, error_message = ?, finished_ms = ?
		WHERE id = ?
	`

	var finished any
	if run.FinishedAt != nil {
		finished = toMillis(*run.FinishedAt)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		run.Status,
		run.Files,
		run.Accepted,
		run.Rejected,
		run.Duplicates,
		run.Stored,
		run.Invalid,
		run.Failed,
		run.Events,
		run.ReportJSON,
		run.ErrorMessage,
		finished,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish batch run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch run not found: %s", run.ID)
	}
	return nil
}

// GetByID retrieves a batch run, nil when absent
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.BatchRun, error) {
	runs, err := r.query(ctx, "SELECT "+batchColumns+" FROM batch_runs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// List retrieves batch runs, newest first
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchRun, error) {
	query := "SELECT " + batchColumns + " FROM batch_runs WHERE 1=1"

	args := []interface{}{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	query += " ORDER BY started_ms DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.query(ctx, query, args...)
}

func (r *BatchRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.BatchRun, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []models.BatchRun
	for rows.Next() {
		var (
			run      models.BatchRun
			started  int64
			finished sql.NullInt64
		)
		err := rows.Scan(
			&run.ID,
			&run.Directory,
			&run.Status,
			&run.Files,
			&run.Accepted,
			&run.Rejected,
			&run.Duplicates,
			&run.Stored,
			&run.Invalid,
			&run.Failed,
			&run.Events,
			&run.ReportJSON,
			&run.ErrorMessage,
			&started,
			&finished,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		run.StartedAt = fromMillis(started)
		if finished.Valid {
			t := fromMillis(finished.Int64)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
