package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkan-dika/timetable-api/internal/models"
)

// GenerationJobRepository persists asynchronous generation job metadata.
type GenerationJobRepository struct {
	db *sqlx.DB
}

// NewGenerationJobRepository constructs the repository.
func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *GenerationJobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.GenerationJobStatusQueued
	}
	const query = `INSERT INTO generation_jobs (id, term_id, params, status, progress, message, result_id, error_message, created_at, finished_at)
VALUES (:id, :term_id, :params, :status, :progress, :message, :result_id, :error_message, :created_at, :finished_at)`
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	const query = `SELECT id, term_id, params, status, progress, message, result_id, error_message, created_at, finished_at
FROM generation_jobs WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// UpdateGenerationJobParams defines the mutable fields.
type UpdateGenerationJobParams struct {
	Status       *models.GenerationJobStatus
	Progress     *int
	Message      *string
	ResultID     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *GenerationJobRepository) Update(ctx context.Context, id string, params UpdateGenerationJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.Message != nil {
		set = append(set, fmt.Sprintf("message = $%d", argPos))
		args = append(args, *params.Message)
		argPos++
	}
	if params.ResultID != nil {
		set = append(set, fmt.Sprintf("result_id = $%d", argPos))
		args = append(args, *params.ResultID)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE generation_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs (used for cold start recovery).
func (r *GenerationJobRepository) ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, term_id, params, status, progress, message, result_id, error_message, created_at, finished_at
FROM generation_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued generation jobs: %w", err)
	}
	return jobs, nil
}

// ListByTerm returns recent jobs for a term, newest first.
func (r *GenerationJobRepository) ListByTerm(ctx context.Context, termID string, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, term_id, params, status, progress, message, result_id, error_message, created_at, finished_at
FROM generation_jobs WHERE term_id = $1 ORDER BY created_at DESC LIMIT $2`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, termID, limit); err != nil {
		return nil, fmt.Errorf("list generation jobs: %w", err)
	}
	return jobs, nil
}
