package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	"github.com/arkan-dika/timetable-api/internal/repository"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/jobs"
)

type generationJobStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	Update(ctx context.Context, id string, params repository.UpdateGenerationJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error)
}

type generationDispatcher interface {
	Enqueue(job jobs.Job) error
}

type pipelineRunner interface {
	Run(ctx context.Context, request models.GenerationRequest, sink ProgressSink) (*models.GenerationResult, error)
}

type pendingResultReader interface {
	GetResult(resultID string) (*models.GenerationResult, error)
}

// GenerationJobService manages the queued generation lifecycle: submission,
// status polling and cold start recovery.
type GenerationJobService struct {
	repo      generationJobStore
	queue     generationDispatcher
	results   pendingResultReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGenerationJobService constructs the job service.
func NewGenerationJobService(repo generationJobStore, queue generationDispatcher, results pendingResultReader, validate *validator.Validate, logger *zap.Logger) *GenerationJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationJobService{
		repo:      repo,
		queue:     queue,
		results:   results,
		validator: validate,
		logger:    logger,
	}
}

// CreateJob validates the payload, persists the job row and enqueues it.
func (s *GenerationJobService) CreateJob(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	job := &models.GenerationJob{
		TermID:   req.TermID,
		Params:   models.GenerationJobParams{Request: req.ToModel()},
		Status:   models.GenerationJobStatusQueued,
		Progress: 0,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
		status := models.GenerationJobStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	return &dto.GenerationJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to pollers. When the job finished and its
// pending result is still held, the full result rides along.
func (s *GenerationJobService) GetStatus(ctx context.Context, id string) (*dto.GenerationJobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	resp := &dto.GenerationJobStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
		ResultID: job.ResultID,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if job.Status == models.GenerationJobStatusFinished && job.ResultID != nil && s.results != nil {
		if result, err := s.results.GetResult(*job.ResultID); err == nil {
			resp.Result = result
		}
	}
	return resp, nil
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *GenerationJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued generation jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// GenerationWorker bridges queue jobs to the pipeline.
type GenerationWorker struct {
	repo       generationJobStore
	runner     pipelineRunner
	logger     *zap.Logger
	maxRetries int
}

// NewGenerationWorker constructs a worker.
func NewGenerationWorker(repo generationJobStore, runner pipelineRunner, maxRetries int, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &GenerationWorker{
		repo:       repo,
		runner:     runner,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queued generation run, mirroring pipeline progress
// into the job row so pollers see it.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.GenerationJobStatusProcessing
	progress := 5
	if err := w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	sink := ProgressFunc(func(percent int, message string) error {
		return w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
			Progress: &percent,
			Message:  &message,
		})
	})

	result, err := w.runner.Run(ctx, record.Params.Request, sink)
	if err != nil {
		msg := err.Error()
		// Solver verdicts are deterministic; only infrastructure failures
		// are worth another attempt.
		permanent := appErrors.FromError(err).Status < http.StatusInternalServerError
		if permanent || job.Attempt >= w.maxRetries {
			failed := models.GenerationJobStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
			if permanent {
				return nil
			}
			return err
		}
		queued := models.GenerationJobStatusQueued
		reset := 0
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
		}
		return err
	}

	finished := models.GenerationJobStatusFinished
	progress = 100
	now := time.Now().UTC()
	resultID := result.ID
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultID:     &resultID,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}
