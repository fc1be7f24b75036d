package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/models"
	"github.com/arkan-dika/timetable-api/internal/repository"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/jobs"
)

type generationJobRepoStub struct {
	jobs map[string]*models.GenerationJob
}

func newGenerationJobRepoStub() *generationJobRepoStub {
	return &generationJobRepoStub{jobs: map[string]*models.GenerationJob{}}
}

func (r *generationJobRepoStub) Create(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *generationJobRepoStub) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *generationJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateGenerationJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.Message != nil {
		job.Message = params.Message
	}
	if params.ResultID != nil {
		job.ResultID = params.ResultID
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *generationJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	var queued []models.GenerationJob
	for _, job := range r.jobs {
		if job.Status == models.GenerationJobStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

type genQueueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *genQueueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type runnerStub struct {
	calls    int
	result   *models.GenerationResult
	err      error
	sinkLog  []int
	sinkMsgs []string
}

func (r *runnerStub) Run(ctx context.Context, request models.GenerationRequest, sink ProgressSink) (*models.GenerationResult, error) {
	r.calls++
	if sink != nil {
		for _, milestone := range []int{25, 70, 100} {
			_ = sink.Progress(milestone, "working")
			r.sinkLog = append(r.sinkLog, milestone)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type resultReaderStub struct {
	result *models.GenerationResult
	err    error
}

func (r resultReaderStub) GetResult(resultID string) (*models.GenerationResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func TestGenerationJobServiceCreateJob(t *testing.T) {
	repo := newGenerationJobRepoStub()
	queue := &genQueueStub{}
	svc := NewGenerationJobService(repo, queue, nil, nil, zap.NewNop())

	resp, err := svc.CreateJob(context.Background(), validGenerationPayload())
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobStatusQueued, resp.Status)
	assert.Equal(t, 0, resp.Progress)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)
	assert.Equal(t, "generation", queue.jobs[0].Type)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "term-1", stored.TermID)
	assert.Equal(t, len(validGenerationPayload().Courses), len(stored.Params.Request.Courses))
}

func TestGenerationJobServiceCreateJobValidates(t *testing.T) {
	repo := newGenerationJobRepoStub()
	queue := &genQueueStub{}
	svc := NewGenerationJobService(repo, queue, nil, nil, zap.NewNop())

	payload := validGenerationPayload()
	payload.TermID = ""
	_, err := svc.CreateJob(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.jobs)
	assert.Empty(t, repo.jobs)
}

func TestGenerationJobServiceCreateJobEnqueueFailure(t *testing.T) {
	repo := newGenerationJobRepoStub()
	queue := &genQueueStub{err: assert.AnError}
	svc := NewGenerationJobService(repo, queue, nil, nil, zap.NewNop())

	_, err := svc.CreateJob(context.Background(), validGenerationPayload())
	require.Error(t, err)

	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.GenerationJobStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, "failed to enqueue job", *job.ErrorMessage)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestGenerationJobServiceGetStatusNotFound(t *testing.T) {
	svc := NewGenerationJobService(newGenerationJobRepoStub(), &genQueueStub{}, nil, nil, zap.NewNop())

	_, err := svc.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationJobServiceGetStatusAttachesResult(t *testing.T) {
	repo := newGenerationJobRepoStub()
	resultID := "res-1"
	repo.jobs["job-1"] = &models.GenerationJob{
		ID:       "job-1",
		TermID:   "term-1",
		Status:   models.GenerationJobStatusFinished,
		Progress: 100,
		ResultID: &resultID,
	}
	pending := &models.GenerationResult{ID: resultID, Completion: 100}
	svc := NewGenerationJobService(repo, &genQueueStub{}, resultReaderStub{result: pending}, nil, zap.NewNop())

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobStatusFinished, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, resultID, resp.Result.ID)
}

func TestGenerationJobServiceGetStatusExpiredResultOmitted(t *testing.T) {
	repo := newGenerationJobRepoStub()
	resultID := "res-1"
	repo.jobs["job-1"] = &models.GenerationJob{
		ID:       "job-1",
		Status:   models.GenerationJobStatusFinished,
		Progress: 100,
		ResultID: &resultID,
	}
	svc := NewGenerationJobService(repo, &genQueueStub{}, resultReaderStub{err: appErrors.ErrNotFound}, nil, zap.NewNop())

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.ResultID)
	assert.Equal(t, resultID, *resp.ResultID)
}

func TestGenerationJobServiceRecoverPendingJobs(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusQueued}
	repo.jobs["job-2"] = &models.GenerationJob{ID: "job-2", Status: models.GenerationJobStatusFinished}
	queue := &genQueueStub{}
	svc := NewGenerationJobService(repo, queue, nil, nil, zap.NewNop())

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "job-1", queue.jobs[0].ID)
}

func TestGenerationWorkerHandleSuccess(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusQueued}
	runner := &runnerStub{result: &models.GenerationResult{ID: "res-9", Completion: 100}}
	worker := NewGenerationWorker(repo, runner, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)

	job := repo.jobs["job-1"]
	assert.Equal(t, models.GenerationJobStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultID)
	assert.Equal(t, "res-9", *job.ResultID)
	assert.NotNil(t, job.FinishedAt)
	assert.Equal(t, 1, runner.calls)
}

func TestGenerationWorkerMirrorsProgress(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusQueued}
	runner := &runnerStub{result: &models.GenerationResult{ID: "res-9"}}
	worker := NewGenerationWorker(repo, runner, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, []int{25, 70, 100}, runner.sinkLog)
	require.NotNil(t, repo.jobs["job-1"].Message)
	assert.Equal(t, "working", *repo.jobs["job-1"].Message)
}

func TestGenerationWorkerPermanentFailureDoesNotRetry(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusQueued}
	runner := &runnerStub{err: appErrors.Clone(appErrors.ErrGenerationFailed, "generation failed after fallback")}
	worker := NewGenerationWorker(repo, runner, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	assert.NoError(t, err)

	job := repo.jobs["job-1"]
	assert.Equal(t, models.GenerationJobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "generation failed after fallback")
	assert.NotNil(t, job.FinishedAt)
}

func TestGenerationWorkerTransientFailureRequeues(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusProcessing}
	runner := &runnerStub{err: appErrors.Clone(appErrors.ErrInternal, "database unavailable")}
	worker := NewGenerationWorker(repo, runner, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	require.Error(t, err)

	job := repo.jobs["job-1"]
	assert.Equal(t, models.GenerationJobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	require.NotNil(t, job.ErrorMessage)
}

func TestGenerationWorkerTransientFailureExhaustsRetries(t *testing.T) {
	repo := newGenerationJobRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationJobStatusProcessing}
	runner := &runnerStub{err: appErrors.Clone(appErrors.ErrInternal, "database unavailable")}
	worker := NewGenerationWorker(repo, runner, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 3})
	require.Error(t, err)
	assert.Equal(t, models.GenerationJobStatusFailed, repo.jobs["job-1"].Status)
}

func TestGenerationWorkerUnknownJob(t *testing.T) {
	worker := NewGenerationWorker(newGenerationJobRepoStub(), &runnerStub{}, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "missing"})
	require.Error(t, err)
}
