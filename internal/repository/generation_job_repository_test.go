package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkan-dika/timetable-api/internal/models"
)

func newGenerationJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGenerationJobRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newGenerationJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
		WithArgs(sqlmock.AnyArg(), "term-1", sqlmock.AnyArg(), string(models.GenerationJobStatusQueued), 0,
			nil, nil, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.GenerationJob{
		TermID: "term-1",
		Params: models.GenerationJobParams{Request: models.GenerationRequest{TermID: "term-1"}},
	}
	err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.GenerationJobStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newGenerationJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	rows := sqlmock.NewRows([]string{"id", "term_id", "params", "status", "progress", "message", "result_id", "error_message", "created_at", "finished_at"}).
		AddRow("job-1", "term-1", []byte(`{"request":{"term_id":"term-1"}}`), string(models.GenerationJobStatusProcessing), 40, nil, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationJobStatusProcessing, job.Status)
	assert.Equal(t, "term-1", job.Params.Request.TermID)
	assert.Nil(t, job.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newGenerationJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs(string(models.GenerationJobStatusProcessing), 5, "job-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	status := models.GenerationJobStatusProcessing
	progress := 5
	err := repo.Update(context.Background(), "job-1", UpdateGenerationJobParams{Status: &status, Progress: &progress})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newGenerationJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	err := repo.Update(context.Background(), "job-1", UpdateGenerationJobParams{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationJobRepositoryListQueuedDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newGenerationJobRepoMock(t)
	defer cleanup()
	repo := NewGenerationJobRepository(db)

	rows := sqlmock.NewRows([]string{"id", "term_id", "params", "status", "progress", "message", "result_id", "error_message", "created_at", "finished_at"}).
		AddRow("job-1", "term-1", []byte(`{"request":{"term_id":"term-1"}}`), string(models.GenerationJobStatusQueued), 0, nil, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
