package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	"github.com/arkan-dika/timetable-api/internal/solver"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
)

func TestGenerationServiceGenerateStrictSuccessPublishes(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, result.Status)
	assert.False(t, result.Fallback)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 10, result.TotalCourses)
	assert.Equal(t, 10, result.ScheduledCourses)
	assert.InDelta(t, 100.0, result.Completion, 0.001)
	assert.Equal(t, models.RecommendationPublish, result.Recommendation)
	assert.True(t, result.IsSuccess())

	stored, err := fix.svc.GetResult(result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, stored.ID)
}

func TestGenerationServiceGenerateFallsBackToDraft(t *testing.T) {
	stub := &solverStub{
		strictErr: &models.HardConstraintError{Violations: 2},
		bestSlots: append(assignedTestSlots(8), unassignedTestSlots(2)...),
	}
	fix := newGenerationFixture(t, generationFixtureConfig{solver: stub})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.strictCalls)
	assert.Equal(t, 1, stub.bestCalls, "exactly one best-effort retry")
	assert.Equal(t, models.TimetableStatusDraft, result.Status)
	assert.True(t, result.Fallback)
	assert.Len(t, result.Conflicts, 2)
	for _, conflict := range result.Conflicts {
		assert.Equal(t, models.ConflictKindUnassignedResource, conflict.Kind)
		assert.Equal(t, models.ConflictSeverityMajor, conflict.Severity)
	}
	assert.Equal(t, 8, result.ScheduledCourses)
	assert.Equal(t, 2, result.UnscheduledCourses)
	assert.InDelta(t, 80.0, result.Completion, 0.001)
	assert.Equal(t, models.RecommendationRegenerate, result.Recommendation)
	assert.False(t, result.IsSuccess())
}

func TestGenerationServiceGenerateSurfacesFallbackFailure(t *testing.T) {
	strictErr := &models.HardConstraintError{Violations: 3}
	bestErr := errors.New("search space exhausted")
	stub := &solverStub{strictErr: strictErr, bestErr: bestErr}
	fix := newGenerationFixture(t, generationFixtureConfig{solver: stub})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.Error(t, err)
	require.Nil(t, result)
	assert.Equal(t, 1, stub.strictCalls)
	assert.Equal(t, 1, stub.bestCalls)

	var fallbackErr *models.FallbackError
	require.ErrorAs(t, err, &fallbackErr)
	assert.Same(t, strictErr, fallbackErr.Strict)
	assert.Same(t, bestErr, fallbackErr.BestEffort)
	assert.Equal(t, appErrors.ErrGenerationFailed.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGenerateNoFallbackOnInfrastructureError(t *testing.T) {
	stub := &solverStub{strictErr: errors.New("course dataset unreadable")}
	fix := newGenerationFixture(t, generationFixtureConfig{solver: stub})

	_, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, stub.strictCalls)
	assert.Zero(t, stub.bestCalls, "infrastructure failures must not trigger a retry")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGenerateValidatesPayload(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	req := validGenerationPayload()
	req.TermID = ""
	_, err := fix.svc.Generate(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGenerateRejectsOverloadedGrid(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	req := validGenerationPayload()
	req.Days = []int{1}
	req.PeriodsPerDay = 2
	_, err := fix.svc.Generate(context.Background(), req, nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "grid offers")
}

func TestGenerationServiceGenerateUnknownTerm(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{terms: termReaderStub{missing: true}})

	_, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceProgressSinkErrorsAreSwallowed(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	sink := &progressRecorder{fail: true}

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), sink)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, sink.percents)
	assert.Equal(t, 100, sink.percents[len(sink.percents)-1])
	for i := 1; i < len(sink.percents); i++ {
		assert.GreaterOrEqual(t, sink.percents[i], sink.percents[i-1])
	}
}

func TestGenerationServiceProgressSinkPanicIsRecovered(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), panickingSink{})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestGenerationServiceAcceptPersistsVersion(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fix := newGenerationFixture(t, generationFixtureConfig{tx: txProvider})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	id, err := fix.svc.Accept(context.Background(), dto.AcceptTimetableRequest{ResultID: result.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, fix.timetables.items, 1)
	stored := fix.timetables.items[0]
	assert.Equal(t, models.TimetableStatusPublished, stored.Status)
	assert.Equal(t, "term-1", stored.TermID)
	assert.NotEmpty(t, stored.Meta)

	slots := fix.slots.items[id]
	require.Len(t, slots, len(result.Slots))
	for _, slot := range slots {
		assert.Equal(t, id, slot.TimetableID)
	}

	_, err = fix.svc.GetResult(result.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceAcceptUnknownResult(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	_, err := fix.svc.Accept(context.Background(), dto.AcceptTimetableRequest{ResultID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceResultExpires(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})

	result, err := fix.svc.Generate(context.Background(), validGenerationPayload(), nil)
	require.NoError(t, err)

	pending := fix.svc.store.items[result.ID]
	pending.StoredAt = time.Now().Add(-2 * time.Hour)
	fix.svc.store.items[result.ID] = pending

	_, err = fix.svc.GetResult(result.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServicePublishBlocksCriticalConflicts(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	teacher := "t-1"
	roomA, roomB := "r-1", "r-2"
	fix.timetables.items = []models.Timetable{{ID: "tt-1", TermID: "term-1", Status: models.TimetableStatusDraft}}
	fix.slots.items = map[string][]models.TimetableSlot{
		"tt-1": {
			{ID: "s-1", TimetableID: "tt-1", CourseID: "math", GroupID: "g-a", GroupSize: 20, TeacherID: &teacher, RoomID: &roomA, DayOfWeek: 1, StartMinute: 450, EndMinute: 495},
			{ID: "s-2", TimetableID: "tt-1", CourseID: "physics", GroupID: "g-b", GroupSize: 20, TeacherID: &teacher, RoomID: &roomB, DayOfWeek: 1, StartMinute: 450, EndMinute: 495},
		},
	}

	_, err := fix.svc.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestGenerationServicePublishBlocksIncompleteTimetable(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	fix.timetables.items = []models.Timetable{{ID: "tt-1", TermID: "term-1", Status: models.TimetableStatusDraft}}
	fix.slots.items = map[string][]models.TimetableSlot{
		"tt-1": append(assignedTestSlots(3), unassignedTestSlots(1)...),
	}

	_, err := fix.svc.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestGenerationServicePublishPromotesCleanDraft(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fix := newGenerationFixture(t, generationFixtureConfig{tx: txProvider})
	fix.timetables.items = []models.Timetable{{ID: "tt-1", TermID: "term-1", Status: models.TimetableStatusDraft}}
	fix.slots.items = map[string][]models.TimetableSlot{"tt-1": assignedTestSlots(4)}

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := fix.svc.Publish(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, result.Status)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, models.TimetableStatusPublished, fix.timetables.items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationServicePublishArchivesSupersededVersion(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	fix := newGenerationFixture(t, generationFixtureConfig{tx: txProvider})
	fix.timetables.items = []models.Timetable{
		{ID: "tt-1", TermID: "term-1", Version: 1, Status: models.TimetableStatusPublished},
		{ID: "tt-2", TermID: "term-1", Version: 2, Status: models.TimetableStatusDraft},
	}
	fix.slots.items = map[string][]models.TimetableSlot{"tt-2": assignedTestSlots(4)}

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := fix.svc.Publish(context.Background(), "tt-2")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusArchived, fix.timetables.items[0].Status)
	assert.Equal(t, models.TimetableStatusPublished, fix.timetables.items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationServicePublishAlreadyPublished(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	fix.timetables.items = []models.Timetable{{ID: "tt-1", TermID: "term-1", Status: models.TimetableStatusPublished}}

	_, err := fix.svc.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceDeleteRefusesPublished(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	fix.timetables.items = []models.Timetable{
		{ID: "tt-1", TermID: "term-1", Status: models.TimetableStatusPublished},
		{ID: "tt-2", TermID: "term-1", Status: models.TimetableStatusDraft},
	}

	err := fix.svc.Delete(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, fix.svc.Delete(context.Background(), "tt-2"))
	require.Len(t, fix.timetables.items, 1)
}

func TestGenerationServiceSummaryMarksActiveVersion(t *testing.T) {
	fix := newGenerationFixture(t, generationFixtureConfig{})
	meta, err := resultMeta(&models.GenerationResult{Completion: 87.5})
	require.NoError(t, err)
	fix.timetables.items = []models.Timetable{
		{ID: "tt-1", TermID: "term-1", Version: 1, Status: models.TimetableStatusDraft, Meta: meta},
		{ID: "tt-2", TermID: "term-1", Version: 2, Status: models.TimetableStatusPublished, Meta: meta},
	}

	summary, err := fix.svc.Summary(context.Background(), "term-1")
	require.NoError(t, err)
	require.NotNil(t, summary.ActiveID)
	assert.Equal(t, "tt-2", *summary.ActiveID)
	require.Len(t, summary.Versions, 2)
	assert.InDelta(t, 87.5, summary.Versions[0].Completion, 0.001)
}

// --- Fixtures ---

type generationFixtureConfig struct {
	solver scheduleSolver
	terms  generationTermReader
	tx     txProvider
	cfg    GenerationConfig
}

type generationFixture struct {
	svc        *GenerationService
	timetables *timetableRepoStub
	slots      *timetableSlotRepoStub
}

func newGenerationFixture(t *testing.T, cfg generationFixtureConfig) *generationFixture {
	t.Helper()
	solverImpl := cfg.solver
	if solverImpl == nil {
		solverImpl = solver.New()
	}
	terms := cfg.terms
	if terms == nil {
		terms = termReaderStub{}
	}
	tx := cfg.tx
	if tx == nil {
		tx = noopTxProvider{}
	}
	serviceCfg := cfg.cfg
	if serviceCfg.ResultTTL == 0 {
		serviceCfg.ResultTTL = time.Hour
	}

	timetables := &timetableRepoStub{}
	slots := &timetableSlotRepoStub{}
	svc := NewGenerationService(solverImpl, terms, timetables, slots, tx, nil, validator.New(), zap.NewNop(), serviceCfg)

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return &generationFixture{svc: svc, timetables: timetables, slots: slots}
}

func validGenerationPayload() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		TermID:        "term-1",
		Days:          []int{1, 2, 3, 4, 5},
		PeriodsPerDay: 6,
		Courses: []dto.CourseDemandRequest{
			{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 28, WeeklyCount: 4, Difficulty: 9},
			{CourseID: "physics", TeacherID: "t-2", GroupID: "g-a", GroupSize: 28, WeeklyCount: 3, Difficulty: 7},
			{CourseID: "history", TeacherID: "t-3", GroupID: "g-a", GroupSize: 28, WeeklyCount: 3, Difficulty: 4},
		},
		Rooms: []dto.RoomOptionRequest{
			{RoomID: "r-101", Capacity: 30},
			{RoomID: "r-102", Capacity: 35},
		},
	}
}

func assignedTestSlots(n int) []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0, n)
	for i := 0; i < n; i++ {
		teacher := fmt.Sprintf("t-%d", i)
		room := fmt.Sprintf("r-%d", i)
		capacity := 30
		start := 450 + (i/5)*45
		slots = append(slots, models.TimetableSlot{
			CourseID:     fmt.Sprintf("course-%d", i),
			GroupID:      fmt.Sprintf("g-%d", i),
			GroupSize:    25,
			TeacherID:    &teacher,
			RoomID:       &room,
			RoomCapacity: &capacity,
			DayOfWeek:    1 + i%5,
			StartMinute:  start,
			EndMinute:    start + 45,
		})
	}
	return slots
}

func unassignedTestSlots(n int) []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0, n)
	for i := 0; i < n; i++ {
		slots = append(slots, models.TimetableSlot{
			CourseID:  fmt.Sprintf("orphan-%d", i),
			GroupID:   fmt.Sprintf("g-orphan-%d", i),
			GroupSize: 25,
		})
	}
	return slots
}

type solverStub struct {
	strictCalls int
	bestCalls   int
	strictSlots []models.TimetableSlot
	strictErr   error
	bestSlots   []models.TimetableSlot
	bestErr     error
}

func (s *solverStub) Solve(ctx context.Context, req models.GenerationRequest, strict bool) ([]models.TimetableSlot, error) {
	if strict {
		s.strictCalls++
		return s.strictSlots, s.strictErr
	}
	s.bestCalls++
	return s.bestSlots, s.bestErr
}

type termReaderStub struct {
	missing bool
}

func (s termReaderStub) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if s.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Term{ID: id}, nil
}

type timetableRepoStub struct {
	items []models.Timetable
}

func (s *timetableRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	timetable.ID = fmt.Sprintf("tt-%d", len(s.items)+1)
	timetable.Version = len(s.items) + 1
	s.items = append(s.items, *timetable)
	return nil
}

func (s *timetableRepoStub) ListByTerm(ctx context.Context, termID string) ([]models.Timetable, error) {
	return s.items, nil
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	for _, item := range s.items {
		if item.ID == id {
			found := item
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) Delete(ctx context.Context, id string) error {
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timetableRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].Status = status
			if meta != nil {
				s.items[idx].Meta = meta
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timetableRepoStub) ArchiveOthers(ctx context.Context, exec sqlx.ExtContext, termID, keepID string) error {
	for idx := range s.items {
		if s.items[idx].TermID == termID && s.items[idx].ID != keepID && s.items[idx].Status == models.TimetableStatusPublished {
			s.items[idx].Status = models.TimetableStatusArchived
		}
	}
	return nil
}

type timetableSlotRepoStub struct {
	items     map[string][]models.TimetableSlot
	listCalls int
}

func (s *timetableSlotRepoStub) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if s.items == nil {
		s.items = make(map[string][]models.TimetableSlot)
	}
	for _, slot := range slots {
		s.items[slot.TimetableID] = append(s.items[slot.TimetableID], slot)
	}
	return nil
}

func (s *timetableSlotRepoStub) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	s.listCalls++
	return s.items[timetableID], nil
}

func (s *timetableSlotRepoStub) DeleteByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) error {
	delete(s.items, timetableID)
	return nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type progressRecorder struct {
	percents []int
	fail     bool
}

func (p *progressRecorder) Progress(percent int, message string) error {
	p.percents = append(p.percents, percent)
	if p.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

type panickingSink struct{}

func (panickingSink) Progress(int, string) error {
	panic("sink exploded")
}
