package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
)

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	ListByTerm(ctx context.Context, termID string) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
	ArchiveOthers(ctx context.Context, exec sqlx.ExtContext, termID, keepID string) error
}

type timetableSlotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
	DeleteByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) error
}

type generationTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type scheduleSolver interface {
	Solve(ctx context.Context, req models.GenerationRequest, strict bool) ([]models.TimetableSlot, error)
}

// ProgressSink receives coarse milestones while a generation run progresses.
// Implementations must tolerate being called from the generating goroutine;
// their errors are logged and never fail the run.
type ProgressSink interface {
	Progress(percent int, message string) error
}

// ProgressFunc adapts a plain function to the ProgressSink interface.
type ProgressFunc func(percent int, message string) error

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(percent int, message string) error {
	return f(percent, message)
}

// GenerationService runs the generate-degrade-analyze pipeline and manages
// the accept lifecycle for produced results.
type GenerationService struct {
	solver     scheduleSolver
	terms      generationTermReader
	timetables timetableRepository
	slots      timetableSlotRepository
	tx         txProvider
	analyzer   *ConflictAnalyzer
	builder    *ResultBuilder
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	store      *resultStore
	newID      func() string
	now        func() time.Time
	cfg        GenerationConfig
}

// GenerationConfig governs pipeline behaviour.
type GenerationConfig struct {
	ResultTTL          time.Duration
	AcceptanceFloor    float64
	CapacityHardExcess int
	MaxCourses         int
}

// NewGenerationService wires pipeline dependencies.
func NewGenerationService(
	solverImpl scheduleSolver,
	terms generationTermReader,
	timetables timetableRepository,
	slots timetableSlotRepository,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg GenerationConfig,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 30 * time.Minute
	}
	if cfg.AcceptanceFloor <= 0 {
		cfg.AcceptanceFloor = models.DefaultAcceptanceFloor
	}
	if cfg.CapacityHardExcess <= 0 {
		cfg.CapacityHardExcess = DefaultCapacityHardExcess
	}
	if cfg.MaxCourses <= 0 {
		cfg.MaxCourses = 200
	}
	return &GenerationService{
		solver:     solverImpl,
		terms:      terms,
		timetables: timetables,
		slots:      slots,
		tx:         tx,
		analyzer:   NewConflictAnalyzer(cfg.CapacityHardExcess),
		builder:    NewResultBuilder(cfg.AcceptanceFloor),
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		store:      newResultStore(cfg.ResultTTL),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		cfg:        cfg,
	}
}

// Generate runs the strict solve and degrades to a single best-effort pass
// when hard constraints block a full solution. A strict solution publishes
// directly; a degraded one stays a draft and goes through conflict analysis.
// Any solver failure other than a hard-constraint violation propagates
// without a retry.
func (s *GenerationService) Generate(ctx context.Context, req dto.GenerateTimetableRequest, sink ProgressSink) (*models.GenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	return s.Run(ctx, req.ToModel(), sink)
}

// Run executes the pipeline for an already validated request. Queued jobs
// call this directly with the request they persisted at submission time.
func (s *GenerationService) Run(ctx context.Context, request models.GenerationRequest, sink ProgressSink) (*models.GenerationResult, error) {
	if len(request.Courses) > s.cfg.MaxCourses {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d course demands are supported per run", s.cfg.MaxCourses))
	}
	if err := s.validateGrid(request); err != nil {
		return nil, err
	}
	if err := s.ensureTerm(ctx, request.TermID); err != nil {
		return nil, err
	}
	s.emit(sink, 10, "request validated")

	started := s.now()
	s.emit(sink, 25, "running strict solve")
	slots, err := s.solver.Solve(ctx, request, true)
	status := models.TimetableStatusPublished
	fallback := false
	if err != nil {
		var hardErr *models.HardConstraintError
		if !errors.As(err, &hardErr) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "strict solve failed")
		}
		s.logger.Warn("strict solve blocked by hard constraints, retrying best effort",
			zap.String("term_id", request.TermID),
			zap.Int("violations", hardErr.Violations))
		s.emit(sink, 50, "strict solve blocked, retrying best effort")

		retrySlots, retryErr := s.solver.Solve(ctx, request, false)
		if retryErr != nil {
			combined := &models.FallbackError{Strict: err, BestEffort: retryErr}
			s.observeGeneration("failed", true, s.now().Sub(started))
			return nil, appErrors.Wrap(combined, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "generation failed after fallback")
		}
		slots = retrySlots
		status = models.TimetableStatusDraft
		fallback = true
	}
	s.emit(sink, 70, "solve finished")

	for i := range slots {
		slots[i].ID = s.newID()
	}

	var conflicts []models.ConflictDetail
	if status != models.TimetableStatusPublished {
		conflicts = s.analyzer.Analyze(slots)
	}
	s.emit(sink, 85, "conflict analysis finished")

	duration := s.now().Sub(started)
	result := s.builder.Build(slots, status, conflicts, duration)
	result.ID = s.newID()
	result.TermID = request.TermID
	result.Fallback = fallback
	result.GeneratedAt = started

	s.store.Save(pendingResult{Result: result, Request: request, StoredAt: s.now()})
	s.observeGeneration(string(status), fallback, duration)
	s.metrics.RecordConflicts(result.CriticalConflicts, result.MajorConflicts, result.MinorConflicts)
	s.emit(sink, 100, "generation complete")

	s.logger.Info("generation finished",
		zap.String("result_id", result.ID),
		zap.String("term_id", result.TermID),
		zap.String("status", string(result.Status)),
		zap.Bool("fallback", fallback),
		zap.Float64("completion", result.Completion),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// GetResult returns a pending result that has not been accepted yet.
func (s *GenerationService) GetResult(resultID string) (*models.GenerationResult, error) {
	if resultID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "result id is required")
	}
	pending, ok := s.store.Get(resultID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation result not found or expired")
	}
	return pending.Result, nil
}

// Accept persists a pending result as the next timetable version for its
// term. Drafts are stored as drafts; strict solutions are stored published.
func (s *GenerationService) Accept(ctx context.Context, req dto.AcceptTimetableRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}
	pending, ok := s.store.Get(req.ResultID)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "generation result not found or expired")
	}
	if s.tx == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	result := pending.Result

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	meta, marshalErr := resultMeta(result)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
		return "", err
	}

	record := &models.Timetable{
		TermID: result.TermID,
		Status: result.Status,
		Meta:   meta,
	}
	if err = s.timetables.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable version")
		return "", err
	}

	slotRows := make([]models.TimetableSlot, len(result.Slots))
	copy(slotRows, result.Slots)
	for i := range slotRows {
		slotRows[i].TimetableID = record.ID
	}
	if err = s.slots.UpsertBatch(ctx, tx, slotRows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return "", err
	}

	if record.Status == models.TimetableStatusPublished {
		if err = s.timetables.ArchiveOthers(ctx, tx, record.TermID, record.ID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive superseded timetables")
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return "", err
	}

	s.store.Delete(req.ResultID)
	s.logger.Info("timetable accepted",
		zap.String("timetable_id", record.ID),
		zap.String("term_id", record.TermID),
		zap.String("status", string(record.Status)))
	return record.ID, nil
}

// Publish promotes a draft to published. Critical conflicts and incomplete
// grids block promotion.
func (s *GenerationService) Publish(ctx context.Context, timetableID string) (*models.GenerationResult, error) {
	if timetableID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	record, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if record.Status == models.TimetableStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable already published")
	}

	slots, err := s.slots.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}

	conflicts := s.analyzer.Analyze(slots)
	result := s.builder.Build(slots, record.Status, conflicts, 0)
	if result.CriticalConflicts > 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "critical conflicts block publication")
	}
	if result.Completion < 100 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only complete timetables can be published")
	}

	result.Status = models.TimetableStatusPublished
	result.TimetableID = &record.ID
	result.TermID = record.TermID
	result.GeneratedAt = s.now()

	meta, marshalErr := resultMeta(result)
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.timetables.UpdateStatus(ctx, tx, record.ID, models.TimetableStatusPublished, meta); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable status")
		return nil, err
	}
	if err = s.timetables.ArchiveOthers(ctx, tx, record.TermID, record.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive superseded timetables")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit publish transaction")
		return nil, err
	}

	s.logger.Info("timetable published", zap.String("timetable_id", record.ID), zap.String("term_id", record.TermID))
	return result, nil
}

// List returns stored timetable versions for a term.
func (s *GenerationService) List(ctx context.Context, termID string) ([]models.Timetable, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	list, err := s.timetables.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return list, nil
}

// Summary aggregates stored versions for list views.
func (s *GenerationService) Summary(ctx context.Context, termID string) (*models.TimetableSummary, error) {
	list, err := s.List(ctx, termID)
	if err != nil {
		return nil, err
	}
	summary := &models.TimetableSummary{TermID: termID, Versions: make([]models.TimetableOverview, 0, len(list))}
	for i := range list {
		record := list[i]
		summary.Versions = append(summary.Versions, models.TimetableOverview{
			ID:         record.ID,
			Version:    record.Version,
			Status:     record.Status,
			Completion: completionFromMeta(record.Meta),
			CreatedAt:  record.CreatedAt,
		})
		if record.Status == models.TimetableStatusPublished && summary.ActiveID == nil {
			summary.ActiveID = &list[i].ID
		}
		if record.UpdatedAt.After(summary.UpdatedAt) {
			summary.UpdatedAt = record.UpdatedAt
		}
	}
	return summary, nil
}

// GetSlots returns slot detail for a stored timetable.
func (s *GenerationService) GetSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	if timetableID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if _, err := s.timetables.FindByID(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	slots, err := s.slots.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	return slots, nil
}

// Delete removes a draft timetable version.
func (s *GenerationService) Delete(ctx context.Context, timetableID string) error {
	record, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.slots.DeleteByTimetable(ctx, nil, timetableID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable slots")
	}
	if err := s.timetables.Delete(ctx, timetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	return nil
}

func (s *GenerationService) ensureTerm(ctx context.Context, termID string) error {
	if s.terms == nil {
		return nil
	}
	if _, err := s.terms.FindByID(ctx, termID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return nil
}

func (s *GenerationService) validateGrid(req models.GenerationRequest) error {
	capacity := len(req.Days) * req.PeriodsPerDay
	perGroup := make(map[string]int)
	for _, course := range req.Courses {
		perGroup[course.GroupID] += course.WeeklyCount
	}
	groups := make([]string, 0, len(perGroup))
	for group := range perGroup {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		if perGroup[group] > capacity {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("group %s demands %d weekly slots but the grid offers %d", group, perGroup[group], capacity))
		}
	}
	return nil
}

// emit forwards a milestone to the sink. Sink failures never fail the run.
func (s *GenerationService) emit(sink ProgressSink, percent int, message string) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("progress sink panicked", zap.Int("percent", percent), zap.Any("panic", r))
		}
	}()
	if err := sink.Progress(percent, message); err != nil {
		s.logger.Warn("progress sink rejected update", zap.Int("percent", percent), zap.Error(err))
	}
}

func (s *GenerationService) observeGeneration(outcome string, fallback bool, duration time.Duration) {
	s.metrics.ObserveGeneration(outcome, fallback, duration)
}

func resultMeta(result *models.GenerationResult) (types.JSONText, error) {
	payload := map[string]any{
		"completion":       result.Completion,
		"scheduled":        result.ScheduledCourses,
		"unscheduled":      result.UnscheduledCourses,
		"critical":         result.CriticalConflicts,
		"major":            result.MajorConflicts,
		"minor":            result.MinorConflicts,
		"recommendation":   result.Recommendation,
		"fallback":         result.Fallback,
		"duration_ms":      result.DurationMS,
		"generated_at":     result.GeneratedAt,
		"acceptance_floor": result.AcceptanceFloor,
		"algorithm":        "greedy_v1",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable meta: %w", err)
	}
	return types.JSONText(data), nil
}

func completionFromMeta(meta types.JSONText) float64 {
	if len(meta) == 0 {
		return 0
	}
	var payload struct {
		Completion float64 `json:"completion"`
	}
	if err := json.Unmarshal(meta, &payload); err != nil {
		return 0
	}
	return payload.Completion
}

// --- Pending result cache ---

type pendingResult struct {
	Result   *models.GenerationResult
	Request  models.GenerationRequest
	StoredAt time.Time
}

type resultStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]pendingResult
}

func newResultStore(ttl time.Duration) *resultStore {
	return &resultStore{
		ttl:   ttl,
		items: make(map[string]pendingResult),
	}
}

func (s *resultStore) Save(pending pendingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[pending.Result.ID] = pending
}

func (s *resultStore) Get(id string) (pendingResult, bool) {
	s.mu.RLock()
	pending, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return pendingResult{}, false
	}
	if time.Since(pending.StoredAt) > s.ttl {
		s.Delete(id)
		return pendingResult{}, false
	}
	return pending, true
}

func (s *resultStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
