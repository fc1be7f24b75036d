package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
)

type analysisTimetableReader interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	ListByTerm(ctx context.Context, termID string) ([]models.Timetable, error)
}

type analysisSlotReader interface {
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
}

// AnalysisServiceConfig tunes re-analysis behaviour.
type AnalysisServiceConfig struct {
	CacheTTL         time.Duration
	SweepConcurrency int
}

// AnalysisService re-runs conflict analysis over persisted timetables. The
// pipeline itself analyzes in memory during generation; this service covers
// stored versions whose slots may have drifted since they were produced.
type AnalysisService struct {
	timetables analysisTimetableReader
	slots      analysisSlotReader
	analyzer   *ConflictAnalyzer
	builder    *ResultBuilder
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
	cfg        AnalysisServiceConfig
}

// NewAnalysisService constructs an AnalysisService with sane defaults.
func NewAnalysisService(
	timetables analysisTimetableReader,
	slots analysisSlotReader,
	analyzer *ConflictAnalyzer,
	builder *ResultBuilder,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg AnalysisServiceConfig,
) *AnalysisService {
	if analyzer == nil {
		analyzer = NewConflictAnalyzer(0)
	}
	if builder == nil {
		builder = NewResultBuilder(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	return &AnalysisService{
		timetables: timetables,
		slots:      slots,
		analyzer:   analyzer,
		builder:    builder,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		cfg:        cfg,
	}
}

// AnalyzeExisting reloads a stored timetable and re-runs conflict analysis
// over its slots. The boolean reports whether the response came from cache.
// Cache keys embed the record's update timestamp so edits invalidate
// naturally.
func (s *AnalysisService) AnalyzeExisting(ctx context.Context, timetableID string) (*models.GenerationResult, bool, error) {
	if timetableID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	record, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	cacheKey := fmt.Sprintf("analysis:%s:%d", record.ID, record.UpdatedAt.UTC().UnixNano())
	if cached, hit, err := s.tryAnalysisCache(ctx, cacheKey); err != nil {
		return nil, false, err
	} else if hit {
		return cached, true, nil
	}

	slots, err := s.slots.ListByTimetable(ctx, timetableID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}

	conflicts := s.analyzer.Analyze(slots)
	result := s.builder.Build(slots, record.Status, conflicts, 0)
	result.TermID = record.TermID
	result.TimetableID = &record.ID
	result.GeneratedAt = s.now()

	s.metrics.RecordConflicts(result.CriticalConflicts, result.MajorConflicts, result.MinorConflicts)
	s.persistAnalysisCache(ctx, cacheKey, result)

	s.logger.Info("timetable re-analyzed",
		zap.String("timetable_id", record.ID),
		zap.String("term_id", record.TermID),
		zap.Float64("completion", result.Completion),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, false, nil
}

// SweepTerm re-analyzes every stored version of a term concurrently and
// returns a compact per-version summary, newest version first.
func (s *AnalysisService) SweepTerm(ctx context.Context, termID string) (*dto.TermAnalysisResponse, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	list, err := s.timetables.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}

	entries := make([]dto.TermAnalysisEntry, len(list))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for i := range list {
		i := i
		record := list[i]
		g.Go(func() error {
			result, _, err := s.AnalyzeExisting(gCtx, record.ID)
			if err != nil {
				return err
			}
			entries[i] = dto.TermAnalysisEntry{
				TimetableID:       record.ID,
				Version:           record.Version,
				Status:            record.Status,
				Completion:        result.Completion,
				CriticalConflicts: result.CriticalConflicts,
				MajorConflicts:    result.MajorConflicts,
				MinorConflicts:    result.MinorConflicts,
				Recommendation:    result.Recommendation,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &dto.TermAnalysisResponse{
		TermID:   termID,
		Analyzed: len(entries),
		Entries:  entries,
	}, nil
}

func (s *AnalysisService) tryAnalysisCache(ctx context.Context, key string) (*models.GenerationResult, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached models.GenerationResult
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, false, err
	}
	if hit {
		return &cached, true, nil
	}
	return nil, false, nil
}

func (s *AnalysisService) persistAnalysisCache(ctx context.Context, key string, result *models.GenerationResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("analysis cache store failed", zap.String("key", key), zap.Error(err))
	}
}
