package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/export"
	"github.com/arkan-dika/timetable-api/pkg/storage"
)

type exportAnalysisSource interface {
	AnalyzeExisting(ctx context.Context, timetableID string) (*models.GenerationResult, bool, error)
}

type exportTimetableReader interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(report export.Report) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportService renders conflict reports for stored timetables, persists the
// files and hands out signed download tokens.
type ExportService struct {
	analysis   exportAnalysisSource
	timetables exportTimetableReader
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(analysis exportAnalysisSource, timetables exportTimetableReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		analysis:   analysis,
		timetables: timetables,
		storage:    store,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		signer:     signer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Create renders the conflict report for a stored timetable and returns the
// signed download location.
func (s *ExportService) Create(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	record, err := s.timetables.FindByID(ctx, req.TimetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	result, _, err := s.analysis.AnalyzeExisting(ctx, req.TimetableID)
	if err != nil {
		return nil, err
	}

	report := buildConflictReport(record, result)
	var payload []byte
	switch req.Format {
	case "csv":
		payload, err = s.csv.Render(report)
	case "pdf":
		payload, err = s.pdf.Render(report)
	default:
		err = fmt.Errorf("unsupported format %s", req.Format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(record, req.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export rendered",
		zap.String("timetable_id", record.ID),
		zap.String("format", req.Format),
		zap.String("file", relPath),
	)
	return &dto.ExportResponse{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:    req.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a token and opens the stored file.
func (s *ExportService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, relPath, nil
}

// StartCleanup boots a goroutine that purges expired export files periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

func (s *ExportService) cleanupExpired() {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Sugar().Warnw("export cleanup failed", "error", err)
		return
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("expired exports removed", "count", len(deleted))
	}
}

func (s *ExportService) buildFilename(record *models.Timetable, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	termPart := sanitizeFilename(record.TermID)
	return fmt.Sprintf("conflicts_%s_v%d_%s.%s", termPart, record.Version, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func buildConflictReport(record *models.Timetable, result *models.GenerationResult) export.Report {
	summary := []export.SummaryRow{
		{Label: "Term", Value: record.TermID},
		{Label: "Timetable", Value: record.ID},
		{Label: "Version", Value: fmt.Sprintf("%d", record.Version)},
		{Label: "Status", Value: string(record.Status)},
		{Label: "Scheduled", Value: fmt.Sprintf("%d of %d", result.ScheduledCourses, result.TotalCourses)},
		{Label: "Completion", Value: fmt.Sprintf("%.1f%%", result.Completion)},
		{Label: "Conflicts", Value: fmt.Sprintf("%d critical, %d major, %d minor", result.CriticalConflicts, result.MajorConflicts, result.MinorConflicts)},
		{Label: "Recommendation", Value: result.Recommendation},
	}

	conflictRows := make([]map[string]string, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		conflictRows = append(conflictRows, map[string]string{
			"Severity":    string(conflict.Severity),
			"Kind":        string(conflict.Kind),
			"Description": conflict.Description,
			"Slots":       strings.Join(conflict.SlotIDs, " "),
			"Courses":     strings.Join(conflict.CourseIDs, " "),
		})
	}

	scheduleRows := make([]map[string]string, 0, len(result.Slots))
	for _, slot := range result.Slots {
		scheduleRows = append(scheduleRows, map[string]string{
			"Day":     dayName(slot.DayOfWeek),
			"Start":   minuteClock(slot.StartMinute),
			"End":     minuteClock(slot.EndMinute),
			"Course":  slot.CourseID,
			"Group":   slot.GroupID,
			"Teacher": derefOr(slot.TeacherID, "-"),
			"Room":    derefOr(slot.RoomID, "-"),
		})
	}

	return export.Report{
		Title:   fmt.Sprintf("Conflict Report %s v%d", record.TermID, record.Version),
		Summary: summary,
		Sections: []export.Section{
			{
				Heading: "Conflicts",
				Data: export.Dataset{
					Headers: []string{"Severity", "Kind", "Description", "Slots", "Courses"},
					Rows:    conflictRows,
				},
			},
			{
				Heading: "Schedule",
				Data: export.Dataset{
					Headers: []string{"Day", "Start", "End", "Course", "Group", "Teacher", "Room"},
					Rows:    scheduleRows,
				},
			},
		},
	}
}

func dayName(day int) string {
	names := []string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	if day < 1 || day >= len(names) {
		return "Unscheduled"
	}
	return names[day]
}

func minuteClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func derefOr(ptr *string, fallback string) string {
	if ptr == nil || *ptr == "" {
		return fallback
	}
	return *ptr
}
