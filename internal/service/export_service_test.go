package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/storage"
)

type exportAnalysisStub struct {
	result *models.GenerationResult
	err    error
}

func (s exportAnalysisStub) AnalyzeExisting(ctx context.Context, timetableID string) (*models.GenerationResult, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	return s.result, false, nil
}

type exportTimetableStub struct {
	record *models.Timetable
	err    error
}

func (s exportTimetableStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func exportFixtureResult() *models.GenerationResult {
	capacity := 30
	slots := []models.TimetableSlot{
		{ID: "slot-1", CourseID: "math", GroupID: "g-a", GroupSize: 28, TeacherID: ptrStr("t-1"), RoomID: ptrStr("r-101"), RoomCapacity: &capacity, DayOfWeek: 1, StartMinute: 450, EndMinute: 495},
		{ID: "slot-2", CourseID: "physics", GroupID: "g-a", GroupSize: 28, TeacherID: ptrStr("t-1"), RoomID: ptrStr("r-102"), RoomCapacity: &capacity, DayOfWeek: 1, StartMinute: 450, EndMinute: 495},
		{ID: "slot-3", CourseID: "history", GroupID: "g-a", GroupSize: 28},
	}
	conflicts := []models.ConflictDetail{
		{
			SlotIDs:     []string{"slot-1", "slot-2"},
			CourseIDs:   []string{"math", "physics"},
			Kind:        models.ConflictKindTeacherDoubleBooked,
			Severity:    models.ConflictSeverityCritical,
			Description: "teacher t-1 is double-booked on day 1",
		},
		{
			SlotIDs:     []string{"slot-3"},
			CourseIDs:   []string{"history"},
			Kind:        models.ConflictKindUnassignedResource,
			Severity:    models.ConflictSeverityMajor,
			Description: "course history for group g-a is missing teacher and room",
		},
	}
	return &models.GenerationResult{
		TermID:             "term-1",
		Status:             models.TimetableStatusDraft,
		Slots:              slots,
		Conflicts:          conflicts,
		TotalCourses:       3,
		ScheduledCourses:   2,
		UnscheduledCourses: 1,
		CriticalConflicts:  1,
		MajorConflicts:     1,
		Completion:         66.66666666666666,
		Recommendation:     models.RecommendationAttention,
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	record := &models.Timetable{ID: "tt-1", TermID: "term-1", Version: 2, Status: models.TimetableStatusDraft}
	svc := NewExportService(
		exportAnalysisStub{result: exportFixtureResult()},
		exportTimetableStub{record: record},
		store, signer, cfg, nil, zap.NewNop(),
	)
	return svc, store
}

func TestExportServiceCreateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	resp, err := svc.Create(context.Background(), dto.ExportRequest{TimetableID: "tt-1", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", resp.Format)
	assert.Contains(t, resp.URL, "/api/v1/exports/")
	assert.NotEmpty(t, resp.Token)

	file, relPath, err := svc.ResolveDownload(resp.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(relPath, ".csv"))

	content, err := os.ReadFile(store.Path(relPath))
	require.NoError(t, err)
	body := string(content)
	assert.Contains(t, body, "Conflict Report term-1 v2")
	assert.Contains(t, body, "Completion,66.7%")
	assert.Contains(t, body, "1 critical, 1 major, 0 minor")
	assert.Contains(t, body, "TEACHER_DOUBLE_BOOKED")
	assert.Contains(t, body, "course history for group g-a is missing teacher and room")
	assert.Contains(t, body, "Monday,07:30,08:15,math")
	assert.Contains(t, body, "Unscheduled,00:00,00:00,history,g-a,-,-")
}

func TestExportServiceCreatePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	resp, err := svc.Create(context.Background(), dto.ExportRequest{TimetableID: "tt-1", Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", resp.Format)

	file, relPath, err := svc.ResolveDownload(resp.Token)
	require.NoError(t, err)
	defer file.Close()

	info, err := os.Stat(store.Path(relPath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceValidatesFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.Create(context.Background(), dto.ExportRequest{TimetableID: "tt-1", Format: "xml"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceTimetableNotFound(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(
		exportAnalysisStub{result: exportFixtureResult()},
		exportTimetableStub{err: sql.ErrNoRows},
		store,
		storage.NewSignedURLSigner("secret", time.Hour),
		ExportConfig{},
		nil, zap.NewNop(),
	)

	_, err = svc.Create(context.Background(), dto.ExportRequest{TimetableID: "missing", Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRejectsBadToken(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, _, err := svc.ResolveDownload("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCleanupRemovesExpiredFiles(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	resp, err := svc.Create(context.Background(), dto.ExportRequest{TimetableID: "tt-1", Format: "csv"})
	require.NoError(t, err)
	file, relPath, err := svc.ResolveDownload(resp.Token)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(relPath), stale, stale))

	svc.cleanupExpired()
	_, err = os.Stat(store.Path(relPath))
	assert.True(t, os.IsNotExist(err))
}
