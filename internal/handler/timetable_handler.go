package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/middleware"
	"github.com/arkan-dika/timetable-api/internal/models"
	"github.com/arkan-dika/timetable-api/internal/service"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/response"
)

type timetableDirectory interface {
	List(ctx context.Context, termID string) ([]models.Timetable, error)
	Summary(ctx context.Context, termID string) (*models.TimetableSummary, error)
	GetSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
	Delete(ctx context.Context, timetableID string) error
}

type timetableAnalyzer interface {
	AnalyzeExisting(ctx context.Context, timetableID string) (*models.GenerationResult, bool, error)
	SweepTerm(ctx context.Context, termID string) (*dto.TermAnalysisResponse, error)
}

// TimetableHandler exposes stored timetable versions and their analysis.
type TimetableHandler struct {
	directory timetableDirectory
	analysis  timetableAnalyzer
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(directory *service.GenerationService, analysis *service.AnalysisService) *TimetableHandler {
	return &TimetableHandler{directory: directory, analysis: analysis}
}

// List godoc
// @Summary List timetable versions for a term
// @Tags Timetables
// @Produce json
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	termID := c.Query("termId")
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId required"))
		return
	}
	result, err := h.directory.List(c.Request.Context(), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Version counts and active version for a term
// @Tags Timetables
// @Produce json
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/summary [get]
func (h *TimetableHandler) Summary(c *gin.Context) {
	termID := c.Query("termId")
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId required"))
		return
	}
	summary, err := h.directory.Summary(c.Request.Context(), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Slots godoc
// @Summary Slots of a stored timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [get]
func (h *TimetableHandler) Slots(c *gin.Context) {
	slots, err := h.directory.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Delete godoc
// @Summary Delete a draft timetable version
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.directory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Analyze godoc
// @Summary Conflict analysis for a stored timetable
// @Description Re-runs the analyzer over persisted slots. Results are cached per timetable revision.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/analysis [get]
func (h *TimetableHandler) Analyze(c *gin.Context) {
	start := time.Now()
	result, cacheHit, err := h.analysis.AnalyzeExisting(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// SweepTerm godoc
// @Summary Analyze every timetable version of a term
// @Tags Timetables
// @Produce json
// @Param id path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /terms/{id}/analysis [get]
func (h *TimetableHandler) SweepTerm(c *gin.Context) {
	result, err := h.analysis.SweepTerm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
