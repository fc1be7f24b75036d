package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/models"
	"github.com/arkan-dika/timetable-api/internal/service"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/response"
)

const maxCoursePayload = 512

type generationOrchestrator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest, sink service.ProgressSink) (*models.GenerationResult, error)
	GetResult(resultID string) (*models.GenerationResult, error)
	Accept(ctx context.Context, req dto.AcceptTimetableRequest) (string, error)
	Publish(ctx context.Context, timetableID string) (*models.GenerationResult, error)
}

// GenerationHandler exposes the synchronous generation pipeline.
type GenerationHandler struct {
	service generationOrchestrator
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// Generate godoc
// @Summary Generate a timetable for a term
// @Description Runs the strict solve with a single best-effort fallback and returns the classified result. The result is held in memory until accepted.
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	if len(req.Courses) > maxCoursePayload {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courses exceeds supported limit"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Result godoc
// @Summary Fetch a pending generation result
// @Tags Generation
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/results/{id} [get]
func (h *GenerationHandler) Result(c *gin.Context) {
	result, err := h.service.GetResult(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Accept godoc
// @Summary Accept a pending result and persist it as a new version
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.AcceptTimetableRequest true "Accept payload"
// @Success 201 {object} response.Envelope
// @Router /timetables/accept [post]
func (h *GenerationHandler) Accept(c *gin.Context) {
	var req dto.AcceptTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accept payload"))
		return
	}
	id, err := h.service.Accept(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.AcceptTimetableResponse{TimetableID: id})
}

// Publish godoc
// @Summary Publish a stored draft timetable
// @Description Re-analyzes the stored slots and refuses when critical conflicts remain or the schedule is incomplete.
// @Tags Generation
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/publish [post]
func (h *GenerationHandler) Publish(c *gin.Context) {
	result, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
