package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/service"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/response"
)

type jobSubmitter interface {
	CreateJob(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.GenerationJobStatusResponse, error)
}

// GenerationJobHandler exposes the asynchronous generation queue.
type GenerationJobHandler struct {
	service jobSubmitter
}

// NewGenerationJobHandler constructs the handler.
func NewGenerationJobHandler(svc *service.GenerationJobService) *GenerationJobHandler {
	return &GenerationJobHandler{service: svc}
}

// Create godoc
// @Summary Queue a generation run
// @Description Persists the request and processes it in the background. Poll the status endpoint for progress.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Router /jobs/generation [post]
func (h *GenerationJobHandler) Create(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	resp, err := h.service.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, resp, nil)
}

// Status godoc
// @Summary Poll a queued generation run
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/generation/{id} [get]
func (h *GenerationJobHandler) Status(c *gin.Context) {
	resp, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
