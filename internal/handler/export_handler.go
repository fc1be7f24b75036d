package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arkan-dika/timetable-api/internal/dto"
	"github.com/arkan-dika/timetable-api/internal/service"
	appErrors "github.com/arkan-dika/timetable-api/pkg/errors"
	"github.com/arkan-dika/timetable-api/pkg/response"
)

type exportCreator interface {
	Create(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error)
	ResolveDownload(token string) (*os.File, string, error)
}

// ExportHandler exposes conflict-report exports.
type ExportHandler struct {
	service exportCreator
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Render a conflict report for a stored timetable
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	resp, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Download godoc
// @Summary Download a rendered export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, relPath, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(relPath)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mimeForExport(relPath), file, nil)
}

func mimeForExport(relPath string) string {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
