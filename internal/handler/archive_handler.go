package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/middleware"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/response"
)

type archiveService interface {
	ArchiveExecution(ctx context.Context, executionID string, actor *models.AuthorizationContext) (*models.AuditArchive, error)
	List(ctx context.Context, query dto.ArchiveQuery, actor *models.AuthorizationContext) ([]models.AuditArchive, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.AuditArchive, error)
	Stats(ctx context.Context, actor *models.AuthorizationContext) (*models.ArchiveStats, bool, error)
	Export(ctx context.Context, id, format string, actor *models.AuthorizationContext) (*dto.ExportFile, error)
}

// ArchiveHandler exposes audit archive endpoints.
type ArchiveHandler struct {
	service archiveService
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(svc archiveService) *ArchiveHandler {
	return &ArchiveHandler{service: svc}
}

// ArchiveExecution godoc
// @Summary Archive a completed or reviewed audit
// @Tags Archives
// @Produce json
// @Param executionId path string true "Execution ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audit-archives/archive/{executionId} [post]
func (h *ArchiveHandler) ArchiveExecution(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	archive, err := h.service.ArchiveExecution(c.Request.Context(), c.Param("executionId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archive)
}

// List godoc
// @Summary List audit archives
// @Tags Archives
// @Produce json
// @Param category query string false "Template category"
// @Param restaurant_name query string false "Restaurant name contains"
// @Param inspector_name query string false "Inspector name contains"
// @Param date_from query string false "Completed on or after (YYYY-MM-DD)"
// @Param date_to query string false "Completed on or before (YYYY-MM-DD)"
// @Param min_score query number false "Minimum score percentage"
// @Param max_score query number false "Maximum score percentage"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-archives [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	query := dto.ArchiveQuery{
		Category:       strings.TrimSpace(c.Query("category")),
		RestaurantName: c.Query("restaurant_name"),
		InspectorName:  c.Query("inspector_name"),
		DateFrom:       c.Query("date_from"),
		DateTo:         c.Query("date_to"),
	}
	var err error
	if query.MinScore, err = queryFloat(c, "min_score"); err != nil {
		response.Error(c, err)
		return
	}
	if query.MaxScore, err = queryFloat(c, "max_score"); err != nil {
		response.Error(c, err)
		return
	}
	query.Page, query.PageSize = pageParams(c)

	archives, pagination, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, archives, pagination)
}

// Stats godoc
// @Summary Archive statistics for the tenant
// @Tags Archives
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audit-archives/stats [get]
func (h *ArchiveHandler) Stats(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	stats, hit, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get an audit archive
// @Tags Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-archives/{id} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	archive, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, archive, nil)
}

// Export godoc
// @Summary Download an archive as PDF or CSV
// @Tags Archives
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Archive ID"
// @Param format query string false "pdf (default) or csv"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /audit-archives/{id}/export [get]
func (h *ArchiveHandler) Export(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "pdf"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
