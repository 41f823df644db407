package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/response"
)

type nonConformityService interface {
	ListNonConformities(ctx context.Context, query dto.NonConformityQuery, actor *models.AuthorizationContext) ([]models.NonConformity, *models.Pagination, error)
	UpdateNonConformityStatus(ctx context.Context, id string, req dto.NonConformityStatusRequest, actor *models.AuthorizationContext) (*models.NonConformity, error)
}

// NonConformityHandler exposes finding endpoints.
type NonConformityHandler struct {
	service nonConformityService
}

// NewNonConformityHandler constructs the handler.
func NewNonConformityHandler(svc nonConformityService) *NonConformityHandler {
	return &NonConformityHandler{service: svc}
}

// List godoc
// @Summary List non-conformities
// @Tags NonConformities
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param severity query string false "Severity filter"
// @Param execution_id query string false "Execution filter"
// @Param restaurant_id query string false "Restaurant filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /non-conformities [get]
func (h *NonConformityHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	query := dto.NonConformityQuery{
		Status:       queryList(c, "status"),
		Severity:     strings.TrimSpace(c.Query("severity")),
		ExecutionID:  strings.TrimSpace(c.Query("execution_id")),
		RestaurantID: strings.TrimSpace(c.Query("restaurant_id")),
	}
	query.Page, query.PageSize = pageParams(c)

	items, pagination, err := h.service.ListNonConformities(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UpdateStatus godoc
// @Summary Advance a non-conformity status
// @Tags NonConformities
// @Accept json
// @Produce json
// @Param id path string true "Non-conformity ID"
// @Param payload body dto.NonConformityStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /non-conformities/{id}/status [put]
func (h *NonConformityHandler) UpdateStatus(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.NonConformityStatusRequest
	if !bindJSON(c, &req, "status") {
		return
	}
	nc, err := h.service.UpdateNonConformityStatus(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, nc, nil)
}
