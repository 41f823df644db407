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

type correctiveActionService interface {
	Create(ctx context.Context, req dto.CreateCorrectiveActionRequest, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error)
	Update(ctx context.Context, id string, req dto.UpdateCorrectiveActionRequest, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error)
	Archive(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error)
	List(ctx context.Context, query dto.CorrectiveActionQuery, actor *models.AuthorizationContext) ([]models.CorrectiveActionView, *models.Pagination, error)
}

// CorrectiveActionHandler exposes remediation endpoints.
type CorrectiveActionHandler struct {
	service correctiveActionService
}

// NewCorrectiveActionHandler constructs the handler.
func NewCorrectiveActionHandler(svc correctiveActionService) *CorrectiveActionHandler {
	return &CorrectiveActionHandler{service: svc}
}

// List godoc
// @Summary List corrective actions
// @Tags CorrectiveActions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param assigned_to query string false "Assignee filter"
// @Param non_conformity_id query string false "Finding filter"
// @Param overdue query bool false "Only overdue actions"
// @Param include_archived query bool false "Include archived actions"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /corrective-actions [get]
func (h *CorrectiveActionHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	query := dto.CorrectiveActionQuery{
		Status:          queryList(c, "status"),
		AssignedTo:      strings.TrimSpace(c.Query("assigned_to")),
		NonConformityID: strings.TrimSpace(c.Query("non_conformity_id")),
		Overdue:         queryBool(c, "overdue"),
		IncludeArchived: queryBool(c, "include_archived"),
	}
	query.Page, query.PageSize = pageParams(c)

	actions, pagination, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, pagination)
}

// Create godoc
// @Summary Assign a corrective action
// @Tags CorrectiveActions
// @Accept json
// @Produce json
// @Param payload body dto.CreateCorrectiveActionRequest true "Action payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /corrective-actions [post]
func (h *CorrectiveActionHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.CreateCorrectiveActionRequest
	if !bindJSON(c, &req, "corrective action") {
		return
	}
	view, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Update godoc
// @Summary Edit a corrective action or change its status
// @Tags CorrectiveActions
// @Accept json
// @Produce json
// @Param id path string true "Corrective action ID"
// @Param payload body dto.UpdateCorrectiveActionRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /corrective-actions/{id} [put]
func (h *CorrectiveActionHandler) Update(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.UpdateCorrectiveActionRequest
	if !bindJSON(c, &req, "corrective action") {
		return
	}
	view, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Archive godoc
// @Summary Archive a completed corrective action
// @Tags CorrectiveActions
// @Produce json
// @Param id path string true "Corrective action ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /corrective-actions/{id}/archive [put]
func (h *CorrectiveActionHandler) Archive(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	view, err := h.service.Archive(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
