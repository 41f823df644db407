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

type executionService interface {
	Schedule(ctx context.Context, req dto.ScheduleAuditRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error)
	Reschedule(ctx context.Context, id string, req dto.RescheduleAuditRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error)
	Delete(ctx context.Context, id string, actor *models.AuthorizationContext) error
	Transition(ctx context.Context, id string, req dto.ExecutionStatusRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error)
	List(ctx context.Context, query dto.ExecutionQuery, actor *models.AuthorizationContext) ([]models.ExecutionView, *models.Pagination, error)
	Grouped(ctx context.Context, query dto.ExecutionQuery, actor *models.AuthorizationContext) (*models.ExecutionGroups, error)
	Get(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.ExecutionDetail, error)
}

type responseRecorder interface {
	RecordResponse(ctx context.Context, executionID string, req dto.RecordResponseRequest, actor *models.AuthorizationContext) (*models.ResponseOutcome, error)
}

// ExecutionHandler exposes audit execution endpoints.
type ExecutionHandler struct {
	service   executionService
	responses responseRecorder
}

// NewExecutionHandler constructs the handler.
func NewExecutionHandler(svc executionService, responses responseRecorder) *ExecutionHandler {
	return &ExecutionHandler{service: svc, responses: responses}
}

// List godoc
// @Summary List audit executions
// @Description With group=true the active executions are returned as overdue/today/upcoming/future buckets.
// @Tags Audits
// @Produce json
// @Param group query bool false "Group by due window"
// @Param status query string false "Comma separated statuses"
// @Param restaurant_id query string false "Restaurant filter"
// @Param inspector_id query string false "Inspector filter"
// @Param template_id query string false "Template filter"
// @Param date_from query string false "Scheduled on or after (YYYY-MM-DD)"
// @Param date_to query string false "Scheduled on or before (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audits [get]
func (h *ExecutionHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	query := dto.ExecutionQuery{
		Status:       queryList(c, "status"),
		RestaurantID: strings.TrimSpace(c.Query("restaurant_id")),
		InspectorID:  strings.TrimSpace(c.Query("inspector_id")),
		TemplateID:   strings.TrimSpace(c.Query("template_id")),
		DateFrom:     strings.TrimSpace(c.Query("date_from")),
		DateTo:       strings.TrimSpace(c.Query("date_to")),
	}
	query.Page, query.PageSize = pageParams(c)

	if queryBool(c, "group") {
		groups, err := h.service.Grouped(c.Request.Context(), query, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, groups, nil)
		return
	}

	executions, pagination, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, executions, pagination)
}

// Get godoc
// @Summary Get audit execution with items, responses and findings
// @Tags Audits
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id} [get]
func (h *ExecutionHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Schedule godoc
// @Summary Schedule an audit
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleAuditRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits [post]
func (h *ExecutionHandler) Schedule(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.ScheduleAuditRequest
	if !bindJSON(c, &req, "audit") {
		return
	}
	view, err := h.service.Schedule(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Reschedule godoc
// @Summary Reschedule a not-started audit
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Execution ID"
// @Param payload body dto.RescheduleAuditRequest true "New date, inspector or notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audits/{id} [patch]
func (h *ExecutionHandler) Reschedule(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.RescheduleAuditRequest
	if !bindJSON(c, &req, "reschedule") {
		return
	}
	view, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Delete godoc
// @Summary Cancel a not-started audit
// @Tags Audits
// @Param id path string true "Execution ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /audits/{id} [delete]
func (h *ExecutionHandler) Delete(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Transition godoc
// @Summary Move an audit to in_progress, completed or reviewed
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Execution ID"
// @Param payload body dto.ExecutionStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audits/{id}/status [patch]
func (h *ExecutionHandler) Transition(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.ExecutionStatusRequest
	if !bindJSON(c, &req, "status") {
		return
	}
	view, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// RecordResponse godoc
// @Summary Record or overwrite the answer to one item
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Execution ID"
// @Param payload body dto.RecordResponseRequest true "Answer"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audits/{id}/responses [post]
func (h *ExecutionHandler) RecordResponse(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.RecordResponseRequest
	if !bindJSON(c, &req, "response") {
		return
	}
	outcome, err := h.responses.RecordResponse(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}
