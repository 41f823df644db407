package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/response"
)

type templateService interface {
	List(ctx context.Context, filter models.TemplateFilter) ([]models.AuditTemplate, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.AuditTemplate, error)
	Create(ctx context.Context, req dto.CreateTemplateRequest, actor *models.AuthorizationContext) (*models.AuditTemplate, error)
	Update(ctx context.Context, id string, req dto.UpdateTemplateRequest, actor *models.AuthorizationContext) (*models.AuditTemplate, error)
	Delete(ctx context.Context, id string, actor *models.AuthorizationContext) error
}

// TemplateHandler exposes audit template endpoints.
type TemplateHandler struct {
	service templateService
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(svc templateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// List godoc
// @Summary List audit templates
// @Tags Templates
// @Produce json
// @Param category query string false "Category filter"
// @Param active query bool false "Only active or inactive templates"
// @Param search query string false "Name contains"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	if actorFromContext(c) == nil {
		return
	}
	filter := models.TemplateFilter{
		Category: models.TemplateCategory(strings.TrimSpace(c.Query("category"))),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("active"); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &val
		}
	}
	filter.Page, filter.PageSize = pageParams(c)

	templates, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, pagination)
}

// Get godoc
// @Summary Get audit template with its items
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	if actorFromContext(c) == nil {
		return
	}
	tpl, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Create godoc
// @Summary Create audit template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit-templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.CreateTemplateRequest
	if !bindJSON(c, &req, "template") {
		return
	}
	tpl, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// Update godoc
// @Summary Update audit template
// @Description Sending items replaces the whole question set.
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.UpdateTemplateRequest true "Template changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /audit-templates/{id} [patch]
func (h *TemplateHandler) Update(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		return
	}
	var req dto.UpdateTemplateRequest
	if !bindJSON(c, &req, "template") {
		return
	}
	tpl, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Delete godoc
// @Summary Delete audit template
// @Tags Templates
// @Param id path string true "Template ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /audit-templates/{id} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
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
