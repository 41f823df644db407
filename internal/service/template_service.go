package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

type templateStore interface {
	List(ctx context.Context, filter models.TemplateFilter) ([]models.AuditTemplate, int, error)
	GetByID(ctx context.Context, id string) (*models.AuditTemplate, error)
	Create(ctx context.Context, tpl *models.AuditTemplate) error
	Update(ctx context.Context, tpl *models.AuditTemplate, replaceItems bool) error
	Delete(ctx context.Context, id string) error
	CountReferences(ctx context.Context, id string) (*repository.TemplateReferences, error)
}

// TemplateService manages the global audit template catalog.
type TemplateService struct {
	repo      templateStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs the template service.
func NewTemplateService(repo templateStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns templates and pagination metadata.
func (s *TemplateService) List(ctx context.Context, filter models.TemplateFilter) ([]models.AuditTemplate, *models.Pagination, error) {
	templates, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list audit templates")
	}
	if templates == nil {
		templates = []models.AuditTemplate{}
	}
	return templates, newPagination(filter.PageRequest, total), nil
}

// Get returns a template with its ordered items.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.AuditTemplate, error) {
	tpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit template not found")
		}
		return nil, internalError(err, "failed to load audit template")
	}
	return tpl, nil
}

// Create registers a template with items numbered in submission order.
func (s *TemplateService) Create(ctx context.Context, req dto.CreateTemplateRequest, actor *models.AuthorizationContext) (*models.AuditTemplate, error) {
	if err := requireTemplateAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	items, err := buildTemplateItems(req.Items)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name must be at least 2 characters")
	}

	tpl := &models.AuditTemplate{
		Name:              name,
		Category:          models.TemplateCategory(req.Category),
		Description:       optionalString(req.Description),
		IsActive:          true,
		EstimatedDuration: req.EstimatedDuration,
		CreatedBy:         actor.UserID,
		Items:             items,
	}
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit template name already used")
		}
		return nil, internalError(err, "failed to create audit template")
	}

	emitAudit(ctx, s.audit, s.logger, "template-service", actor, auditEntry{
		Action:     models.AuditActionTemplateCreate,
		Resource:   "audit_template",
		ResourceID: tpl.ID,
		New:        tpl,
	})
	return tpl, nil
}

// Update edits template attributes. Supplying items replaces the whole ordered set, which is
// refused while live executions reference the template.
func (s *TemplateService) Update(ctx context.Context, id string, req dto.UpdateTemplateRequest, actor *models.AuthorizationContext) (*models.AuditTemplate, error) {
	if err := requireTemplateAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	replaceItems := req.Items != nil
	var items []models.AuditItem
	if replaceItems {
		if len(req.Items) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a template needs at least one item")
		}
		var err error
		if items, err = buildTemplateItems(req.Items); err != nil {
			return nil, err
		}
	}

	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *tpl

	if replaceItems {
		refs, err := s.repo.CountReferences(ctx, id)
		if err != nil {
			return nil, internalError(err, "failed to check template usage")
		}
		if refs.Executions > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("items cannot be replaced while %d audit(s) use this template", refs.Executions))
		}
		tpl.Items = items
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must be at least 2 characters")
		}
		tpl.Name = name
	}
	if req.Category != nil {
		tpl.Category = models.TemplateCategory(*req.Category)
	}
	if req.Description != nil {
		tpl.Description = optionalString(req.Description)
	}
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}
	if req.EstimatedDuration != nil {
		tpl.EstimatedDuration = req.EstimatedDuration
	}

	if err := s.repo.Update(ctx, tpl, replaceItems); err != nil {
		switch {
		case isNoRows(err):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit template not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit template name already used")
		case errors.Is(err, repository.ErrReferenced):
			return nil, appErrors.Clone(appErrors.ErrConflict, "template items are referenced by recorded responses")
		}
		return nil, internalError(err, "failed to update audit template")
	}

	emitAudit(ctx, s.audit, s.logger, "template-service", actor, auditEntry{
		Action:     models.AuditActionTemplateUpdate,
		Resource:   "audit_template",
		ResourceID: tpl.ID,
		Old:        before,
		New:        tpl,
	})
	return tpl, nil
}

// Delete removes a template no execution or archive refers to.
func (s *TemplateService) Delete(ctx context.Context, id string, actor *models.AuthorizationContext) error {
	if err := requireTemplateAdmin(actor); err != nil {
		return err
	}
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return internalError(err, "failed to check template usage")
	}
	if refs.Executions > 0 || refs.Archives > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("template is referenced by %d audit(s) and %d archive(s)", refs.Executions, refs.Archives))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case isNoRows(err):
			return appErrors.Clone(appErrors.ErrNotFound, "audit template not found")
		case errors.Is(err, repository.ErrReferenced):
			return appErrors.Clone(appErrors.ErrConflict, "template is referenced by audits")
		}
		return internalError(err, "failed to delete audit template")
	}

	emitAudit(ctx, s.audit, s.logger, "template-service", actor, auditEntry{
		Action:     models.AuditActionTemplateDelete,
		Resource:   "audit_template",
		ResourceID: id,
		Old:        tpl,
	})
	return nil
}

func requireTemplateAdmin(actor *models.AuthorizationContext) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can manage audit templates")
	}
	return nil
}

// buildTemplateItems numbers items 1..N and enforces the per-type score rules.
func buildTemplateItems(reqs []dto.AuditItemRequest) ([]models.AuditItem, error) {
	items := make([]models.AuditItem, 0, len(reqs))
	for i, req := range reqs {
		question := strings.TrimSpace(req.Question)
		if question == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: question is required", i+1))
		}
		itemType := models.ItemType(req.Type)
		if !itemType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: unknown type %q", i+1, req.Type))
		}
		item := models.AuditItem{
			Question:   question,
			Type:       itemType,
			Required:   true,
			IsCritical: req.IsCritical,
			Order:      i + 1,
			HelpText:   optionalString(req.HelpText),
		}
		if req.Required != nil {
			item.Required = *req.Required
		}
		if itemType == models.ItemTypeScore {
			if req.MaxScore == nil || *req.MaxScore <= 0 {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: score items need a positive max_score", i+1))
			}
			maxScore := *req.MaxScore
			item.MaxScore = &maxScore
		} else if req.MaxScore != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: max_score only applies to score items", i+1))
		}
		items = append(items, item)
	}
	return items, nil
}
