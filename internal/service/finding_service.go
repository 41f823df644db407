package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

type findingStore interface {
	RecordResponse(ctx context.Context, params repository.RecordResponseParams) (*repository.RecordResponseResult, error)
	List(ctx context.Context, filter models.NonConformityFilter) ([]models.NonConformity, int, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.NonConformity, error)
	UpdateStatus(ctx context.Context, tenantID, id string, from, to models.NonConformityStatus, at time.Time) error
}

type executionReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.AuditExecution, error)
}

// DefaultScoreThreshold is the share of max_score below which a score raises a finding.
const DefaultScoreThreshold = 0.5

// FindingPolicy decides which answers raise a non-conformity and how severe it is.
type FindingPolicy struct {
	ScoreThreshold  float64
	DefaultSeverity models.Severity
}

// DefaultFindingPolicy raises on "no" for critical yes/no items and on scores under half the maximum.
func DefaultFindingPolicy() FindingPolicy {
	return FindingPolicy{ScoreThreshold: DefaultScoreThreshold, DefaultSeverity: models.SeverityMedium}
}

func (p FindingPolicy) normalize() FindingPolicy {
	if p.ScoreThreshold <= 0 || p.ScoreThreshold > 1 {
		p.ScoreThreshold = DefaultScoreThreshold
	}
	if !p.DefaultSeverity.Valid() {
		p.DefaultSeverity = models.SeverityMedium
	}
	return p
}

// Evaluate reports whether the answer is non-conforming and the severity to file it with.
func (p FindingPolicy) Evaluate(item models.AuditItem, answer Answer) (bool, models.Severity) {
	p = p.normalize()
	raised := false
	switch item.Type {
	case models.ItemTypeYesNo:
		raised = item.IsCritical && answer.Value == "no"
	case models.ItemTypeScore:
		raised = answer.Score != nil && *answer.Score < p.ScoreThreshold*item.MaxPoints()
	}
	if !raised {
		return false, ""
	}
	if item.IsCritical {
		return true, models.SeverityCritical
	}
	return true, p.DefaultSeverity
}

// Answer is a response value normalised for storage.
type Answer struct {
	Value string
	Score *float64
}

// ParseAnswer checks the raw JSON value against the item type.
func ParseAnswer(item models.AuditItem, raw json.RawMessage) (Answer, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Answer{}, fmt.Errorf("value is not valid JSON")
	}
	switch item.Type {
	case models.ItemTypeYesNo:
		var yes bool
		switch v := decoded.(type) {
		case bool:
			yes = v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "yes":
				yes = true
			case "no":
				yes = false
			default:
				return Answer{}, fmt.Errorf("yes_no items accept true, false, \"yes\" or \"no\"")
			}
		default:
			return Answer{}, fmt.Errorf("yes_no items accept true, false, \"yes\" or \"no\"")
		}
		if yes {
			return Answer{Value: "yes", Score: floatRef(1)}, nil
		}
		return Answer{Value: "no", Score: floatRef(0)}, nil
	case models.ItemTypeScore:
		v, ok := decoded.(float64)
		if !ok || math.IsNaN(v) {
			return Answer{}, fmt.Errorf("score items need a number")
		}
		if v < 0 || v > item.MaxPoints() {
			return Answer{}, fmt.Errorf("score must be between 0 and %s", strconv.FormatFloat(item.MaxPoints(), 'f', -1, 64))
		}
		return Answer{Value: strconv.FormatFloat(v, 'f', -1, 64), Score: floatRef(v)}, nil
	case models.ItemTypeText, models.ItemTypePhoto:
		v, ok := decoded.(string)
		if !ok || strings.TrimSpace(v) == "" {
			return Answer{}, fmt.Errorf("%s items need a non-empty string", item.Type)
		}
		return Answer{Value: strings.TrimSpace(v)}, nil
	default:
		return Answer{}, fmt.Errorf("unsupported item type %q", item.Type)
	}
}

// FindingConfig carries the policy and calendar of the finding service.
type FindingConfig struct {
	Clock  Clock
	Policy FindingPolicy
}

// FindingService records audit answers and manages the non-conformities they raise.
type FindingService struct {
	repo       findingStore
	executions executionReader
	templates  templateReader
	audit      auditLogger
	metrics    *MetricsService
	clock      Clock
	policy     FindingPolicy
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFindingService constructs the finding service.
func NewFindingService(
	repo findingStore,
	executions executionReader,
	templates templateReader,
	audit auditLogger,
	metrics *MetricsService,
	cfg FindingConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *FindingService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FindingService{
		repo:       repo,
		executions: executions,
		templates:  templates,
		audit:      audit,
		metrics:    metrics,
		clock:      cfg.Clock,
		policy:     cfg.Policy.normalize(),
		validator:  validate,
		logger:     logger,
	}
}

// RecordResponse stores the answer to one item, starting the audit if needed, and raises or
// clears the derived non-conformity in the same transaction.
func (s *FindingService) RecordResponse(ctx context.Context, executionID string, req dto.RecordResponseRequest, actor *models.AuthorizationContext) (*models.ResponseOutcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	exec, err := s.executions.GetByID(ctx, actor.TenantID, executionID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return nil, internalError(err, "failed to load audit")
	}
	if !actor.IsSupervisor() && actor.UserID != exec.InspectorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned inspector or a manager can record responses")
	}
	if exec.Status.IsCloseable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "responses cannot be recorded on a closed audit")
	}

	tpl, err := s.templates.GetByID(ctx, exec.TemplateID)
	if err != nil {
		return nil, internalError(err, "failed to load audit template")
	}
	item, ok := findItem(tpl.Items, req.ItemID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "item does not belong to this audit's template")
	}
	answer, err := ParseAnswer(item, req.Value)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	now := s.clock.Now().UTC()
	notes := optionalString(req.Notes)
	response := &models.AuditResponse{
		ExecutionID: exec.ID,
		ItemID:      item.ID,
		Value:       answer.Value,
		Score:       answer.Score,
		Notes:       notes,
		RecordedBy:  actor.UserID,
	}
	params := repository.RecordResponseParams{TenantID: actor.TenantID, Response: response, At: now}
	if raised, severity := s.policy.Evaluate(item, answer); raised {
		params.Finding = &models.NonConformity{
			Severity:    severity,
			Description: fmt.Sprintf("%s (answer: %s)", item.Question, answer.Value),
			Evidence:    notes,
		}
	}

	result, err := s.repo.RecordResponse(ctx, params)
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		case errors.Is(err, repository.ErrExecutionClosed):
			return nil, appErrors.Clone(appErrors.ErrValidation, "responses cannot be recorded on a closed audit")
		case errors.Is(err, repository.ErrReferenced):
			return nil, appErrors.Clone(appErrors.ErrValidation, "item no longer exists")
		}
		return nil, internalError(err, "failed to record response")
	}

	status := result.PreviousStatus
	if result.Started {
		status = models.ExecutionStatusInProgress
		s.metrics.ExecutionTransitioned(string(result.PreviousStatus), string(status))
	}
	if result.CreatedFinding && result.NonConformity != nil {
		s.metrics.FindingRaised(string(result.NonConformity.Severity))
	}
	emitAudit(ctx, s.audit, s.logger, "finding-service", actor, auditEntry{
		Action:     models.AuditActionResponseRecord,
		Resource:   "audit_response",
		ResourceID: result.Response.ID,
		New:        result.Response,
	})

	return &models.ResponseOutcome{
		Response:        *result.Response,
		NonConformity:   result.NonConformity,
		FindingRemoved:  result.RemovedFinding,
		ExecutionStatus: status,
	}, nil
}

// ListNonConformities returns tenant findings matching the query.
func (s *FindingService) ListNonConformities(ctx context.Context, query dto.NonConformityQuery, actor *models.AuthorizationContext) ([]models.NonConformity, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter := models.NonConformityFilter{
		TenantID:     actor.TenantID,
		ExecutionID:  strings.TrimSpace(query.ExecutionID),
		RestaurantID: strings.TrimSpace(query.RestaurantID),
		PageRequest:  models.PageRequest{Page: query.Page, PageSize: query.PageSize},
	}
	for _, raw := range query.Status {
		status := models.NonConformityStatus(strings.TrimSpace(raw))
		if status.Rank() == 0 {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown non-conformity status %q", raw))
		}
		filter.Status = append(filter.Status, status)
	}
	if query.Severity != "" {
		severity := models.Severity(strings.TrimSpace(query.Severity))
		if !severity.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown severity %q", query.Severity))
		}
		filter.Severity = severity
	}
	if actor.Role == models.RoleStaff && actor.RestaurantID != "" {
		filter.RestaurantID = actor.RestaurantID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list non-conformities")
	}
	if items == nil {
		items = []models.NonConformity{}
	}
	return items, newPagination(filter.PageRequest, total), nil
}

// UpdateNonConformityStatus advances a finding along open, in_progress, resolved, verified.
func (s *FindingService) UpdateNonConformityStatus(ctx context.Context, id string, req dto.NonConformityStatusRequest, actor *models.AuthorizationContext) (*models.NonConformity, error) {
	if err := requireSupervisor(actor, "only managers and admins can change non-conformity status"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	nc, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "non-conformity not found")
		}
		return nil, internalError(err, "failed to load non-conformity")
	}
	from := nc.Status
	to := models.NonConformityStatus(req.Status)
	if !CanTransitionNonConformity(from, to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("non-conformity cannot move from %s to %s", from, to))
	}
	now := s.clock.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, actor.TenantID, id, from, to, now); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "non-conformity status changed concurrently")
		}
		return nil, internalError(err, "failed to update non-conformity")
	}
	nc.Status = to
	nc.UpdatedAt = now

	emitAudit(ctx, s.audit, s.logger, "finding-service", actor, auditEntry{
		Action:     models.AuditActionNonConformity,
		Resource:   "non_conformity",
		ResourceID: id,
		Old:        map[string]string{"status": string(from)},
		New:        map[string]string{"status": string(to)},
	})
	return nc, nil
}

func findItem(items []models.AuditItem, id string) (models.AuditItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.AuditItem{}, false
}

func floatRef(v float64) *float64 {
	return &v
}
