package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

type executionStore interface {
	Create(ctx context.Context, exec *models.AuditExecution) error
	GetByID(ctx context.Context, tenantID, id string) (*models.AuditExecution, error)
	List(ctx context.Context, filter models.ExecutionFilter) ([]models.AuditExecution, int, error)
	UpdateSchedule(ctx context.Context, exec *models.AuditExecution, expected []models.ExecutionStatus) error
	Delete(ctx context.Context, tenantID, id string, expected []models.ExecutionStatus) error
	Transition(ctx context.Context, t repository.ExecutionTransition) error
}

type templateReader interface {
	GetByID(ctx context.Context, id string) (*models.AuditTemplate, error)
}

type directoryReader interface {
	GetRestaurant(ctx context.Context, tenantID, id string) (*models.Restaurant, error)
	GetUser(ctx context.Context, tenantID, id string) (*models.DirectoryUser, error)
}

type executionFindingReader interface {
	ListResponses(ctx context.Context, executionID string) ([]models.AuditResponse, error)
	ListByExecution(ctx context.Context, executionID string) ([]models.NonConformity, error)
}

var notStartedStatuses = []models.ExecutionStatus{models.ExecutionStatusTodo, models.ExecutionStatusScheduled}

// ExecutionConfig carries the calendar settings of the execution service.
type ExecutionConfig struct {
	Clock              Clock
	UpcomingWindowDays int
}

// ExecutionService schedules audits and drives them through their lifecycle.
type ExecutionService struct {
	repo       executionStore
	templates  templateReader
	directory  directoryReader
	findings   executionFindingReader
	audit      auditLogger
	events     eventEmitter
	metrics    *MetricsService
	clock      Clock
	windowDays int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewExecutionService constructs the execution service.
func NewExecutionService(
	repo executionStore,
	templates templateReader,
	directory directoryReader,
	findings executionFindingReader,
	audit auditLogger,
	events eventEmitter,
	metrics *MetricsService,
	cfg ExecutionConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExecutionService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UpcomingWindowDays <= 0 {
		cfg.UpcomingWindowDays = DefaultUpcomingWindowDays
	}
	return &ExecutionService{
		repo:       repo,
		templates:  templates,
		directory:  directory,
		findings:   findings,
		audit:      audit,
		events:     events,
		metrics:    metrics,
		clock:      cfg.Clock,
		windowDays: cfg.UpcomingWindowDays,
		validator:  validate,
		logger:     logger,
	}
}

// Schedule creates an execution of an active template for a restaurant and inspector of the caller's tenant.
func (s *ExecutionService) Schedule(ctx context.Context, req dto.ScheduleAuditRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	if err := requireSupervisor(actor, "only managers and admins can schedule audits"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	now := s.clock.Now()
	scheduled, err := s.parseScheduleDate(req.ScheduledDate, now)
	if err != nil {
		return nil, err
	}

	tpl, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit template not found")
		}
		return nil, internalError(err, "failed to load audit template")
	}
	if !tpl.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "audit template is inactive")
	}
	restaurant, err := s.directory.GetRestaurant(ctx, actor.TenantID, req.RestaurantID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "restaurant not found")
		}
		return nil, internalError(err, "failed to load restaurant")
	}
	inspector, err := s.loadInspector(ctx, actor.TenantID, req.InspectorID)
	if err != nil {
		return nil, err
	}

	exec := &models.AuditExecution{
		TenantID:       actor.TenantID,
		TemplateID:     tpl.ID,
		RestaurantID:   restaurant.ID,
		InspectorID:    inspector.ID,
		ScheduledDate:  scheduled,
		Status:         InitialExecutionStatus(scheduled, now),
		Notes:          optionalString(req.Notes),
		CreatedBy:      actor.UserID,
		TemplateName:   tpl.Name,
		Category:       string(tpl.Category),
		RestaurantName: restaurant.Name,
		InspectorName:  inspector.FullName,
	}
	if err := s.repo.Create(ctx, exec); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template, restaurant or inspector no longer exists")
		}
		return nil, internalError(err, "failed to schedule audit")
	}

	s.metrics.AuditScheduled(exec.Category)
	emitAudit(ctx, s.audit, s.logger, "execution-service", actor, auditEntry{
		Action:     models.AuditActionExecutionCreate,
		Resource:   "audit_execution",
		ResourceID: exec.ID,
		New:        exec,
	})
	s.emitScheduled(ctx, exec, actor)

	view := DecorateExecution(*exec, actor, now)
	return &view, nil
}

// Reschedule moves a not-yet-started execution to another day or inspector.
func (s *ExecutionService) Reschedule(ctx context.Context, id string, req dto.RescheduleAuditRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	if err := requireSupervisor(actor, "only managers and admins can reschedule audits"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	exec, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !isNotStarted(exec.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only audits that have not started can be rescheduled")
	}
	before := *exec
	now := s.clock.Now()

	if req.ScheduledDate != nil {
		scheduled, err := s.parseScheduleDate(*req.ScheduledDate, now)
		if err != nil {
			return nil, err
		}
		exec.ScheduledDate = scheduled
	}
	inspectorChanged := false
	if req.InspectorID != nil && *req.InspectorID != exec.InspectorID {
		inspector, err := s.loadInspector(ctx, actor.TenantID, *req.InspectorID)
		if err != nil {
			return nil, err
		}
		exec.InspectorID = inspector.ID
		exec.InspectorName = inspector.FullName
		inspectorChanged = true
	}
	if req.Notes != nil {
		exec.Notes = optionalString(req.Notes)
	}
	exec.Status = InitialExecutionStatus(exec.ScheduledDate, now)

	if err := s.repo.UpdateSchedule(ctx, exec, notStartedStatuses); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit was started while being rescheduled")
		}
		return nil, internalError(err, "failed to reschedule audit")
	}

	emitAudit(ctx, s.audit, s.logger, "execution-service", actor, auditEntry{
		Action:     models.AuditActionExecutionUpdate,
		Resource:   "audit_execution",
		ResourceID: exec.ID,
		Old:        before,
		New:        exec,
	})
	if inspectorChanged || !exec.ScheduledDate.Equal(before.ScheduledDate) {
		s.emitScheduled(ctx, exec, actor)
	}

	view := DecorateExecution(*exec, actor, now)
	return &view, nil
}

// Delete cancels an execution that has not started.
func (s *ExecutionService) Delete(ctx context.Context, id string, actor *models.AuthorizationContext) error {
	if err := requireSupervisor(actor, "only managers and admins can cancel audits"); err != nil {
		return err
	}
	exec, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !isNotStarted(exec.Status) {
		return appErrors.Clone(appErrors.ErrConflict, "only audits that have not started can be cancelled")
	}
	if err := s.repo.Delete(ctx, actor.TenantID, id, notStartedStatuses); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrConflict, "audit was started while being cancelled")
		}
		return internalError(err, "failed to cancel audit")
	}
	emitAudit(ctx, s.audit, s.logger, "execution-service", actor, auditEntry{
		Action:     models.AuditActionExecutionDelete,
		Resource:   "audit_execution",
		ResourceID: id,
		Old:        exec,
	})
	return nil
}

// Start moves a todo or scheduled execution to in_progress.
func (s *ExecutionService) Start(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	exec, err := s.loadForWork(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, exec, models.ExecutionStatusInProgress, actor, nil)
}

// Complete closes an in-progress execution once every required item is answered and stores its score.
func (s *ExecutionService) Complete(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	exec, err := s.loadForWork(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionExecution(exec.Status, models.ExecutionStatusCompleted) {
		return nil, invalidExecutionTransition(exec.Status, models.ExecutionStatusCompleted)
	}

	tpl, err := s.templates.GetByID(ctx, exec.TemplateID)
	if err != nil {
		return nil, internalError(err, "failed to load audit template")
	}
	responses, err := s.findings.ListResponses(ctx, exec.ID)
	if err != nil {
		return nil, internalError(err, "failed to load audit responses")
	}
	total, maxScore, missing := scoreExecution(tpl.Items, responses)
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "required items without a response: "+strings.Join(missing, "; "))
	}

	return s.transition(ctx, exec, models.ExecutionStatusCompleted, actor, func(t *repository.ExecutionTransition) {
		t.TotalScore = &total
		t.MaxScore = &maxScore
	})
}

// Review records the supervisor sign-off of a completed execution.
func (s *ExecutionService) Review(ctx context.Context, id string, notes *string, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	if err := requireSupervisor(actor, "only managers and admins can review audits"); err != nil {
		return nil, err
	}
	exec, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, exec, models.ExecutionStatusReviewed, actor, func(t *repository.ExecutionTransition) {
		t.Notes = optionalString(notes)
	})
}

// Transition dispatches a requested target status to the matching operation.
func (s *ExecutionService) Transition(ctx context.Context, id string, req dto.ExecutionStatusRequest, actor *models.AuthorizationContext) (*models.ExecutionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	switch models.ExecutionStatus(req.Status) {
	case models.ExecutionStatusInProgress:
		return s.Start(ctx, id, actor)
	case models.ExecutionStatusCompleted:
		return s.Complete(ctx, id, actor)
	case models.ExecutionStatusReviewed:
		return s.Review(ctx, id, req.Notes, actor)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q cannot be requested", req.Status))
	}
}

// List returns tenant executions decorated with their derived status, overdue flag and actions.
func (s *ExecutionService) List(ctx context.Context, query dto.ExecutionQuery, actor *models.AuthorizationContext) ([]models.ExecutionView, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter, err := s.buildFilter(query, actor)
	if err != nil {
		return nil, nil, err
	}
	executions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list audits")
	}
	now := s.clock.Now()
	views := make([]models.ExecutionView, 0, len(executions))
	for _, exec := range executions {
		views = append(views, DecorateExecution(exec, actor, now))
	}
	return views, newPagination(filter.PageRequest, total), nil
}

// Grouped partitions every active execution of the tenant into overdue, today, upcoming and future.
func (s *ExecutionService) Grouped(ctx context.Context, query dto.ExecutionQuery, actor *models.AuthorizationContext) (*models.ExecutionGroups, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	query.Status = nil
	query.Page = 1
	query.PageSize = 100
	filter, err := s.buildFilter(query, actor)
	if err != nil {
		return nil, err
	}
	filter.ActiveOnly = true

	now := s.clock.Now()
	views := make([]models.ExecutionView, 0)
	for {
		executions, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list audits")
		}
		for _, exec := range executions {
			views = append(views, DecorateExecution(exec, actor, now))
		}
		if len(executions) == 0 || len(views) >= total {
			break
		}
		filter.Page++
	}
	groups := GroupExecutions(views, now, s.windowDays)
	return &groups, nil
}

// Get returns the execution with its template items, responses and non-conformities.
func (s *ExecutionService) Get(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.ExecutionDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	exec, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.GetByID(ctx, exec.TemplateID)
	if err != nil {
		return nil, internalError(err, "failed to load audit template")
	}
	responses, err := s.findings.ListResponses(ctx, exec.ID)
	if err != nil {
		return nil, internalError(err, "failed to load audit responses")
	}
	findings, err := s.findings.ListByExecution(ctx, exec.ID)
	if err != nil {
		return nil, internalError(err, "failed to load non-conformities")
	}
	if responses == nil {
		responses = []models.AuditResponse{}
	}
	if findings == nil {
		findings = []models.NonConformity{}
	}

	answered := make(map[string]bool, len(responses))
	for _, resp := range responses {
		answered[resp.ItemID] = true
	}
	detail := &models.ExecutionDetail{
		ExecutionView:   DecorateExecution(*exec, actor, s.clock.Now()),
		Items:           tpl.Items,
		Responses:       responses,
		NonConformities: findings,
	}
	for _, item := range tpl.Items {
		if !item.Required {
			continue
		}
		detail.TotalRequired++
		if answered[item.ID] {
			detail.AnsweredRequired++
		}
	}
	return detail, nil
}

func (s *ExecutionService) transition(ctx context.Context, exec *models.AuditExecution, to models.ExecutionStatus, actor *models.AuthorizationContext, apply func(*repository.ExecutionTransition)) (*models.ExecutionView, error) {
	from := exec.Status
	if !CanTransitionExecution(from, to) {
		return nil, invalidExecutionTransition(from, to)
	}
	now := s.clock.Now()
	at := now.UTC()
	change := repository.ExecutionTransition{
		ID:       exec.ID,
		TenantID: exec.TenantID,
		From:     from,
		To:       to,
		At:       at,
		ActorID:  actor.UserID,
	}
	if apply != nil {
		apply(&change)
	}
	if err := s.repo.Transition(ctx, change); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "audit status changed concurrently")
		}
		return nil, internalError(err, "failed to update audit status")
	}

	exec.Status = to
	exec.UpdatedAt = at
	switch to {
	case models.ExecutionStatusInProgress:
		if exec.StartedAt == nil {
			exec.StartedAt = &at
		}
	case models.ExecutionStatusCompleted:
		exec.CompletedAt = &at
		exec.TotalScore = change.TotalScore
		exec.MaxScore = change.MaxScore
	case models.ExecutionStatusReviewed:
		exec.ReviewedAt = &at
		reviewer := actor.UserID
		exec.ReviewedBy = &reviewer
		exec.ReviewNotes = change.Notes
	}

	s.metrics.ExecutionTransitioned(string(from), string(to))
	emitAudit(ctx, s.audit, s.logger, "execution-service", actor, auditEntry{
		Action:     models.AuditActionExecutionStatus,
		Resource:   "audit_execution",
		ResourceID: exec.ID,
		Old:        map[string]string{"status": string(from)},
		New:        map[string]string{"status": string(to)},
	})
	view := DecorateExecution(*exec, actor, now)
	return &view, nil
}

func (s *ExecutionService) load(ctx context.Context, actor *models.AuthorizationContext, id string) (*models.AuditExecution, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	exec, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit not found")
		}
		return nil, internalError(err, "failed to load audit")
	}
	return exec, nil
}

// loadForWork returns the execution when the caller is its inspector or a supervisor.
func (s *ExecutionService) loadForWork(ctx context.Context, actor *models.AuthorizationContext, id string) (*models.AuditExecution, error) {
	exec, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsSupervisor() && actor.UserID != exec.InspectorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned inspector or a manager can work on this audit")
	}
	return exec, nil
}

func (s *ExecutionService) loadInspector(ctx context.Context, tenantID, id string) (*models.DirectoryUser, error) {
	user, err := s.directory.GetUser(ctx, tenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "inspector not found")
		}
		return nil, internalError(err, "failed to load inspector")
	}
	switch user.Role {
	case models.RoleInspector, models.RoleManager, models.RoleAdmin:
		return user, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user cannot perform audits")
	}
}

func (s *ExecutionService) parseScheduleDate(raw string, now time.Time) (time.Time, error) {
	scheduled, err := parseDay(raw, now.Location())
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD or RFC3339")
	}
	if dayDiff(scheduled, now) < 0 {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_date cannot be in the past")
	}
	return scheduled, nil
}

func (s *ExecutionService) buildFilter(query dto.ExecutionQuery, actor *models.AuthorizationContext) (models.ExecutionFilter, error) {
	filter := models.ExecutionFilter{
		TenantID:     actor.TenantID,
		RestaurantID: strings.TrimSpace(query.RestaurantID),
		InspectorID:  strings.TrimSpace(query.InspectorID),
		TemplateID:   strings.TrimSpace(query.TemplateID),
		PageRequest:  models.PageRequest{Page: query.Page, PageSize: query.PageSize},
	}
	for _, raw := range query.Status {
		status := models.ExecutionStatus(strings.TrimSpace(raw))
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audit status %q", raw))
		}
		filter.Status = append(filter.Status, status)
	}
	loc := s.clock.location()
	if query.DateFrom != "" {
		from, err := parseDay(query.DateFrom, loc)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD or RFC3339")
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := parseDay(query.DateTo, loc)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD or RFC3339")
		}
		// inclusive day
		to = startOfDay(to.In(loc)).AddDate(0, 0, 1)
		filter.DateTo = &to
	}
	if actor.Role == models.RoleStaff && actor.RestaurantID != "" {
		filter.RestaurantID = actor.RestaurantID
	}
	return filter, nil
}

func (s *ExecutionService) emitScheduled(ctx context.Context, exec *models.AuditExecution, actor *models.AuthorizationContext) {
	emitEvent(ctx, s.events, models.DomainEvent{
		Type:       models.EventAuditScheduled,
		TenantID:   exec.TenantID,
		ActorID:    actor.UserID,
		Recipients: []string{exec.InspectorID},
		Payload: map[string]interface{}{
			"execution_id":    exec.ID,
			"template_name":   exec.TemplateName,
			"restaurant_id":   exec.RestaurantID,
			"restaurant_name": exec.RestaurantName,
			"scheduled_date":  exec.ScheduledDate.Format("2006-01-02"),
			"status":          exec.Status,
		},
	})
}

func isNotStarted(status models.ExecutionStatus) bool {
	return status == models.ExecutionStatusTodo || status == models.ExecutionStatusScheduled
}

func invalidExecutionTransition(from, to models.ExecutionStatus) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("audit cannot move from %s to %s", from, to))
}

// scoreExecution sums recorded scores against the template maximum and lists unanswered required questions.
func scoreExecution(items []models.AuditItem, responses []models.AuditResponse) (total, maxScore float64, missing []string) {
	byItem := make(map[string]models.AuditResponse, len(responses))
	for _, resp := range responses {
		byItem[resp.ItemID] = resp
	}
	for _, item := range items {
		maxScore += item.MaxPoints()
		resp, ok := byItem[item.ID]
		if !ok {
			if item.Required {
				missing = append(missing, fmt.Sprintf("#%d %s", item.Order, item.Question))
			}
			continue
		}
		if resp.Score != nil {
			total += *resp.Score
		}
	}
	return total, maxScore, missing
}
