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

type correctiveActionStore interface {
	Create(ctx context.Context, action *models.CorrectiveAction) error
	GetByID(ctx context.Context, tenantID, id string) (*models.CorrectiveAction, error)
	List(ctx context.Context, filter models.CorrectiveActionFilter) ([]models.CorrectiveAction, int, error)
	Update(ctx context.Context, action *models.CorrectiveAction, expected models.CorrectiveActionStatus) error
	ChangeStatus(ctx context.Context, change repository.ActionStatusChange) (models.NonConformityStatus, error)
}

type nonConformityReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.NonConformity, error)
}

type userReader interface {
	GetUser(ctx context.Context, tenantID, id string) (*models.DirectoryUser, error)
}

// CorrectiveActionConfig carries the calendar of the corrective action service.
type CorrectiveActionConfig struct {
	Clock Clock
}

// CorrectiveActionService assigns remediation work and tracks it to verification.
type CorrectiveActionService struct {
	repo      correctiveActionStore
	findings  nonConformityReader
	users     userReader
	audit     auditLogger
	events    eventEmitter
	metrics   *MetricsService
	clock     Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCorrectiveActionService constructs the corrective action service.
func NewCorrectiveActionService(
	repo correctiveActionStore,
	findings nonConformityReader,
	users userReader,
	audit auditLogger,
	events eventEmitter,
	metrics *MetricsService,
	cfg CorrectiveActionConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *CorrectiveActionService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectiveActionService{
		repo:      repo,
		findings:  findings,
		users:     users,
		audit:     audit,
		events:    events,
		metrics:   metrics,
		clock:     cfg.Clock,
		validator: validate,
		logger:    logger,
	}
}

// Create assigns a corrective action, optionally linked to a non-conformity of the tenant.
func (s *CorrectiveActionService) Create(ctx context.Context, req dto.CreateCorrectiveActionRequest, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsSupervisor() && actor.Role != models.RoleInspector {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only inspectors, managers and admins can assign corrective actions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	description := strings.TrimSpace(req.ActionDescription)
	if description == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action_description is required")
	}

	now := s.clock.Now()
	var priority *models.Priority
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		priority = &p
	}
	due, err := s.resolveDueDate(req.DueDate, priority, now)
	if err != nil {
		return nil, err
	}

	var ncID *string
	if req.NonConformityID != nil && strings.TrimSpace(*req.NonConformityID) != "" {
		nc, err := s.findings.GetByID(ctx, actor.TenantID, strings.TrimSpace(*req.NonConformityID))
		if err != nil {
			if isNoRows(err) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "non-conformity not found")
			}
			return nil, internalError(err, "failed to load non-conformity")
		}
		ncID = &nc.ID
	}
	assignee, err := s.loadAssignee(ctx, actor.TenantID, req.AssignedTo)
	if err != nil {
		return nil, err
	}

	action := &models.CorrectiveAction{
		TenantID:          actor.TenantID,
		NonConformityID:   ncID,
		ActionDescription: description,
		AssignedTo:        assignee.ID,
		DueDate:           due,
		Priority:          priority,
		Status:            models.ActionStatusAssigned,
		Notes:             optionalString(req.Notes),
		CreatedBy:         actor.UserID,
		AssigneeName:      assignee.FullName,
	}
	if err := s.repo.Create(ctx, action); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "non-conformity or assignee no longer exists")
		}
		return nil, internalError(err, "failed to create corrective action")
	}

	s.metrics.ActionTransitioned("", string(action.Status))
	emitAudit(ctx, s.audit, s.logger, "corrective-action-service", actor, auditEntry{
		Action:     models.AuditActionActionCreate,
		Resource:   "corrective_action",
		ResourceID: action.ID,
		New:        action,
	})
	s.emitAssigned(ctx, action, actor)

	view := DecorateCorrectiveAction(*action, now)
	return &view, nil
}

// ChangeStatus moves an action along its lifecycle and lets the linked non-conformity follow.
func (s *CorrectiveActionService) ChangeStatus(ctx context.Context, id string, req dto.ChangeActionStatusRequest, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	action, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, action, req, nil, actor)
}

// Archive retires a completed action from the remediation list.
func (s *CorrectiveActionService) Archive(ctx context.Context, id string, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error) {
	if err := requireSupervisor(actor, "only managers and admins can archive corrective actions"); err != nil {
		return nil, err
	}
	action, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, action, dto.ChangeActionStatusRequest{Status: string(models.ActionStatusArchived)}, nil, actor)
}

// Update edits an open action. A status in the same payload is committed together with the edits.
func (s *CorrectiveActionService) Update(ctx context.Context, id string, req dto.UpdateCorrectiveActionRequest, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.HasFieldEdits() && req.Status == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	action, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var edit *actionEdit
	if req.HasFieldEdits() {
		if err := requireSupervisor(actor, "only managers and admins can edit corrective actions"); err != nil {
			return nil, err
		}
		if action.Status.IsClosed() {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s corrective action can no longer be edited", action.Status))
		}
		if edit, err = s.prepareEdits(ctx, action, req, actor); err != nil {
			return nil, err
		}
	}

	if req.Status != nil {
		return s.changeStatus(ctx, action, dto.ChangeActionStatusRequest{
			Status:            *req.Status,
			CompletionDate:    req.CompletionDate,
			CompletionNotes:   req.CompletionNotes,
			VerificationNotes: req.VerificationNotes,
		}, edit, actor)
	}

	if err := s.repo.Update(ctx, edit.after, action.Status); err != nil {
		return nil, editError(err)
	}
	s.recordEdit(ctx, edit, actor)
	view := DecorateCorrectiveAction(*edit.after, s.clock.Now())
	return &view, nil
}

// List returns tenant actions decorated with their overdue flag.
func (s *CorrectiveActionService) List(ctx context.Context, query dto.CorrectiveActionQuery, actor *models.AuthorizationContext) ([]models.CorrectiveActionView, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter := models.CorrectiveActionFilter{
		TenantID:        actor.TenantID,
		AssignedTo:      strings.TrimSpace(query.AssignedTo),
		NonConformityID: strings.TrimSpace(query.NonConformityID),
		IncludeArchived: query.IncludeArchived,
		PageRequest:     models.PageRequest{Page: query.Page, PageSize: query.PageSize},
	}
	for _, raw := range query.Status {
		status := models.CorrectiveActionStatus(strings.TrimSpace(raw))
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown corrective action status %q", raw))
		}
		filter.Status = append(filter.Status, status)
	}
	now := s.clock.Now()
	if query.Overdue {
		at := now.UTC()
		filter.OverdueAt = &at
	}
	if actor.Role == models.RoleStaff {
		filter.AssignedTo = actor.UserID
	}

	actions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list corrective actions")
	}
	views := make([]models.CorrectiveActionView, 0, len(actions))
	for _, action := range actions {
		views = append(views, DecorateCorrectiveAction(action, now))
	}
	return views, newPagination(filter.PageRequest, total), nil
}

// actionEdit is a validated but not yet persisted set of attribute edits.
type actionEdit struct {
	before     models.CorrectiveAction
	after      *models.CorrectiveAction
	reassigned bool
}

func (s *CorrectiveActionService) changeStatus(ctx context.Context, action *models.CorrectiveAction, req dto.ChangeActionStatusRequest, edit *actionEdit, actor *models.AuthorizationContext) (*models.CorrectiveActionView, error) {
	from := action.Status
	to := models.CorrectiveActionStatus(req.Status)
	if !actor.IsSupervisor() {
		ownProgress := actor.UserID == action.AssignedTo &&
			(to == models.ActionStatusInProgress || to == models.ActionStatusCompleted)
		if !ownProgress {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only managers and admins can drive this transition")
		}
	}
	if !CanTransitionAction(from, to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("corrective action cannot move from %s to %s", from, to))
	}

	now := s.clock.Now()
	at := now.UTC()
	change := repository.ActionStatusChange{
		ID:       action.ID,
		TenantID: action.TenantID,
		From:     from,
		To:       to,
		At:       at,
		ActorID:  actor.UserID,
	}
	switch to {
	case models.ActionStatusCompleted:
		completed := at
		if req.CompletionDate != nil && strings.TrimSpace(*req.CompletionDate) != "" {
			parsed, err := parseDay(*req.CompletionDate, now.Location())
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "completion_date must be YYYY-MM-DD or RFC3339")
			}
			if dayDiff(parsed, now) > 0 {
				return nil, appErrors.Clone(appErrors.ErrValidation, "completion_date cannot be in the future")
			}
			completed = parsed
		}
		change.CompletionDate = &completed
		change.CompletionNotes = optionalString(req.CompletionNotes)
	case models.ActionStatusVerified:
		change.VerificationNotes = optionalString(req.VerificationNotes)
	}
	if edit != nil {
		change.Edit = &repository.ActionEdit{
			ActionDescription: edit.after.ActionDescription,
			AssignedTo:        edit.after.AssignedTo,
			DueDate:           edit.after.DueDate,
			Notes:             edit.after.Notes,
		}
	}

	ncStatus, err := s.repo.ChangeStatus(ctx, change)
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "corrective action status changed concurrently")
		case errors.Is(err, repository.ErrReferenced):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignee no longer exists")
		}
		return nil, internalError(err, "failed to update corrective action status")
	}

	if edit != nil {
		action = edit.after
	}

	action.Status = to
	action.UpdatedAt = at
	switch to {
	case models.ActionStatusCompleted:
		action.CompletionDate = change.CompletionDate
		if change.CompletionNotes != nil {
			action.CompletionNotes = change.CompletionNotes
		}
	case models.ActionStatusVerified:
		verifier := actor.UserID
		action.VerifiedBy = &verifier
		action.VerifiedAt = &at
		if change.VerificationNotes != nil {
			action.VerificationNotes = change.VerificationNotes
		}
	case models.ActionStatusArchived:
		action.ArchivedAt = &at
	}

	s.metrics.ActionTransitioned(string(from), string(to))
	auditAction := models.AuditActionActionStatus
	if to == models.ActionStatusArchived {
		auditAction = models.AuditActionActionArchive
	}
	emitAudit(ctx, s.audit, s.logger, "corrective-action-service", actor, auditEntry{
		Action:     auditAction,
		Resource:   "corrective_action",
		ResourceID: action.ID,
		Old:        map[string]string{"status": string(from)},
		New:        map[string]string{"status": string(to), "non_conformity_status": string(ncStatus)},
	})

	if edit != nil {
		s.recordEdit(ctx, edit, actor)
	}

	view := DecorateCorrectiveAction(*action, now)
	view.NonConformityStatus = ncStatus
	return &view, nil
}

// prepareEdits validates the requested edits against a copy of the action without persisting them.
func (s *CorrectiveActionService) prepareEdits(ctx context.Context, action *models.CorrectiveAction, req dto.UpdateCorrectiveActionRequest, actor *models.AuthorizationContext) (*actionEdit, error) {
	edited := *action
	edit := &actionEdit{before: *action, after: &edited}
	now := s.clock.Now()

	if req.ActionDescription != nil {
		description := strings.TrimSpace(*req.ActionDescription)
		if description == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "action_description cannot be empty")
		}
		edited.ActionDescription = description
	}
	if req.AssignedTo != nil && *req.AssignedTo != action.AssignedTo {
		assignee, err := s.loadAssignee(ctx, actor.TenantID, *req.AssignedTo)
		if err != nil {
			return nil, err
		}
		edited.AssignedTo = assignee.ID
		edited.AssigneeName = assignee.FullName
		edit.reassigned = true
	}
	if req.DueDate != nil {
		due, err := s.resolveDueDate(req.DueDate, nil, now)
		if err != nil {
			return nil, err
		}
		edited.DueDate = due
	}
	if req.Notes != nil {
		edited.Notes = optionalString(req.Notes)
	}
	return edit, nil
}

func (s *CorrectiveActionService) recordEdit(ctx context.Context, edit *actionEdit, actor *models.AuthorizationContext) {
	emitAudit(ctx, s.audit, s.logger, "corrective-action-service", actor, auditEntry{
		Action:     models.AuditActionActionUpdate,
		Resource:   "corrective_action",
		ResourceID: edit.after.ID,
		Old:        edit.before,
		New:        edit.after,
	})
	if edit.reassigned {
		s.emitAssigned(ctx, edit.after, actor)
	}
}

func editError(err error) error {
	switch {
	case isNoRows(err):
		return appErrors.Clone(appErrors.ErrConflict, "corrective action changed while being edited")
	case errors.Is(err, repository.ErrReferenced):
		return appErrors.Clone(appErrors.ErrNotFound, "assignee no longer exists")
	}
	return internalError(err, "failed to update corrective action")
}

// resolveDueDate parses an explicit due day or derives one from the priority offset.
func (s *CorrectiveActionService) resolveDueDate(raw *string, priority *models.Priority, now time.Time) (time.Time, error) {
	if raw != nil && strings.TrimSpace(*raw) != "" {
		due, err := parseDay(*raw, now.Location())
		if err != nil {
			return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "due_date must be YYYY-MM-DD or RFC3339")
		}
		if dayDiff(due, now) < 0 {
			return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "due_date cannot be before today")
		}
		return due, nil
	}
	if priority == nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "due_date or priority is required")
	}
	offset, ok := priority.DueOffsetDays()
	if !ok {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", *priority))
	}
	return startOfDay(now).AddDate(0, 0, offset), nil
}

func (s *CorrectiveActionService) load(ctx context.Context, actor *models.AuthorizationContext, id string) (*models.CorrectiveAction, error) {
	action, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "corrective action not found")
		}
		return nil, internalError(err, "failed to load corrective action")
	}
	return action, nil
}

func (s *CorrectiveActionService) loadAssignee(ctx context.Context, tenantID, id string) (*models.DirectoryUser, error) {
	user, err := s.users.GetUser(ctx, tenantID, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignee not found")
		}
		return nil, internalError(err, "failed to load assignee")
	}
	return user, nil
}

func (s *CorrectiveActionService) emitAssigned(ctx context.Context, action *models.CorrectiveAction, actor *models.AuthorizationContext) {
	payload := map[string]interface{}{
		"corrective_action_id": action.ID,
		"action_description":   action.ActionDescription,
		"due_date":             action.DueDate.Format("2006-01-02"),
	}
	if action.NonConformityID != nil {
		payload["non_conformity_id"] = *action.NonConformityID
	}
	if action.Priority != nil {
		payload["priority"] = string(*action.Priority)
	}
	emitEvent(ctx, s.events, models.DomainEvent{
		Type:       models.EventActionAssigned,
		TenantID:   action.TenantID,
		ActorID:    actor.UserID,
		Recipients: []string{action.AssignedTo},
		Payload:    payload,
	})
}
