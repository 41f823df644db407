package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-audit-api/internal/dto"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	appErrors "github.com/noah-isme/resto-audit-api/pkg/errors"
)

type actionRepoStub struct {
	actions  map[string]*models.CorrectiveAction
	findings map[string]*models.NonConformity
	filter   models.CorrectiveActionFilter
	changes  []repository.ActionStatusChange
	seq      int
}

func newActionRepoStub() *actionRepoStub {
	return &actionRepoStub{
		actions: make(map[string]*models.CorrectiveAction),
		findings: map[string]*models.NonConformity{
			"nc-1": {ID: "nc-1", TenantID: "tenant-1", Status: models.NonConformityOpen, Severity: models.SeverityCritical},
		},
	}
}

func (r *actionRepoStub) Create(ctx context.Context, action *models.CorrectiveAction) error {
	r.seq++
	action.ID = fmt.Sprintf("ca-%d", r.seq)
	cp := *action
	r.actions[action.ID] = &cp
	return nil
}

func (r *actionRepoStub) GetByID(ctx context.Context, tenantID, id string) (*models.CorrectiveAction, error) {
	action, ok := r.actions[id]
	if !ok || action.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	stored := *action
	return &stored, nil
}

func (r *actionRepoStub) List(ctx context.Context, filter models.CorrectiveActionFilter) ([]models.CorrectiveAction, int, error) {
	r.filter = filter
	out := make([]models.CorrectiveAction, 0)
	for _, action := range r.actions {
		if filter.AssignedTo != "" && action.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.OverdueAt != nil && !(action.DueDate.Before(*filter.OverdueAt) && !action.Status.IsClosed()) {
			continue
		}
		out = append(out, *action)
	}
	return out, len(out), nil
}

func (r *actionRepoStub) Update(ctx context.Context, action *models.CorrectiveAction, expected models.CorrectiveActionStatus) error {
	stored, ok := r.actions[action.ID]
	if !ok || stored.Status != expected {
		return sql.ErrNoRows
	}
	cp := *action
	r.actions[action.ID] = &cp
	return nil
}

func (r *actionRepoStub) ChangeStatus(ctx context.Context, change repository.ActionStatusChange) (models.NonConformityStatus, error) {
	stored, ok := r.actions[change.ID]
	if !ok || stored.Status != change.From {
		return "", sql.ErrNoRows
	}
	stored.Status = change.To
	if edit := change.Edit; edit != nil {
		stored.ActionDescription = edit.ActionDescription
		stored.AssignedTo = edit.AssignedTo
		stored.DueDate = edit.DueDate
		stored.Notes = edit.Notes
	}
	r.changes = append(r.changes, change)
	if stored.NonConformityID == nil {
		return "", nil
	}
	nc := r.findings[*stored.NonConformityID]
	var target models.NonConformityStatus
	switch change.To {
	case models.ActionStatusInProgress:
		target = models.NonConformityInProgress
	case models.ActionStatusCompleted, models.ActionStatusVerified:
		open, unverified := 0, 0
		for _, a := range r.actions {
			if a.NonConformityID == nil || *a.NonConformityID != nc.ID {
				continue
			}
			switch a.Status {
			case models.ActionStatusAssigned, models.ActionStatusInProgress:
				open++
			case models.ActionStatusCompleted:
				unverified++
			}
		}
		if open > 0 {
			return "", nil
		}
		target = models.NonConformityResolved
		if unverified == 0 {
			target = models.NonConformityVerified
		}
	default:
		return "", nil
	}
	if target.Rank() <= nc.Status.Rank() {
		return "", nil
	}
	nc.Status = target
	return target, nil
}

func (r *actionRepoStub) GetNonConformity(ctx context.Context, tenantID, id string) (*models.NonConformity, error) {
	nc, ok := r.findings[id]
	if !ok || nc.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return nc, nil
}

type ncReaderFunc func(ctx context.Context, tenantID, id string) (*models.NonConformity, error)

func (f ncReaderFunc) GetByID(ctx context.Context, tenantID, id string) (*models.NonConformity, error) {
	return f(ctx, tenantID, id)
}

type actionFixture struct {
	repo   *actionRepoStub
	svc    *CorrectiveActionService
	events *eventStub
	audit  *auditStub
	now    *time.Time
}

func newActionFixture(t *testing.T) *actionFixture {
	t.Helper()
	now := testNow
	f := &actionFixture{repo: newActionRepoStub(), events: &eventStub{}, audit: &auditStub{}, now: &now}
	clock := Clock{Location: time.UTC, NowFunc: func() time.Time { return *f.now }}
	f.svc = NewCorrectiveActionService(f.repo, ncReaderFunc(f.repo.GetNonConformity), newDirectoryStub(), f.audit, f.events, nil,
		CorrectiveActionConfig{Clock: clock}, nil, nil)
	return f
}

func (f *actionFixture) create(t *testing.T, req dto.CreateCorrectiveActionRequest) *models.CorrectiveActionView {
	t.Helper()
	view, err := f.svc.Create(context.Background(), req, actorManager())
	require.NoError(t, err)
	return view
}

func TestCorrectiveActionCreateWithPriorityOffset(t *testing.T) {
	f := newActionFixture(t)

	cases := map[string]int{"critical": 1, "urgent": 7, "normal": 30, "planned": 90}
	for priority, offset := range cases {
		view := f.create(t, dto.CreateCorrectiveActionRequest{
			ActionDescription: "Replace fridge seal",
			AssignedTo:        "staff-1",
			Priority:          strPtr(priority),
		})
		assert.Equal(t, day(offset), view.DueDate, priority)
		assert.Equal(t, models.ActionStatusAssigned, view.Status)
		assert.False(t, view.IsOverdue)
	}
	assert.Len(t, f.events.types(), 4)
	assert.Equal(t, []string{"staff-1"}, f.events.events[0].Recipients)
}

func TestCorrectiveActionCreateValidation(t *testing.T) {
	f := newActionFixture(t)

	_, err := f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "staff-1",
		DueDate:           strPtr("2026-10-18"),
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "yesterday is rejected")

	_, err = f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "staff-1",
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "due date or priority needed")

	_, err = f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "staff-1",
		Priority:          strPtr("whenever"),
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "ghost",
		DueDate:           strPtr("2026-10-20"),
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		NonConformityID:   strPtr("nc-404"),
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "staff-1",
		DueDate:           strPtr("2026-10-20"),
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		ActionDescription: "Replace fridge seal",
		AssignedTo:        "staff-1",
		DueDate:           strPtr("2026-10-20"),
	}, actorStaff())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	assert.Empty(t, f.repo.actions)
}

func TestCorrectiveActionCreateByInspector(t *testing.T) {
	f := newActionFixture(t)

	view, err := f.svc.Create(context.Background(), dto.CreateCorrectiveActionRequest{
		NonConformityID:   strPtr("nc-1"),
		ActionDescription: "Relabel allergen shelf",
		AssignedTo:        "staff-1",
		DueDate:           strPtr("2026-10-20"),
	}, actorInspector())
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusAssigned, view.Status)
	assert.Equal(t, "inspector-1", view.CreatedBy)
	assert.False(t, view.IsOverdue)
}

func TestCorrectiveActionLifecyclePropagatesToFinding(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{
		NonConformityID:   strPtr("nc-1"),
		ActionDescription: "Recalibrate fridge thermostat",
		AssignedTo:        "staff-1",
		DueDate:           strPtr("2026-10-21"),
	})

	started, err := f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "in_progress"}, actorStaff())
	require.NoError(t, err)
	assert.Equal(t, models.NonConformityInProgress, started.NonConformityStatus)
	assert.Equal(t, models.NonConformityInProgress, f.repo.findings["nc-1"].Status)

	completed, err := f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{
		Status:          "completed",
		CompletionNotes: strPtr("thermostat replaced"),
	}, actorStaff())
	require.NoError(t, err)
	require.NotNil(t, completed.CompletionDate)
	assert.Equal(t, testNow, *completed.CompletionDate)
	assert.Equal(t, models.NonConformityResolved, completed.NonConformityStatus)

	_, err = f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "verified"}, actorStaff())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	verified, err := f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "verified", VerificationNotes: strPtr("checked at 3°C")}, actorManager())
	require.NoError(t, err)
	assert.Equal(t, "manager-1", *verified.VerifiedBy)
	assert.Equal(t, models.NonConformityVerified, verified.NonConformityStatus)
	assert.Equal(t, models.NonConformityVerified, f.repo.findings["nc-1"].Status)

	_, err = f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "in_progress"}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCorrectiveActionFindingWaitsForSiblings(t *testing.T) {
	f := newActionFixture(t)
	req := dto.CreateCorrectiveActionRequest{NonConformityID: strPtr("nc-1"), ActionDescription: "Deep clean", AssignedTo: "staff-1", Priority: strPtr("urgent")}
	first := f.create(t, req)
	f.create(t, req)

	done, err := f.svc.ChangeStatus(context.Background(), first.ID, dto.ChangeActionStatusRequest{Status: "completed"}, actorManager())
	require.NoError(t, err)
	assert.Empty(t, done.NonConformityStatus)
	assert.Equal(t, models.NonConformityOpen, f.repo.findings["nc-1"].Status)
}

func TestCorrectiveActionTransitionRules(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("normal")})

	_, err := f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "verified"}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "in_progress"}, actorInspector())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Archive(context.Background(), view.ID, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "only completed actions can be archived")

	_, err = f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "completed", CompletionDate: strPtr("2026-10-25")}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "completion in the future")

	_, err = f.svc.ChangeStatus(context.Background(), view.ID, dto.ChangeActionStatusRequest{Status: "completed", CompletionDate: strPtr("2026-10-18")}, actorManager())
	require.NoError(t, err)

	_, err = f.svc.Archive(context.Background(), view.ID, actorStaff())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	archived, err := f.svc.Archive(context.Background(), view.ID, actorManager())
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)
	assert.Contains(t, f.audit.actions(), models.AuditActionActionArchive)
}

func TestCorrectiveActionUpdate(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("normal")})

	updated, err := f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{
		ActionDescription: strPtr("Fix and oil door hinge"),
		AssignedTo:        strPtr("inspector-1"),
		DueDate:           strPtr("2026-10-30"),
	}, actorManager())
	require.NoError(t, err)
	assert.Equal(t, "Fix and oil door hinge", updated.ActionDescription)
	assert.Equal(t, "Ivo Inspector", updated.AssigneeName)
	assert.Equal(t, day(11), updated.DueDate)
	assert.Equal(t, 2, len(f.events.types()), "reassignment notifies the new assignee")

	_, err = f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{Notes: strPtr("x")}, actorStaff())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	routed, err := f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{Status: strPtr("completed"), CompletionNotes: strPtr("done")}, actorManager())
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusCompleted, routed.Status)

	_, err = f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{DueDate: strPtr("2026-11-30")}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCorrectiveActionUpdateRejectedTransitionKeepsEdits(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("normal")})
	auditsBefore := len(f.audit.actions())

	_, err := f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{
		ActionDescription: strPtr("EDITED"),
		Status:            strPtr("verified"),
	}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	stored := f.repo.actions[view.ID]
	assert.Equal(t, "Fix door", stored.ActionDescription)
	assert.Equal(t, models.ActionStatusAssigned, stored.Status)
	assert.Empty(t, f.repo.changes)
	assert.Len(t, f.audit.actions(), auditsBefore)
}

func TestCorrectiveActionUpdateEditsWithTransition(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("normal")})

	updated, err := f.svc.Update(context.Background(), view.ID, dto.UpdateCorrectiveActionRequest{
		ActionDescription: strPtr("Replace door seal"),
		AssignedTo:        strPtr("inspector-1"),
		Status:            strPtr("in_progress"),
	}, actorManager())
	require.NoError(t, err)
	assert.Equal(t, "Replace door seal", updated.ActionDescription)
	assert.Equal(t, "Ivo Inspector", updated.AssigneeName)
	assert.Equal(t, models.ActionStatusInProgress, updated.Status)

	require.Len(t, f.repo.changes, 1)
	require.NotNil(t, f.repo.changes[0].Edit)
	assert.Equal(t, "inspector-1", f.repo.changes[0].Edit.AssignedTo)
	stored := f.repo.actions[view.ID]
	assert.Equal(t, "Replace door seal", stored.ActionDescription)
	assert.Equal(t, models.ActionStatusInProgress, stored.Status)
	assert.Contains(t, f.audit.actions(), models.AuditActionActionUpdate)
	assert.Contains(t, f.audit.actions(), models.AuditActionActionStatus)
	assert.Equal(t, 2, len(f.events.types()), "reassignment notifies the new assignee")
}

func TestCorrectiveActionOverdueListing(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("critical")})

	later := testNow.AddDate(0, 0, 2)
	f.now = &later

	views, _, err := f.svc.List(context.Background(), dto.CorrectiveActionQuery{Overdue: true}, actorManager())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, view.ID, views[0].ID)
	assert.True(t, views[0].IsOverdue)
	assert.Equal(t, later, *f.repo.filter.OverdueAt)

	_, _, err = f.svc.List(context.Background(), dto.CorrectiveActionQuery{}, actorStaff())
	require.NoError(t, err)
	assert.Equal(t, "staff-1", f.repo.filter.AssignedTo)

	_, _, err = f.svc.List(context.Background(), dto.CorrectiveActionQuery{Status: []string{"done"}}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCorrectiveActionStaleTransitionConflicts(t *testing.T) {
	f := newActionFixture(t)
	view := f.create(t, dto.CreateCorrectiveActionRequest{ActionDescription: "Fix door", AssignedTo: "staff-1", Priority: strPtr("normal")})

	action, err := f.svc.load(context.Background(), actorManager(), view.ID)
	require.NoError(t, err)
	f.repo.actions[view.ID].Status = models.ActionStatusInProgress

	_, err = f.svc.changeStatus(context.Background(), action, dto.ChangeActionStatusRequest{Status: "completed"}, nil, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}
