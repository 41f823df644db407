package service

import (
	"context"
	"database/sql"
	"encoding/json"
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

// findingRepoStub mirrors the transactional upsert on top of the execution stub.
type findingRepoStub struct {
	executions *executionRepoStub
	responses  map[string]*models.AuditResponse
	findings   map[string]*models.NonConformity
	seq        int
}

func newFindingRepoStub(executions *executionRepoStub) *findingRepoStub {
	return &findingRepoStub{
		executions: executions,
		responses:  make(map[string]*models.AuditResponse),
		findings:   make(map[string]*models.NonConformity),
	}
}

func (r *findingRepoStub) RecordResponse(ctx context.Context, params repository.RecordResponseParams) (*repository.RecordResponseResult, error) {
	exec, ok := r.executions.executions[params.Response.ExecutionID]
	if !ok || exec.TenantID != params.TenantID {
		return nil, sql.ErrNoRows
	}
	result := &repository.RecordResponseResult{PreviousStatus: exec.Status}
	if exec.Status.IsCloseable() {
		return nil, repository.ErrExecutionClosed
	}
	if exec.Status == models.ExecutionStatusTodo || exec.Status == models.ExecutionStatusScheduled {
		exec.Status = models.ExecutionStatusInProgress
		result.Started = true
	}

	key := params.Response.ExecutionID + "/" + params.Response.ItemID
	if existing, ok := r.responses[key]; ok {
		params.Response.ID = existing.ID
	} else {
		r.seq++
		params.Response.ID = fmt.Sprintf("resp-%d", r.seq)
	}
	stored := *params.Response
	r.responses[key] = &stored
	result.Response = params.Response

	var current *models.NonConformity
	for _, nc := range r.findings {
		if nc.ResponseID != nil && *nc.ResponseID == params.Response.ID {
			current = nc
		}
	}
	switch {
	case params.Finding == nil && current != nil && current.Status == models.NonConformityOpen:
		delete(r.findings, current.ID)
		result.RemovedFinding = true
	case params.Finding != nil && current != nil:
		result.NonConformity = current
	case params.Finding != nil:
		nc := params.Finding
		r.seq++
		nc.ID = fmt.Sprintf("nc-%d", r.seq)
		nc.TenantID = params.TenantID
		nc.ExecutionID = params.Response.ExecutionID
		responseID := params.Response.ID
		nc.ResponseID = &responseID
		nc.ItemID = params.Response.ItemID
		nc.Status = models.NonConformityOpen
		nc.IdentifiedDate = params.At
		r.findings[nc.ID] = nc
		result.NonConformity = nc
		result.CreatedFinding = true
	}
	return result, nil
}

func (r *findingRepoStub) List(ctx context.Context, filter models.NonConformityFilter) ([]models.NonConformity, int, error) {
	out := make([]models.NonConformity, 0)
	for _, nc := range r.findings {
		if nc.TenantID == filter.TenantID && (filter.Severity == "" || nc.Severity == filter.Severity) {
			out = append(out, *nc)
		}
	}
	return out, len(out), nil
}

func (r *findingRepoStub) GetByID(ctx context.Context, tenantID, id string) (*models.NonConformity, error) {
	nc, ok := r.findings[id]
	if !ok || nc.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	copy := *nc
	return &copy, nil
}

func (r *findingRepoStub) UpdateStatus(ctx context.Context, tenantID, id string, from, to models.NonConformityStatus, at time.Time) error {
	nc, ok := r.findings[id]
	if !ok || nc.TenantID != tenantID || nc.Status != from {
		return sql.ErrNoRows
	}
	nc.Status = to
	return nil
}

type findingFixture struct {
	exec *executionFixture
	repo *findingRepoStub
	svc  *FindingService
	id   string
}

func newFindingFixture(t *testing.T) *findingFixture {
	t.Helper()
	ef := newExecutionFixture(t)
	view := ef.schedule(t, "2026-10-19")
	repo := newFindingRepoStub(ef.repo)
	svc := NewFindingService(repo, ef.repo, ef.templates, ef.audit, nil,
		FindingConfig{Clock: fixedClock(testNow), Policy: DefaultFindingPolicy()}, nil, nil)
	return &findingFixture{exec: ef, repo: repo, svc: svc, id: view.ID}
}

func (f *findingFixture) record(t *testing.T, itemID, value string, actor *models.AuthorizationContext) (*models.ResponseOutcome, error) {
	t.Helper()
	return f.svc.RecordResponse(context.Background(), f.id, dto.RecordResponseRequest{
		ItemID: itemID,
		Value:  json.RawMessage(value),
	}, actor)
}

func TestFindingServiceCriticalNoRaisesFindingAndStartsAudit(t *testing.T) {
	f := newFindingFixture(t)

	outcome, err := f.record(t, "item-1", `"no"`, actorInspector())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, outcome.ExecutionStatus)
	require.NotNil(t, outcome.NonConformity)
	assert.Equal(t, models.SeverityCritical, outcome.NonConformity.Severity)
	assert.Equal(t, models.NonConformityOpen, outcome.NonConformity.Status)
	assert.Equal(t, "no", outcome.Response.Value)
	assert.Equal(t, 0.0, *outcome.Response.Score)
	assert.Equal(t, models.ExecutionStatusInProgress, f.exec.repo.executions[f.id].Status)

	again, err := f.record(t, "item-1", `false`, actorInspector())
	require.NoError(t, err)
	assert.Equal(t, outcome.NonConformity.ID, again.NonConformity.ID)
	assert.Len(t, f.repo.findings, 1)
	assert.Len(t, f.repo.responses, 1)
}

func TestFindingServiceConformingAnswerRemovesOpenFinding(t *testing.T) {
	f := newFindingFixture(t)

	_, err := f.record(t, "item-1", `"no"`, actorInspector())
	require.NoError(t, err)
	require.Len(t, f.repo.findings, 1)

	outcome, err := f.record(t, "item-1", `true`, actorInspector())
	require.NoError(t, err)
	assert.True(t, outcome.FindingRemoved)
	assert.Nil(t, outcome.NonConformity)
	assert.Empty(t, f.repo.findings)
}

func TestFindingServiceScoreThreshold(t *testing.T) {
	f := newFindingFixture(t)

	low, err := f.record(t, "item-2", `4`, actorInspector())
	require.NoError(t, err)
	require.NotNil(t, low.NonConformity)
	assert.Equal(t, models.SeverityMedium, low.NonConformity.Severity)

	ok, err := f.record(t, "item-2", `5`, actorInspector())
	require.NoError(t, err)
	assert.Nil(t, ok.NonConformity)
	assert.True(t, ok.FindingRemoved)
	assert.Equal(t, "5", ok.Response.Value)
}

func TestFindingServiceValueShapes(t *testing.T) {
	f := newFindingFixture(t)

	cases := []struct {
		item  string
		value string
	}{
		{"item-1", `"maybe"`},
		{"item-1", `1`},
		{"item-2", `11`},
		{"item-2", `-1`},
		{"item-2", `"7"`},
		{"item-3", `""`},
		{"item-3", `42`},
		{"item-9", `"yes"`},
	}
	for _, tc := range cases {
		t.Run(tc.item+" "+tc.value, func(t *testing.T) {
			_, err := f.record(t, tc.item, tc.value, actorInspector())
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), "got %v", err)
		})
	}

	outcome, err := f.record(t, "item-3", `"  grease trap needs service "`, actorInspector())
	require.NoError(t, err)
	assert.Equal(t, "grease trap needs service", outcome.Response.Value)
	assert.Nil(t, outcome.Response.Score)
}

func TestFindingServiceRecordPermissions(t *testing.T) {
	f := newFindingFixture(t)

	stranger := &models.AuthorizationContext{UserID: "inspector-2", TenantID: "tenant-1", Role: models.RoleInspector}
	_, err := f.record(t, "item-1", `"yes"`, stranger)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.record(t, "item-1", `"yes"`, actorManager())
	require.NoError(t, err)

	otherTenant := &models.AuthorizationContext{UserID: "manager-9", TenantID: "tenant-2", Role: models.RoleManager}
	_, err = f.record(t, "item-1", `"yes"`, otherTenant)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFindingServiceRejectsClosedAudit(t *testing.T) {
	f := newFindingFixture(t)
	f.exec.repo.executions[f.id].Status = models.ExecutionStatusCompleted

	_, err := f.record(t, "item-1", `"yes"`, actorInspector())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.repo.responses)
}

func TestFindingServiceNonConformityStatus(t *testing.T) {
	f := newFindingFixture(t)
	outcome, err := f.record(t, "item-1", `"no"`, actorInspector())
	require.NoError(t, err)
	ncID := outcome.NonConformity.ID

	_, err = f.svc.UpdateNonConformityStatus(context.Background(), ncID, dto.NonConformityStatusRequest{Status: "resolved"}, actorInspector())
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	nc, err := f.svc.UpdateNonConformityStatus(context.Background(), ncID, dto.NonConformityStatusRequest{Status: "resolved"}, actorManager())
	require.NoError(t, err)
	assert.Equal(t, models.NonConformityResolved, nc.Status)

	_, err = f.svc.UpdateNonConformityStatus(context.Background(), ncID, dto.NonConformityStatusRequest{Status: "open"}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.UpdateNonConformityStatus(context.Background(), "nc-missing", dto.NonConformityStatusRequest{Status: "verified"}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	items, pagination, err := f.svc.ListNonConformities(context.Background(), dto.NonConformityQuery{Severity: "critical"}, actorManager())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	_, _, err = f.svc.ListNonConformities(context.Background(), dto.NonConformityQuery{Status: []string{"closed"}}, actorManager())
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestFindingPolicyEvaluate(t *testing.T) {
	policy := FindingPolicy{ScoreThreshold: 0.8, DefaultSeverity: models.SeverityHigh}
	scoreItem := models.AuditItem{Type: models.ItemTypeScore, MaxScore: intPtr(10)}

	raised, severity := policy.Evaluate(scoreItem, Answer{Score: floatRef(7.5)})
	assert.True(t, raised)
	assert.Equal(t, models.SeverityHigh, severity)

	raised, _ = policy.Evaluate(scoreItem, Answer{Score: floatRef(8)})
	assert.False(t, raised)

	raised, _ = policy.Evaluate(models.AuditItem{Type: models.ItemTypeYesNo}, Answer{Value: "no"})
	assert.False(t, raised, "non-critical yes/no answers do not raise findings")

	raised, severity = FindingPolicy{}.Evaluate(models.AuditItem{Type: models.ItemTypeScore, MaxScore: intPtr(4), IsCritical: true}, Answer{Score: floatRef(1)})
	assert.True(t, raised)
	assert.Equal(t, models.SeverityCritical, severity)
}
