package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

func TestCorrectiveActionRepositoryInProgressPropagates(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE corrective_actions SET status = $4, updated_at = $5 WHERE id = $1 AND tenant_id = $2 AND status = $3 RETURNING non_conformity_id")).
		WithArgs("ca-1", "tenant-1", "assigned", "in_progress", fixedTime).
		WillReturnRows(sqlmock.NewRows([]string{"non_conformity_id"}).AddRow("nc-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE non_conformities SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)")).
		WithArgs("nc-1", "in_progress", fixedTime, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status, err := repo.ChangeStatus(context.Background(), ActionStatusChange{
		ID: "ca-1", TenantID: "tenant-1",
		From: models.ActionStatusAssigned, To: models.ActionStatusInProgress, At: fixedTime,
	})
	require.NoError(t, err)
	assert.Equal(t, models.NonConformityInProgress, status)
}

func TestCorrectiveActionRepositoryCompletedResolvesWhenNothingOpen(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	completedAt := fixedTime
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("completion_date = $6, completion_notes = COALESCE($7, completion_notes)")).
		WillReturnRows(sqlmock.NewRows([]string{"non_conformity_id"}).AddRow("nc-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM corrective_actions WHERE non_conformity_id = $1")).
		WithArgs("nc-1").
		WillReturnRows(sqlmock.NewRows([]string{"open", "unverified"}).AddRow(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE non_conformities SET status = $2")).
		WithArgs("nc-1", "resolved", fixedTime, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status, err := repo.ChangeStatus(context.Background(), ActionStatusChange{
		ID: "ca-1", TenantID: "tenant-1",
		From: models.ActionStatusInProgress, To: models.ActionStatusCompleted,
		At: fixedTime, CompletionDate: &completedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, models.NonConformityResolved, status)
}

func TestCorrectiveActionRepositoryCompletedWaitsForSiblings(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING non_conformity_id")).
		WillReturnRows(sqlmock.NewRows([]string{"non_conformity_id"}).AddRow("nc-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM corrective_actions WHERE non_conformity_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"open", "unverified"}).AddRow(1, 1))
	mock.ExpectCommit()

	status, err := repo.ChangeStatus(context.Background(), ActionStatusChange{
		ID: "ca-1", TenantID: "tenant-1",
		From: models.ActionStatusInProgress, To: models.ActionStatusCompleted, At: fixedTime,
	})
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestCorrectiveActionRepositoryStaleStatusRollsBack(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING non_conformity_id")).
		WillReturnRows(sqlmock.NewRows([]string{"non_conformity_id"}))
	mock.ExpectRollback()

	_, err := repo.ChangeStatus(context.Background(), ActionStatusChange{
		ID: "ca-1", TenantID: "tenant-1",
		From: models.ActionStatusAssigned, To: models.ActionStatusInProgress, At: fixedTime,
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCorrectiveActionRepositoryChangeStatusWithEdit(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	due := fixedTime.AddDate(0, 0, 3)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE corrective_actions SET status = $4, updated_at = $5, action_description = $6, assigned_to = $7, due_date = $8, notes = $9 WHERE id = $1 AND tenant_id = $2 AND status = $3")).
		WithArgs("ca-1", "tenant-1", "assigned", "in_progress", fixedTime, "Replace door seal", "user-2", due, nil).
		WillReturnRows(sqlmock.NewRows([]string{"non_conformity_id"}).AddRow(nil))
	mock.ExpectCommit()

	status, err := repo.ChangeStatus(context.Background(), ActionStatusChange{
		ID: "ca-1", TenantID: "tenant-1",
		From: models.ActionStatusAssigned, To: models.ActionStatusInProgress, At: fixedTime,
		Edit: &ActionEdit{ActionDescription: "Replace door seal", AssignedTo: "user-2", DueDate: due},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NonConformityStatus(""), status)
}

func TestCorrectiveActionRepositoryListExcludesArchivedByDefault(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewCorrectiveActionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.tenant_id = $1 AND a.status <> $2 AND a.assigned_to = $3")).
		WithArgs("tenant-1", "archived", "staff-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM corrective_actions a WHERE a.tenant_id = $1")).
		WithArgs("tenant-1", "archived", "staff-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	actions, total, err := repo.List(context.Background(), models.CorrectiveActionFilter{TenantID: "tenant-1", AssignedTo: "staff-1"})
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Zero(t, total)
}
