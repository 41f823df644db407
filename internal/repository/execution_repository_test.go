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

var executionRowColumns = []string{
	"id", "tenant_id", "template_id", "restaurant_id", "inspector_id", "scheduled_date", "status", "notes",
	"started_at", "completed_at", "reviewed_at", "reviewed_by", "review_notes", "total_score", "max_possible_score",
	"created_by", "created_at", "updated_at", "template_name", "template_category", "restaurant_name", "inspector_name",
}

func TestExecutionRepositoryGetByIDScopesTenant(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	rows := sqlmock.NewRows(executionRowColumns).AddRow(
		"exec-1", "tenant-1", "tpl-1", "resto-1", "insp-1", fixedTime, "todo", nil,
		nil, nil, nil, nil, nil, nil, nil,
		"mgr-1", fixedTime, fixedTime, "Kitchen hygiene", "hygiene", "Le Bistro", "Ines Inspector",
	)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.id = $1 AND e.tenant_id = $2")).
		WithArgs("exec-1", "tenant-1").
		WillReturnRows(rows)

	exec, err := repo.GetByID(context.Background(), "tenant-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusTodo, exec.Status)
	assert.Equal(t, "Le Bistro", exec.RestaurantName)
}

func TestExecutionRepositoryGetByIDOtherTenantNotFound(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.id = $1 AND e.tenant_id = $2")).
		WithArgs("exec-1", "tenant-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "tenant-2", "exec-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestExecutionRepositoryListActiveOnly(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.tenant_id = $1 AND e.status = ANY($2) AND e.restaurant_id = $3 ORDER BY e.scheduled_date ASC")).
		WithArgs("tenant-1", sqlmock.AnyArg(), "resto-1").
		WillReturnRows(sqlmock.NewRows(executionRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_executions e WHERE e.tenant_id = $1")).
		WithArgs("tenant-1", sqlmock.AnyArg(), "resto-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), models.ExecutionFilter{TenantID: "tenant-1", RestaurantID: "resto-1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestExecutionRepositoryTransitionCompletedStoresScores(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	total, max := 7.0, 10.0
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_executions SET status = $4, updated_at = $5, completed_at = $5, total_score = $6, max_possible_score = $7 WHERE id = $1 AND tenant_id = $2 AND status = $3")).
		WithArgs("exec-1", "tenant-1", "in_progress", "completed", fixedTime, total, max).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), ExecutionTransition{
		ID: "exec-1", TenantID: "tenant-1",
		From: models.ExecutionStatusInProgress, To: models.ExecutionStatusCompleted,
		At: fixedTime, TotalScore: &total, MaxScore: &max,
	})
	require.NoError(t, err)
}

func TestExecutionRepositoryTransitionStaleStatus(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_executions SET status = $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), ExecutionTransition{
		ID: "exec-1", TenantID: "tenant-1",
		From: models.ExecutionStatusTodo, To: models.ExecutionStatusInProgress, At: fixedTime,
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestExecutionRepositoryDeleteOnlyNotStarted(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewExecutionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_executions WHERE id = $1 AND tenant_id = $2 AND status = ANY($3)")).
		WithArgs("exec-1", "tenant-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "tenant-1", "exec-1", []models.ExecutionStatus{models.ExecutionStatusTodo, models.ExecutionStatusScheduled})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
