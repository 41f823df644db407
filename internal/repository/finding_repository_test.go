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

func TestFindingRepositoryRecordResponseStartsExecutionAndRaisesFinding(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewFindingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM audit_executions WHERE id = $1 AND tenant_id = $2 FOR UPDATE")).
		WithArgs("exec-1", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("todo"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_executions SET status = $2")).
		WithArgs("exec-1", "in_progress", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_responses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("resp-1", fixedTime))
	mock.ExpectQuery(regexp.QuoteMeta("FROM non_conformities n WHERE n.response_id = $1")).
		WithArgs("resp-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO non_conformities")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RecordResponse(context.Background(), RecordResponseParams{
		TenantID: "tenant-1",
		Response: &models.AuditResponse{ExecutionID: "exec-1", ItemID: "item-1", Value: "no", RecordedBy: "insp-1"},
		Finding:  &models.NonConformity{Severity: models.SeverityCritical, Description: "Fridge above 5C"},
		At:       fixedTime,
	})
	require.NoError(t, err)
	assert.True(t, result.Started)
	assert.True(t, result.CreatedFinding)
	assert.Equal(t, "resp-1", result.Response.ID)
	require.NotNil(t, result.NonConformity)
	assert.Equal(t, models.NonConformityOpen, result.NonConformity.Status)
	assert.Equal(t, "resp-1", *result.NonConformity.ResponseID)
	assert.Equal(t, "tenant-1", result.NonConformity.TenantID)
}

func TestFindingRepositoryRecordResponseKeepsExistingFinding(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewFindingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_responses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("resp-1", fixedTime))
	mock.ExpectQuery(regexp.QuoteMeta("FROM non_conformities n WHERE n.response_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "execution_id", "response_id", "item_id", "severity", "description", "evidence", "status", "identified_date", "created_at", "updated_at"}).
			AddRow("nc-1", "tenant-1", "exec-1", "resp-1", "item-1", "critical", "Fridge above 5C", nil, "open", fixedTime, fixedTime, fixedTime))
	mock.ExpectCommit()

	result, err := repo.RecordResponse(context.Background(), RecordResponseParams{
		TenantID: "tenant-1",
		Response: &models.AuditResponse{ExecutionID: "exec-1", ItemID: "item-1", Value: "no", RecordedBy: "insp-1"},
		Finding:  &models.NonConformity{Severity: models.SeverityCritical},
		At:       fixedTime,
	})
	require.NoError(t, err)
	assert.False(t, result.Started)
	assert.False(t, result.CreatedFinding)
	assert.Equal(t, "nc-1", result.NonConformity.ID)
}

func TestFindingRepositoryRecordConformingResponseRemovesOpenFinding(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewFindingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_responses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("resp-1", fixedTime))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM non_conformities WHERE response_id = $1 AND status = $2")).
		WithArgs("resp-1", "open").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RecordResponse(context.Background(), RecordResponseParams{
		TenantID: "tenant-1",
		Response: &models.AuditResponse{ExecutionID: "exec-1", ItemID: "item-1", Value: "yes", RecordedBy: "insp-1"},
		At:       fixedTime,
	})
	require.NoError(t, err)
	assert.True(t, result.RemovedFinding)
	assert.Nil(t, result.NonConformity)
}

func TestFindingRepositoryRecordResponseRejectsClosedExecution(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewFindingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	_, err := repo.RecordResponse(context.Background(), RecordResponseParams{
		TenantID: "tenant-1",
		Response: &models.AuditResponse{ExecutionID: "exec-1", ItemID: "item-1", Value: "yes"},
		At:       fixedTime,
	})
	assert.True(t, errors.Is(err, ErrExecutionClosed))
}

func TestFindingRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewFindingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE non_conformities SET status = $4, updated_at = $5 WHERE id = $1 AND tenant_id = $2 AND status = $3")).
		WithArgs("nc-1", "tenant-1", "open", "in_progress", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "tenant-1", "nc-1", models.NonConformityOpen, models.NonConformityInProgress, fixedTime))
}
