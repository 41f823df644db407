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

func TestArchiveRepositoryArchiveExecutionRemovesLiveRows(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM audit_executions WHERE id = $1 AND tenant_id = $2 FOR UPDATE")).
		WithArgs("exec-1", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_archives")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE corrective_actions SET non_conformity_id = NULL")).
		WithArgs("exec-1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM non_conformities WHERE execution_id = $1")).
		WithArgs("exec-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_responses WHERE execution_id = $1")).
		WithArgs("exec-1").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_executions WHERE id = $1")).
		WithArgs("exec-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	archive := &models.AuditArchive{
		TenantID:         "tenant-1",
		ExecutionID:      "exec-1",
		TemplateCategory: models.CategoryHygiene,
		FinalStatus:      models.ExecutionStatusCompleted,
		ResponsesData:    models.JSONList[models.ArchivedResponse]{{ItemID: "item-1", Value: "yes"}},
	}
	require.NoError(t, repo.ArchiveExecution(context.Background(), archive))
	assert.NotEmpty(t, archive.ID)
	assert.False(t, archive.ArchivedAt.IsZero())
}

func TestArchiveRepositoryArchiveExecutionRejectsOpenExecution(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))
	mock.ExpectRollback()

	err := repo.ArchiveExecution(context.Background(), &models.AuditArchive{TenantID: "tenant-1", ExecutionID: "exec-1"})
	assert.True(t, errors.Is(err, ErrExecutionNotClosed))
}

func TestArchiveRepositoryArchiveExecutionMissing(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.ArchiveExecution(context.Background(), &models.AuditArchive{TenantID: "tenant-1", ExecutionID: "exec-1"})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestArchiveRepositoryListScoreRange(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	min, max := 50.0, 90.0
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1 AND LOWER(restaurant_name) LIKE $2 AND score_percentage >= $3 AND score_percentage <= $4 ORDER BY completed_date DESC")).
		WithArgs("tenant-1", "%bistro%", min, max).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_archives WHERE tenant_id = $1")).
		WithArgs("tenant-1", "%bistro%", min, max).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.ArchiveFilter{TenantID: "tenant-1", RestaurantName: "Bistro", MinScore: &min, MaxScore: &max})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestArchiveRepositoryStats(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total, COALESCE(AVG(score_percentage), 0) AS average")).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "average"}).AddRow(3, 76.5))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY template_category")).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).AddRow("hygiene", 2).AddRow("security", 1))

	stats, err := repo.Stats(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalArchives)
	assert.InDelta(t, 76.5, stats.AverageScore, 0.001)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, models.CategoryHygiene, stats.Categories[0].Category)
}
