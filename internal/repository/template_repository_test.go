package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlxDB.Close()
	}
	return sqlxDB, mock, cleanup
}

var fixedTime = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestTemplateRepositoryCreateInsertsItemsInTransaction(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_templates")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tpl := &models.AuditTemplate{
		Name:     "Kitchen hygiene",
		Category: models.CategoryHygiene,
		IsActive: true,
		Items: []models.AuditItem{
			{Question: "Fridge below 5C?", Type: models.ItemTypeYesNo, Required: true, IsCritical: true, Order: 1},
			{Question: "Floor cleanliness", Type: models.ItemTypeScore, Required: true, Order: 2, MaxScore: intPtr(5)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), tpl))
	assert.NotEmpty(t, tpl.ID)
	for _, item := range tpl.Items {
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, tpl.ID, item.TemplateID)
	}
}

func TestTemplateRepositoryUpdateReplacesItems(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_templates SET name")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_items WHERE template_id = $1")).
		WithArgs("tpl-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tpl := &models.AuditTemplate{
		ID:       "tpl-1",
		Name:     "Kitchen hygiene v2",
		Category: models.CategoryHygiene,
		Items:    []models.AuditItem{{Question: "Hands washed?", Type: models.ItemTypeYesNo, Order: 1}},
	}
	require.NoError(t, repo.Update(context.Background(), tpl, true))
	assert.Equal(t, "tpl-1", tpl.Items[0].TemplateID)
}

func TestTemplateRepositoryUpdateMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_templates SET name")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.AuditTemplate{ID: "missing"}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestTemplateRepositoryListFiltersCategory(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "category", "description", "is_active", "estimated_duration", "created_by", "created_at", "updated_at"}).
		AddRow("tpl-1", "Kitchen hygiene", "hygiene", nil, true, 30, "admin-1", fixedTime, fixedTime)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, category")).
		WithArgs("hygiene").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_templates WHERE 1=1 AND category = $1")).
		WithArgs("hygiene").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	templates, total, err := repo.List(context.Background(), models.TemplateFilter{Category: models.CategoryHygiene})
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.CategoryHygiene, templates[0].Category)
}

func TestTemplateRepositoryCountReferences(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_executions WHERE template_id = $1")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"executions", "archives"}).AddRow(2, 1))

	refs, err := repo.CountReferences(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 2, refs.Executions)
	assert.Equal(t, 1, refs.Archives)
}
