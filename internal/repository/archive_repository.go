package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

// ErrExecutionNotClosed is returned when archiving an execution that is not completed or reviewed.
var ErrExecutionNotClosed = errors.New("execution is not completed or reviewed")

const archiveColumns = `id, tenant_id, execution_id, template_id, template_name, template_category, restaurant_name, inspector_name,
       scheduled_date, completed_date, final_status, total_score, max_possible_score, score_percentage,
       responses_data, non_conformities_data, corrective_actions_data, archived_by, archived_at`

// ArchiveRepository persists immutable audit archives.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ArchiveExecution writes the archive row and removes the live execution, its responses and
// its non-conformities in one transaction. Corrective actions survive detached from the
// deleted findings.
func (r *ArchiveRepository) ArchiveExecution(ctx context.Context, archive *models.AuditArchive) (err error) {
	if archive.ID == "" {
		archive.ID = uuid.NewString()
	}
	if archive.ArchivedAt.IsZero() {
		archive.ArchivedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.ExecutionStatus
	const lockQuery = `SELECT status FROM audit_executions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &status, lockQuery, archive.ExecutionID, archive.TenantID); err != nil {
		return err
	}
	if !status.IsCloseable() {
		err = ErrExecutionNotClosed
		return err
	}

	insertQuery := fmt.Sprintf(`INSERT INTO audit_archives (%s) VALUES (:id, :tenant_id, :execution_id, :template_id, :template_name, :template_category,
	:restaurant_name, :inspector_name, :scheduled_date, :completed_date, :final_status, :total_score, :max_possible_score, :score_percentage,
	:responses_data, :non_conformities_data, :corrective_actions_data, :archived_by, :archived_at)`, archiveColumns)
	if _, err = tx.NamedExecContext(ctx, insertQuery, archive); err != nil {
		return fmt.Errorf("insert audit archive: %w", mapPQError(err))
	}

	if _, err = tx.ExecContext(ctx, `UPDATE corrective_actions SET non_conformity_id = NULL, updated_at = $2
	WHERE non_conformity_id IN (SELECT id FROM non_conformities WHERE execution_id = $1)`, archive.ExecutionID, archive.ArchivedAt); err != nil {
		return fmt.Errorf("detach corrective actions: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM non_conformities WHERE execution_id = $1`, archive.ExecutionID); err != nil {
		return fmt.Errorf("delete archived non-conformities: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM audit_responses WHERE execution_id = $1`, archive.ExecutionID); err != nil {
		return fmt.Errorf("delete archived responses: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM audit_executions WHERE id = $1`, archive.ExecutionID); err != nil {
		return fmt.Errorf("delete archived execution: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}
	return nil
}

// ExistsForExecution reports whether the execution was already archived for the tenant.
func (r *ArchiveRepository) ExistsForExecution(ctx context.Context, tenantID, executionID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM audit_archives WHERE tenant_id = $1 AND execution_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tenantID, executionID); err != nil {
		return false, fmt.Errorf("check audit archive: %w", err)
	}
	return exists, nil
}

// GetByID returns a tenant archive or sql.ErrNoRows.
func (r *ArchiveRepository) GetByID(ctx context.Context, tenantID, id string) (*models.AuditArchive, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_archives WHERE id = $1 AND tenant_id = $2", archiveColumns)
	var archive models.AuditArchive
	if err := r.db.GetContext(ctx, &archive, query, id, tenantID); err != nil {
		return nil, err
	}
	return &archive, nil
}

// List returns tenant archives matching the filter, most recently completed first.
func (r *ArchiveRepository) List(ctx context.Context, filter models.ArchiveFilter) ([]models.AuditArchive, int, error) {
	args := []interface{}{filter.TenantID}
	conditions := []string{"tenant_id = $1"}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("template_category = $%d", len(args)))
	}
	if filter.RestaurantName != "" {
		args = append(args, "%"+strings.ToLower(filter.RestaurantName)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(restaurant_name) LIKE $%d", len(args)))
	}
	if filter.InspectorName != "" {
		args = append(args, "%"+strings.ToLower(filter.InspectorName)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(inspector_name) LIKE $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("completed_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("completed_date < $%d", len(args)))
	}
	if filter.MinScore != nil {
		args = append(args, *filter.MinScore)
		conditions = append(conditions, fmt.Sprintf("score_percentage >= $%d", len(args)))
	}
	if filter.MaxScore != nil {
		args = append(args, *filter.MaxScore)
		conditions = append(conditions, fmt.Sprintf("score_percentage <= $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s FROM audit_archives%s ORDER BY completed_date DESC LIMIT %d OFFSET %d", archiveColumns, where, page.PageSize, page.Offset())

	var archives []models.AuditArchive
	if err := r.db.SelectContext(ctx, &archives, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit archives: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_archives"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit archives: %w", err)
	}
	return archives, total, nil
}

// Stats aggregates archive count, average score percentage and per-category counts.
func (r *ArchiveRepository) Stats(ctx context.Context, tenantID string) (*models.ArchiveStats, error) {
	var totals struct {
		Total   int     `db:"total"`
		Average float64 `db:"average"`
	}
	const totalsQuery = `SELECT COUNT(*) AS total, COALESCE(AVG(score_percentage), 0) AS average FROM audit_archives WHERE tenant_id = $1`
	if err := r.db.GetContext(ctx, &totals, totalsQuery, tenantID); err != nil {
		return nil, fmt.Errorf("aggregate audit archives: %w", err)
	}

	const categoryQuery = `SELECT template_category AS category, COUNT(*) AS count FROM audit_archives
	WHERE tenant_id = $1 GROUP BY template_category ORDER BY count DESC, category ASC`
	categories := make([]models.ArchiveCategoryCount, 0)
	if err := r.db.SelectContext(ctx, &categories, categoryQuery, tenantID); err != nil {
		return nil, fmt.Errorf("aggregate archive categories: %w", err)
	}

	return &models.ArchiveStats{
		TotalArchives: totals.Total,
		AverageScore:  totals.Average,
		Categories:    categories,
	}, nil
}
