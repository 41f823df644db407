package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

const executionSelect = `SELECT e.id, e.tenant_id, e.template_id, e.restaurant_id, e.inspector_id, e.scheduled_date, e.status, e.notes,
       e.started_at, e.completed_at, e.reviewed_at, e.reviewed_by, e.review_notes, e.total_score, e.max_possible_score,
       e.created_by, e.created_at, e.updated_at,
       t.name AS template_name, t.category AS template_category, r.name AS restaurant_name, u.full_name AS inspector_name
FROM audit_executions e
JOIN audit_templates t ON t.id = e.template_id
JOIN restaurants r ON r.id = e.restaurant_id
JOIN users u ON u.id = e.inspector_id`

// ExecutionRepository persists audit executions.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository constructs the repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a scheduled execution.
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.AuditExecution) error {
	now := time.Now().UTC()
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	exec.CreatedAt = now
	exec.UpdatedAt = now
	const query = `INSERT INTO audit_executions (id, tenant_id, template_id, restaurant_id, inspector_id, scheduled_date, status, notes, created_by, created_at, updated_at)
	VALUES (:id, :tenant_id, :template_id, :restaurant_id, :inspector_id, :scheduled_date, :status, :notes, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("create audit execution: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns a tenant execution with denormalized names or sql.ErrNoRows.
func (r *ExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.AuditExecution, error) {
	query := executionSelect + ` WHERE e.id = $1 AND e.tenant_id = $2`
	var exec models.AuditExecution
	if err := r.db.GetContext(ctx, &exec, query, id, tenantID); err != nil {
		return nil, err
	}
	return &exec, nil
}

// List returns tenant executions ordered by scheduled date with the total count.
func (r *ExecutionRepository) List(ctx context.Context, filter models.ExecutionFilter) ([]models.AuditExecution, int, error) {
	args := []interface{}{filter.TenantID}
	conditions := []string{"e.tenant_id = $1"}

	statuses := filter.Status
	if filter.ActiveOnly && len(statuses) == 0 {
		statuses = []models.ExecutionStatus{models.ExecutionStatusTodo, models.ExecutionStatusScheduled, models.ExecutionStatusInProgress}
	}
	if len(statuses) > 0 {
		args = append(args, statusArray(statuses))
		conditions = append(conditions, fmt.Sprintf("e.status = ANY($%d)", len(args)))
	}
	if filter.RestaurantID != "" {
		args = append(args, filter.RestaurantID)
		conditions = append(conditions, fmt.Sprintf("e.restaurant_id = $%d", len(args)))
	}
	if filter.InspectorID != "" {
		args = append(args, filter.InspectorID)
		conditions = append(conditions, fmt.Sprintf("e.inspector_id = $%d", len(args)))
	}
	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		conditions = append(conditions, fmt.Sprintf("e.template_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("e.scheduled_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("e.scheduled_date < $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("%s%s ORDER BY e.scheduled_date ASC, e.created_at ASC LIMIT %d OFFSET %d", executionSelect, where, page.PageSize, page.Offset())

	var executions []models.AuditExecution
	if err := r.db.SelectContext(ctx, &executions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit executions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_executions e"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit executions: %w", err)
	}
	return executions, total, nil
}

// UpdateSchedule rewrites date, inspector, notes and status while the row is still in one of the expected statuses.
func (r *ExecutionRepository) UpdateSchedule(ctx context.Context, exec *models.AuditExecution, expected []models.ExecutionStatus) error {
	exec.UpdatedAt = time.Now().UTC()
	const query = `UPDATE audit_executions
	SET scheduled_date = $3, inspector_id = $4, notes = $5, status = $6, updated_at = $7
	WHERE id = $1 AND tenant_id = $2 AND status = ANY($8)`
	res, err := r.db.ExecContext(ctx, query, exec.ID, exec.TenantID, exec.ScheduledDate, exec.InspectorID, exec.Notes, exec.Status, exec.UpdatedAt, statusArray(expected))
	if err != nil {
		return fmt.Errorf("reschedule audit execution: %w", mapPQError(err))
	}
	return expectAffected(res, "reschedule audit execution")
}

// Delete removes an execution still in one of the expected statuses.
func (r *ExecutionRepository) Delete(ctx context.Context, tenantID, id string, expected []models.ExecutionStatus) error {
	const query = `DELETE FROM audit_executions WHERE id = $1 AND tenant_id = $2 AND status = ANY($3)`
	res, err := r.db.ExecContext(ctx, query, id, tenantID, statusArray(expected))
	if err != nil {
		return fmt.Errorf("delete audit execution: %w", mapPQError(err))
	}
	return expectAffected(res, "delete audit execution")
}

// ExecutionTransition describes a guarded status change.
type ExecutionTransition struct {
	ID         string
	TenantID   string
	From       models.ExecutionStatus
	To         models.ExecutionStatus
	At         time.Time
	ActorID    string
	Notes      *string
	TotalScore *float64
	MaxScore   *float64
}

// Transition applies the change only when the stored status still equals From.
func (r *ExecutionRepository) Transition(ctx context.Context, t ExecutionTransition) error {
	args := []interface{}{t.ID, t.TenantID, t.From, t.To, t.At}
	sets := []string{"status = $4", "updated_at = $5"}

	switch t.To {
	case models.ExecutionStatusInProgress:
		sets = append(sets, "started_at = COALESCE(started_at, $5)")
	case models.ExecutionStatusCompleted:
		args = append(args, t.TotalScore, t.MaxScore)
		sets = append(sets, "completed_at = $5", fmt.Sprintf("total_score = $%d", len(args)-1), fmt.Sprintf("max_possible_score = $%d", len(args)))
	case models.ExecutionStatusReviewed:
		args = append(args, t.ActorID, t.Notes)
		sets = append(sets, "reviewed_at = $5", fmt.Sprintf("reviewed_by = $%d", len(args)-1), fmt.Sprintf("review_notes = $%d", len(args)))
	}

	query := fmt.Sprintf("UPDATE audit_executions SET %s WHERE id = $1 AND tenant_id = $2 AND status = $3", strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition audit execution: %w", err)
	}
	return expectAffected(res, "transition audit execution")
}

func statusArray(statuses []models.ExecutionStatus) interface{} {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	return pq.Array(values)
}
