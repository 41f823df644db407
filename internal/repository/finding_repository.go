package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

const nonConformityColumns = `n.id, n.tenant_id, n.execution_id, n.response_id, n.item_id, n.severity, n.description, n.evidence,
       n.status, n.identified_date, n.created_at, n.updated_at`

const nonConformitySelect = `SELECT ` + nonConformityColumns + `, e.restaurant_id, r.name AS restaurant_name
FROM non_conformities n
JOIN audit_executions e ON e.id = n.execution_id
JOIN restaurants r ON r.id = e.restaurant_id`

// FindingRepository persists responses and the non-conformities derived from them.
type FindingRepository struct {
	db *sqlx.DB
}

// NewFindingRepository constructs the repository.
func NewFindingRepository(db *sqlx.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// RecordResponseParams carries one answer and the finding it produces, if any.
type RecordResponseParams struct {
	TenantID string
	Response *models.AuditResponse
	// Finding is nil when the answer conforms.
	Finding *models.NonConformity
	At      time.Time
}

// RecordResponseResult reports what the transaction changed.
type RecordResponseResult struct {
	Response       *models.AuditResponse
	NonConformity  *models.NonConformity
	CreatedFinding bool
	RemovedFinding bool
	Started        bool
	PreviousStatus models.ExecutionStatus
}

// RecordResponse upserts the response keyed by (execution, item), starts a not-yet-started
// execution and reconciles the derived non-conformity, all in one transaction.
func (r *FindingRepository) RecordResponse(ctx context.Context, params RecordResponseParams) (result *RecordResponseResult, err error) {
	resp := params.Response
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin response transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.ExecutionStatus
	const lockQuery = `SELECT status FROM audit_executions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &status, lockQuery, resp.ExecutionID, params.TenantID); err != nil {
		return nil, err
	}
	result = &RecordResponseResult{PreviousStatus: status}

	switch status {
	case models.ExecutionStatusCompleted, models.ExecutionStatusReviewed:
		err = ErrExecutionClosed
		return nil, err
	case models.ExecutionStatusTodo, models.ExecutionStatusScheduled:
		const startQuery = `UPDATE audit_executions SET status = $2, started_at = COALESCE(started_at, $3), updated_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, startQuery, resp.ExecutionID, models.ExecutionStatusInProgress, at); err != nil {
			return nil, fmt.Errorf("start audit execution: %w", err)
		}
		result.Started = true
	}

	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	resp.UpdatedAt = at
	const upsertQuery = `INSERT INTO audit_responses (id, execution_id, item_id, value, score, notes, recorded_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	ON CONFLICT (execution_id, item_id) DO UPDATE
	SET value = EXCLUDED.value, score = EXCLUDED.score, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
	RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, upsertQuery, resp.ID, resp.ExecutionID, resp.ItemID, resp.Value, resp.Score, resp.Notes, resp.RecordedBy, at)
	if err = row.Scan(&resp.ID, &resp.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert audit response: %w", mapPQError(err))
	}
	result.Response = resp

	if params.Finding == nil {
		const removeQuery = `DELETE FROM non_conformities WHERE response_id = $1 AND status = $2`
		res, execErr := tx.ExecContext(ctx, removeQuery, resp.ID, models.NonConformityOpen)
		if execErr != nil {
			err = fmt.Errorf("remove resolved non-conformity: %w", execErr)
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			result.RemovedFinding = true
		}
	} else {
		var existing models.NonConformity
		existingQuery := `SELECT ` + nonConformityColumns + ` FROM non_conformities n WHERE n.response_id = $1`
		getErr := tx.GetContext(ctx, &existing, existingQuery, resp.ID)
		switch {
		case getErr == nil:
			result.NonConformity = &existing
		case errors.Is(getErr, sql.ErrNoRows):
			nc := params.Finding
			if nc.ID == "" {
				nc.ID = uuid.NewString()
			}
			nc.TenantID = params.TenantID
			nc.ExecutionID = resp.ExecutionID
			nc.ResponseID = &resp.ID
			nc.ItemID = resp.ItemID
			nc.Status = models.NonConformityOpen
			nc.IdentifiedDate = at
			nc.CreatedAt = at
			nc.UpdatedAt = at
			const insertQuery = `INSERT INTO non_conformities (id, tenant_id, execution_id, response_id, item_id, severity, description, evidence, status, identified_date, created_at, updated_at)
	VALUES (:id, :tenant_id, :execution_id, :response_id, :item_id, :severity, :description, :evidence, :status, :identified_date, :created_at, :updated_at)`
			if _, err = tx.NamedExecContext(ctx, insertQuery, nc); err != nil {
				return nil, fmt.Errorf("create non-conformity: %w", mapPQError(err))
			}
			result.NonConformity = nc
			result.CreatedFinding = true
		default:
			err = fmt.Errorf("load non-conformity: %w", getErr)
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit response transaction: %w", err)
	}
	return result, nil
}

// ListResponses returns every response of the execution.
func (r *FindingRepository) ListResponses(ctx context.Context, executionID string) ([]models.AuditResponse, error) {
	const query = `SELECT id, execution_id, item_id, value, score, notes, recorded_by, created_at, updated_at
	FROM audit_responses WHERE execution_id = $1 ORDER BY created_at ASC`
	var responses []models.AuditResponse
	if err := r.db.SelectContext(ctx, &responses, query, executionID); err != nil {
		return nil, fmt.Errorf("list audit responses: %w", err)
	}
	return responses, nil
}

// ListByExecution returns the non-conformities raised during one execution.
func (r *FindingRepository) ListByExecution(ctx context.Context, executionID string) ([]models.NonConformity, error) {
	query := nonConformitySelect + ` WHERE n.execution_id = $1 ORDER BY n.identified_date ASC`
	var items []models.NonConformity
	if err := r.db.SelectContext(ctx, &items, query, executionID); err != nil {
		return nil, fmt.Errorf("list execution non-conformities: %w", err)
	}
	return items, nil
}

// List returns tenant non-conformities matching the filter with the total count.
func (r *FindingRepository) List(ctx context.Context, filter models.NonConformityFilter) ([]models.NonConformity, int, error) {
	args := []interface{}{filter.TenantID}
	conditions := []string{"n.tenant_id = $1"}

	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			values[i] = string(status)
		}
		args = append(args, pq.Array(values))
		conditions = append(conditions, fmt.Sprintf("n.status = ANY($%d)", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("n.severity = $%d", len(args)))
	}
	if filter.ExecutionID != "" {
		args = append(args, filter.ExecutionID)
		conditions = append(conditions, fmt.Sprintf("n.execution_id = $%d", len(args)))
	}
	if filter.RestaurantID != "" {
		args = append(args, filter.RestaurantID)
		conditions = append(conditions, fmt.Sprintf("e.restaurant_id = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("%s%s ORDER BY n.identified_date DESC LIMIT %d OFFSET %d", nonConformitySelect, where, page.PageSize, page.Offset())

	var items []models.NonConformity
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list non-conformities: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM non_conformities n JOIN audit_executions e ON e.id = n.execution_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count non-conformities: %w", err)
	}
	return items, total, nil
}

// GetByID returns a tenant non-conformity or sql.ErrNoRows.
func (r *FindingRepository) GetByID(ctx context.Context, tenantID, id string) (*models.NonConformity, error) {
	query := nonConformitySelect + ` WHERE n.id = $1 AND n.tenant_id = $2`
	var nc models.NonConformity
	if err := r.db.GetContext(ctx, &nc, query, id, tenantID); err != nil {
		return nil, err
	}
	return &nc, nil
}

// UpdateStatus moves a non-conformity from one status to another under an optimistic guard.
func (r *FindingRepository) UpdateStatus(ctx context.Context, tenantID, id string, from, to models.NonConformityStatus, at time.Time) error {
	const query = `UPDATE non_conformities SET status = $4, updated_at = $5 WHERE id = $1 AND tenant_id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, tenantID, from, to, at)
	if err != nil {
		return fmt.Errorf("update non-conformity status: %w", err)
	}
	return expectAffected(res, "update non-conformity status")
}
