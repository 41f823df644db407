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

const correctiveActionSelect = `SELECT a.id, a.tenant_id, a.non_conformity_id, a.action_description, a.assigned_to, a.due_date, a.priority,
       a.status, a.notes, a.completion_date, a.completion_notes, a.verification_notes, a.verified_by, a.verified_at,
       a.archived_at, a.created_by, a.created_at, a.updated_at, u.full_name AS assignee_name
FROM corrective_actions a
JOIN users u ON u.id = a.assigned_to`

// CorrectiveActionRepository persists corrective actions.
type CorrectiveActionRepository struct {
	db *sqlx.DB
}

// NewCorrectiveActionRepository constructs the repository.
func NewCorrectiveActionRepository(db *sqlx.DB) *CorrectiveActionRepository {
	return &CorrectiveActionRepository{db: db}
}

// Create inserts a new corrective action.
func (r *CorrectiveActionRepository) Create(ctx context.Context, action *models.CorrectiveAction) error {
	now := time.Now().UTC()
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Status == "" {
		action.Status = models.ActionStatusAssigned
	}
	action.CreatedAt = now
	action.UpdatedAt = now
	const query = `INSERT INTO corrective_actions (id, tenant_id, non_conformity_id, action_description, assigned_to, due_date, priority, status, notes, created_by, created_at, updated_at)
	VALUES (:id, :tenant_id, :non_conformity_id, :action_description, :assigned_to, :due_date, :priority, :status, :notes, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("create corrective action: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns a tenant corrective action or sql.ErrNoRows.
func (r *CorrectiveActionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.CorrectiveAction, error) {
	query := correctiveActionSelect + ` WHERE a.id = $1 AND a.tenant_id = $2`
	var action models.CorrectiveAction
	if err := r.db.GetContext(ctx, &action, query, id, tenantID); err != nil {
		return nil, err
	}
	return &action, nil
}

// ListByNonConformities returns the actions attached to any of the given non-conformities.
func (r *CorrectiveActionRepository) ListByNonConformities(ctx context.Context, tenantID string, ids []string) ([]models.CorrectiveAction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := correctiveActionSelect + ` WHERE a.tenant_id = $1 AND a.non_conformity_id = ANY($2) ORDER BY a.created_at ASC`
	var actions []models.CorrectiveAction
	if err := r.db.SelectContext(ctx, &actions, query, tenantID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list corrective actions by non-conformity: %w", err)
	}
	return actions, nil
}

// List returns tenant actions matching the filter with the total count.
func (r *CorrectiveActionRepository) List(ctx context.Context, filter models.CorrectiveActionFilter) ([]models.CorrectiveAction, int, error) {
	args := []interface{}{filter.TenantID}
	conditions := []string{"a.tenant_id = $1"}

	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			values[i] = string(status)
		}
		args = append(args, pq.Array(values))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	} else if !filter.IncludeArchived {
		args = append(args, models.ActionStatusArchived)
		conditions = append(conditions, fmt.Sprintf("a.status <> $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		conditions = append(conditions, fmt.Sprintf("a.assigned_to = $%d", len(args)))
	}
	if filter.NonConformityID != "" {
		args = append(args, filter.NonConformityID)
		conditions = append(conditions, fmt.Sprintf("a.non_conformity_id = $%d", len(args)))
	}
	if filter.OverdueAt != nil {
		args = append(args, *filter.OverdueAt)
		conditions = append(conditions, fmt.Sprintf("a.due_date < $%d AND a.status IN ('assigned', 'in_progress')", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("%s%s ORDER BY a.due_date ASC, a.created_at ASC LIMIT %d OFFSET %d", correctiveActionSelect, where, page.PageSize, page.Offset())

	var actions []models.CorrectiveAction
	if err := r.db.SelectContext(ctx, &actions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list corrective actions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM corrective_actions a"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count corrective actions: %w", err)
	}
	return actions, total, nil
}

// Update rewrites editable attributes while the stored status still equals expected.
func (r *CorrectiveActionRepository) Update(ctx context.Context, action *models.CorrectiveAction, expected models.CorrectiveActionStatus) error {
	action.UpdatedAt = time.Now().UTC()
	const query = `UPDATE corrective_actions
	SET action_description = $4, assigned_to = $5, due_date = $6, notes = $7, updated_at = $8
	WHERE id = $1 AND tenant_id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, action.ID, action.TenantID, expected, action.ActionDescription, action.AssignedTo, action.DueDate, action.Notes, action.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update corrective action: %w", mapPQError(err))
	}
	return expectAffected(res, "update corrective action")
}

// ActionEdit carries attribute edits applied together with a status change.
type ActionEdit struct {
	ActionDescription string
	AssignedTo        string
	DueDate           time.Time
	Notes             *string
}

// ActionStatusChange describes a guarded corrective action transition.
type ActionStatusChange struct {
	ID                string
	TenantID          string
	From              models.CorrectiveActionStatus
	To                models.CorrectiveActionStatus
	At                time.Time
	ActorID           string
	CompletionDate    *time.Time
	CompletionNotes   *string
	VerificationNotes *string
	// Edit is nil for a pure transition.
	Edit *ActionEdit
}

// ChangeStatus applies the transition, with any attribute edit, and advances the linked
// non-conformity in the same transaction. It returns the non-conformity status it moved to, or "" when untouched.
func (r *CorrectiveActionRepository) ChangeStatus(ctx context.Context, change ActionStatusChange) (ncStatus models.NonConformityStatus, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin corrective action transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	args := []interface{}{change.ID, change.TenantID, change.From, change.To, change.At}
	sets := []string{"status = $4", "updated_at = $5"}
	switch change.To {
	case models.ActionStatusCompleted:
		args = append(args, change.CompletionDate, change.CompletionNotes)
		sets = append(sets, fmt.Sprintf("completion_date = $%d", len(args)-1), fmt.Sprintf("completion_notes = COALESCE($%d, completion_notes)", len(args)))
	case models.ActionStatusVerified:
		args = append(args, change.ActorID, change.VerificationNotes)
		sets = append(sets, "verified_at = $5", fmt.Sprintf("verified_by = $%d", len(args)-1), fmt.Sprintf("verification_notes = COALESCE($%d, verification_notes)", len(args)))
	case models.ActionStatusArchived:
		sets = append(sets, "archived_at = $5")
	}
	if edit := change.Edit; edit != nil {
		args = append(args, edit.ActionDescription, edit.AssignedTo, edit.DueDate, edit.Notes)
		n := len(args)
		sets = append(sets,
			fmt.Sprintf("action_description = $%d", n-3),
			fmt.Sprintf("assigned_to = $%d", n-2),
			fmt.Sprintf("due_date = $%d", n-1),
			fmt.Sprintf("notes = $%d", n),
		)
	}

	query := fmt.Sprintf("UPDATE corrective_actions SET %s WHERE id = $1 AND tenant_id = $2 AND status = $3 RETURNING non_conformity_id", strings.Join(sets, ", "))
	var ncID *string
	if err = tx.QueryRowxContext(ctx, query, args...).Scan(&ncID); err != nil {
		err = mapPQError(err)
		return "", err
	}

	if ncID != nil {
		ncStatus, err = propagateToNonConformity(ctx, tx, *ncID, change.To, change.At)
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit corrective action transaction: %w", err)
	}
	return ncStatus, nil
}

// propagateToNonConformity moves the linked finding forward: an action in progress marks it
// in progress; once no action on it is still open it becomes resolved, or verified when every
// remaining action is verified.
func propagateToNonConformity(ctx context.Context, tx *sqlx.Tx, ncID string, to models.CorrectiveActionStatus, at time.Time) (models.NonConformityStatus, error) {
	var target models.NonConformityStatus
	switch to {
	case models.ActionStatusInProgress:
		target = models.NonConformityInProgress
	case models.ActionStatusCompleted, models.ActionStatusVerified:
		var counts struct {
			Open       int `db:"open"`
			Unverified int `db:"unverified"`
		}
		const countQuery = `SELECT
	COUNT(*) FILTER (WHERE status IN ('assigned', 'in_progress')) AS open,
	COUNT(*) FILTER (WHERE status = 'completed') AS unverified
FROM corrective_actions WHERE non_conformity_id = $1`
		if err := tx.GetContext(ctx, &counts, countQuery, ncID); err != nil {
			return "", fmt.Errorf("count open corrective actions: %w", err)
		}
		if counts.Open > 0 {
			return "", nil
		}
		target = models.NonConformityResolved
		if counts.Unverified == 0 {
			target = models.NonConformityVerified
		}
	default:
		return "", nil
	}

	lower := make([]string, 0, 3)
	for _, status := range []models.NonConformityStatus{models.NonConformityOpen, models.NonConformityInProgress, models.NonConformityResolved} {
		if status.Rank() < target.Rank() {
			lower = append(lower, string(status))
		}
	}
	const updateQuery = `UPDATE non_conformities SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	res, err := tx.ExecContext(ctx, updateQuery, ncID, target, at, pq.Array(lower))
	if err != nil {
		return "", fmt.Errorf("propagate non-conformity status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return "", nil
	}
	return target, nil
}
