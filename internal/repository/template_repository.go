package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

const templateColumns = `id, name, category, description, is_active, estimated_duration, created_by, created_at, updated_at`

const itemColumns = `id, template_id, question, type, required, is_critical, item_order, max_score, help_text`

// TemplateRepository persists audit templates and their ordered items.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// List returns templates matching the filter with the total count.
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateFilter) ([]models.AuditTemplate, int, error) {
	baseQuery := `FROM audit_templates WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY name ASC LIMIT %d OFFSET %d", templateColumns, baseQuery, page.PageSize, page.Offset())

	var templates []models.AuditTemplate
	if err := r.db.SelectContext(ctx, &templates, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit templates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit templates: %w", err)
	}
	return templates, total, nil
}

// GetByID returns the template with its ordered items.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.AuditTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_templates WHERE id = $1", templateColumns)
	var tpl models.AuditTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Items = items
	return &tpl, nil
}

// ListItems returns the template items ordered by position.
func (r *TemplateRepository) ListItems(ctx context.Context, templateID string) ([]models.AuditItem, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_items WHERE template_id = $1 ORDER BY item_order ASC", itemColumns)
	var items []models.AuditItem
	if err := r.db.SelectContext(ctx, &items, query, templateID); err != nil {
		return nil, fmt.Errorf("list audit items: %w", err)
	}
	return items, nil
}

// Create inserts the template and its items in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, tpl *models.AuditTemplate) (err error) {
	now := time.Now().UTC()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertTemplate = `INSERT INTO audit_templates (id, name, category, description, is_active, estimated_duration, created_by, created_at, updated_at)
	VALUES (:id, :name, :category, :description, :is_active, :estimated_duration, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertTemplate, tpl); err != nil {
		return fmt.Errorf("insert audit template: %w", mapPQError(err))
	}
	if err = insertItems(ctx, tx, tpl.ID, tpl.Items); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit template transaction: %w", err)
	}
	return nil
}

// Update rewrites template attributes and, when replaceItems is set, swaps the whole item set.
func (r *TemplateRepository) Update(ctx context.Context, tpl *models.AuditTemplate, replaceItems bool) (err error) {
	tpl.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateTemplate = `UPDATE audit_templates SET name = :name, category = :category, description = :description,
	is_active = :is_active, estimated_duration = :estimated_duration, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, updateTemplate, tpl)
	if err != nil {
		return fmt.Errorf("update audit template: %w", mapPQError(err))
	}
	if err = expectAffected(res, "update audit template"); err != nil {
		return err
	}

	if replaceItems {
		if _, err = tx.ExecContext(ctx, `DELETE FROM audit_items WHERE template_id = $1`, tpl.ID); err != nil {
			return fmt.Errorf("delete audit items: %w", mapPQError(err))
		}
		if err = insertItems(ctx, tx, tpl.ID, tpl.Items); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit template transaction: %w", err)
	}
	return nil
}

// Delete removes the template; items cascade.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete audit template: %w", mapPQError(err))
	}
	return expectAffected(res, "delete audit template")
}

// TemplateReferences counts rows that pin a template.
type TemplateReferences struct {
	Executions int `db:"executions"`
	Archives   int `db:"archives"`
}

// CountReferences reports how many executions and archives point at the template.
func (r *TemplateRepository) CountReferences(ctx context.Context, id string) (*TemplateReferences, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM audit_executions WHERE template_id = $1) AS executions,
	(SELECT COUNT(*) FROM audit_archives WHERE template_id = $1) AS archives`
	var refs TemplateReferences
	if err := r.db.GetContext(ctx, &refs, query, id); err != nil {
		return nil, fmt.Errorf("count template references: %w", err)
	}
	return &refs, nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, templateID string, items []models.AuditItem) error {
	const insertItem = `INSERT INTO audit_items (id, template_id, question, type, required, is_critical, item_order, max_score, help_text)
	VALUES (:id, :template_id, :question, :type, :required, :is_critical, :item_order, :max_score, :help_text)`
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.TemplateID = templateID
		if _, err := tx.NamedExecContext(ctx, insertItem, item); err != nil {
			return fmt.Errorf("insert audit item %d: %w", item.Order, mapPQError(err))
		}
	}
	return nil
}
