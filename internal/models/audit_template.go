package models

import "time"

// TemplateCategory classifies audit templates.
type TemplateCategory string

const (
	CategoryHygiene        TemplateCategory = "hygiene"
	CategorySecurity       TemplateCategory = "security"
	CategoryService        TemplateCategory = "service"
	CategoryManagement     TemplateCategory = "management"
	CategoryEnvironment    TemplateCategory = "environment"
	CategoryInfrastructure TemplateCategory = "infrastructure"
	CategoryFinance        TemplateCategory = "finance"
)

// TemplateCategories lists every accepted category in display order.
var TemplateCategories = []TemplateCategory{
	CategoryHygiene,
	CategorySecurity,
	CategoryService,
	CategoryManagement,
	CategoryEnvironment,
	CategoryInfrastructure,
	CategoryFinance,
}

// Valid reports whether the category is one of the enumerated values.
func (c TemplateCategory) Valid() bool {
	for _, known := range TemplateCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ItemType is the answer shape expected for an audit item.
type ItemType string

const (
	ItemTypeYesNo ItemType = "yes_no"
	ItemTypeScore ItemType = "score"
	ItemTypeText  ItemType = "text"
	ItemTypePhoto ItemType = "photo"
)

// Valid reports whether the item type is supported.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeYesNo, ItemTypeScore, ItemTypeText, ItemTypePhoto:
		return true
	default:
		return false
	}
}

// AuditTemplate is a reusable question set. Templates are shared across tenants.
type AuditTemplate struct {
	ID                string           `db:"id" json:"id"`
	Name              string           `db:"name" json:"name"`
	Category          TemplateCategory `db:"category" json:"category"`
	Description       *string          `db:"description" json:"description,omitempty"`
	IsActive          bool             `db:"is_active" json:"is_active"`
	EstimatedDuration *int             `db:"estimated_duration" json:"estimated_duration,omitempty"`
	CreatedBy         string           `db:"created_by" json:"created_by"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
	Items             []AuditItem      `db:"-" json:"items"`
}

// AuditItem is one question of a template.
type AuditItem struct {
	ID         string   `db:"id" json:"id"`
	TemplateID string   `db:"template_id" json:"template_id"`
	Question   string   `db:"question" json:"question"`
	Type       ItemType `db:"type" json:"type"`
	Required   bool     `db:"required" json:"required"`
	IsCritical bool     `db:"is_critical" json:"is_critical"`
	Order      int      `db:"item_order" json:"order"`
	MaxScore   *int     `db:"max_score" json:"max_score,omitempty"`
	HelpText   *string  `db:"help_text" json:"help_text,omitempty"`
}

// MaxPoints is the item's contribution to an execution's maximum score.
func (i AuditItem) MaxPoints() float64 {
	switch i.Type {
	case ItemTypeYesNo:
		return 1
	case ItemTypeScore:
		if i.MaxScore != nil {
			return float64(*i.MaxScore)
		}
	}
	return 0
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Category TemplateCategory
	Active   *bool
	Search   string
	PageRequest
}
