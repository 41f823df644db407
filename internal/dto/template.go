package dto

// AuditItemRequest describes one checklist question inside a template payload.
type AuditItemRequest struct {
	Question   string  `json:"question" validate:"required,max=500"`
	Type       string  `json:"type" validate:"required,item_type"`
	Required   *bool   `json:"required"`
	IsCritical bool    `json:"is_critical"`
	MaxScore   *int    `json:"max_score" validate:"omitempty,gt=0,lte=1000"`
	HelpText   *string `json:"help_text" validate:"omitempty,max=1000"`
}

// CreateTemplateRequest payload for POST /audit-templates.
type CreateTemplateRequest struct {
	Name              string             `json:"name" validate:"required,min=2,max=100"`
	Category          string             `json:"category" validate:"required,template_category"`
	Description       *string            `json:"description" validate:"omitempty,max=2000"`
	IsActive          *bool              `json:"is_active"`
	EstimatedDuration *int               `json:"estimated_duration" validate:"omitempty,gt=0"`
	Items             []AuditItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateTemplateRequest payload for PATCH /audit-templates/:id. A non-nil Items replaces the whole set.
type UpdateTemplateRequest struct {
	Name              *string            `json:"name" validate:"omitempty,min=2,max=100"`
	Category          *string            `json:"category" validate:"omitempty,template_category"`
	Description       *string            `json:"description" validate:"omitempty,max=2000"`
	IsActive          *bool              `json:"is_active"`
	EstimatedDuration *int               `json:"estimated_duration" validate:"omitempty,gt=0"`
	Items             []AuditItemRequest `json:"items" validate:"omitempty,dive"`
}
