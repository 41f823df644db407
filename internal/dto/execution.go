package dto

import "encoding/json"

// ScheduleAuditRequest payload for POST /audits. ScheduledDate accepts YYYY-MM-DD or RFC3339.
type ScheduleAuditRequest struct {
	TemplateID    string  `json:"template_id" validate:"required"`
	RestaurantID  string  `json:"restaurant_id" validate:"required"`
	InspectorID   string  `json:"inspector_id" validate:"required"`
	ScheduledDate string  `json:"scheduled_date" validate:"required"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

// RescheduleAuditRequest payload for PATCH /audits/:id.
type RescheduleAuditRequest struct {
	ScheduledDate *string `json:"scheduled_date"`
	InspectorID   *string `json:"inspector_id" validate:"omitempty,min=1"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

// ExecutionStatusRequest payload for PATCH /audits/:id/status.
type ExecutionStatusRequest struct {
	Status string  `json:"status" validate:"required,execution_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

// RecordResponseRequest payload for POST /audits/:id/responses. Value may be a JSON boolean, number or string.
type RecordResponseRequest struct {
	ItemID string          `json:"item_id" validate:"required"`
	Value  json.RawMessage `json:"value" validate:"required"`
	Notes  *string         `json:"notes" validate:"omitempty,max=2000"`
}

// ExecutionQuery mirrors GET /audits filters.
type ExecutionQuery struct {
	Status       []string
	RestaurantID string
	InspectorID  string
	TemplateID   string
	DateFrom     string
	DateTo       string
	Page         int
	PageSize     int
}
