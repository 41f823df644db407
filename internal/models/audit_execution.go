package models

import "time"

// ExecutionStatus enumerates the audit execution lifecycle.
type ExecutionStatus string

const (
	ExecutionStatusTodo       ExecutionStatus = "todo"
	ExecutionStatusScheduled  ExecutionStatus = "scheduled"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusReviewed   ExecutionStatus = "reviewed"
)

// IsActive reports whether the execution still participates in scheduling views.
func (s ExecutionStatus) IsActive() bool {
	switch s {
	case ExecutionStatusTodo, ExecutionStatusScheduled, ExecutionStatusInProgress:
		return true
	default:
		return false
	}
}

// IsCloseable reports whether the execution may be archived.
func (s ExecutionStatus) IsCloseable() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusReviewed
}

// Valid reports whether the status is known.
func (s ExecutionStatus) Valid() bool {
	return s.IsActive() || s.IsCloseable()
}

// AuditExecution is one scheduled or performed audit of a restaurant.
type AuditExecution struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	TemplateID     string          `db:"template_id" json:"template_id"`
	RestaurantID   string          `db:"restaurant_id" json:"restaurant_id"`
	InspectorID    string          `db:"inspector_id" json:"inspector_id"`
	ScheduledDate  time.Time       `db:"scheduled_date" json:"scheduled_date"`
	Status         ExecutionStatus `db:"status" json:"status"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	StartedAt      *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	ReviewedAt     *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy     *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes    *string         `db:"review_notes" json:"review_notes,omitempty"`
	TotalScore     *float64        `db:"total_score" json:"total_score,omitempty"`
	MaxScore       *float64        `db:"max_possible_score" json:"max_possible_score,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	TemplateName   string          `db:"template_name" json:"template_name"`
	Category       string          `db:"template_category" json:"template_category"`
	RestaurantName string          `db:"restaurant_name" json:"restaurant_name"`
	InspectorName  string          `db:"inspector_name" json:"inspector_name"`
}

// ExecutionView decorates an execution with values derived at read time.
type ExecutionView struct {
	AuditExecution
	EffectiveStatus ExecutionStatus `json:"effective_status"`
	IsOverdue       bool            `json:"is_overdue"`
	Actions         []string        `json:"actions"`
}

// ExecutionDetail is the full working view of one execution.
type ExecutionDetail struct {
	ExecutionView
	Items            []AuditItem     `json:"items"`
	Responses        []AuditResponse `json:"responses"`
	NonConformities  []NonConformity `json:"non_conformities"`
	AnsweredRequired int             `json:"answered_required"`
	TotalRequired    int             `json:"total_required"`
}

// ExecutionGroups partitions active executions by due window.
type ExecutionGroups struct {
	Overdue  []ExecutionView `json:"overdue"`
	Today    []ExecutionView `json:"today"`
	Upcoming []ExecutionView `json:"upcoming"`
	Future   []ExecutionView `json:"future"`
}

// ExecutionFilter narrows execution listings.
type ExecutionFilter struct {
	TenantID     string
	Status       []ExecutionStatus
	RestaurantID string
	InspectorID  string
	TemplateID   string
	DateFrom     *time.Time
	DateTo       *time.Time
	ActiveOnly   bool
	PageRequest
}

// AuditResponse is an inspector's answer to one item within one execution.
type AuditResponse struct {
	ID          string    `db:"id" json:"id"`
	ExecutionID string    `db:"execution_id" json:"execution_id"`
	ItemID      string    `db:"item_id" json:"item_id"`
	Value       string    `db:"value" json:"value"`
	Score       *float64  `db:"score" json:"score,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	RecordedBy  string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ResponseOutcome reports what recording one answer changed.
type ResponseOutcome struct {
	Response        AuditResponse   `json:"response"`
	NonConformity   *NonConformity  `json:"non_conformity,omitempty"`
	FindingRemoved  bool            `json:"finding_removed"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
}
