package models

import "time"

// CorrectiveActionStatus is the remediation task lifecycle.
type CorrectiveActionStatus string

const (
	ActionStatusAssigned   CorrectiveActionStatus = "assigned"
	ActionStatusInProgress CorrectiveActionStatus = "in_progress"
	ActionStatusCompleted  CorrectiveActionStatus = "completed"
	ActionStatusVerified   CorrectiveActionStatus = "verified"
	ActionStatusArchived   CorrectiveActionStatus = "archived"
)

// Valid reports whether the status is known.
func (s CorrectiveActionStatus) Valid() bool {
	switch s {
	case ActionStatusAssigned, ActionStatusInProgress, ActionStatusCompleted, ActionStatusVerified, ActionStatusArchived:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the action no longer counts towards overdue work.
func (s CorrectiveActionStatus) IsClosed() bool {
	return s == ActionStatusCompleted || s == ActionStatusVerified || s == ActionStatusArchived
}

// Priority selects a default due-date offset.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
	PriorityNormal   Priority = "normal"
	PriorityPlanned  Priority = "planned"
)

// DueOffsetDays returns the default number of days until due for the priority.
func (p Priority) DueOffsetDays() (int, bool) {
	switch p {
	case PriorityCritical:
		return 1, true
	case PriorityUrgent:
		return 7, true
	case PriorityNormal:
		return 30, true
	case PriorityPlanned:
		return 90, true
	default:
		return 0, false
	}
}

// CorrectiveAction is a remediation task, optionally linked to a non-conformity.
type CorrectiveAction struct {
	ID                string                 `db:"id" json:"id"`
	TenantID          string                 `db:"tenant_id" json:"tenant_id"`
	NonConformityID   *string                `db:"non_conformity_id" json:"non_conformity_id,omitempty"`
	ActionDescription string                 `db:"action_description" json:"action_description"`
	AssignedTo        string                 `db:"assigned_to" json:"assigned_to"`
	DueDate           time.Time              `db:"due_date" json:"due_date"`
	Priority          *Priority              `db:"priority" json:"priority,omitempty"`
	Status            CorrectiveActionStatus `db:"status" json:"status"`
	Notes             *string                `db:"notes" json:"notes,omitempty"`
	CompletionDate    *time.Time             `db:"completion_date" json:"completion_date,omitempty"`
	CompletionNotes   *string                `db:"completion_notes" json:"completion_notes,omitempty"`
	VerificationNotes *string                `db:"verification_notes" json:"verification_notes,omitempty"`
	VerifiedBy        *string                `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt        *time.Time             `db:"verified_at" json:"verified_at,omitempty"`
	ArchivedAt        *time.Time             `db:"archived_at" json:"archived_at,omitempty"`
	CreatedBy         string                 `db:"created_by" json:"created_by"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at" json:"updated_at"`
	AssigneeName      string                 `db:"assignee_name" json:"assignee_name"`
}

// CorrectiveActionView adds derived overdue state.
type CorrectiveActionView struct {
	CorrectiveAction
	IsOverdue bool `json:"is_overdue"`
	// NonConformityStatus is set when a transition moved the linked finding.
	NonConformityStatus NonConformityStatus `json:"non_conformity_status,omitempty"`
}

// CorrectiveActionFilter narrows listings.
type CorrectiveActionFilter struct {
	TenantID        string
	Status          []CorrectiveActionStatus
	AssignedTo      string
	NonConformityID string
	OverdueAt       *time.Time
	IncludeArchived bool
	PageRequest
}
