package models

import "time"

// Severity grades a non-conformity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is known.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// NonConformityStatus tracks a finding's remediation progress.
type NonConformityStatus string

const (
	NonConformityOpen       NonConformityStatus = "open"
	NonConformityInProgress NonConformityStatus = "in_progress"
	NonConformityResolved   NonConformityStatus = "resolved"
	NonConformityVerified   NonConformityStatus = "verified"
)

// Rank orders statuses so transitions can be checked as forward-only.
func (s NonConformityStatus) Rank() int {
	switch s {
	case NonConformityOpen:
		return 1
	case NonConformityInProgress:
		return 2
	case NonConformityResolved:
		return 3
	case NonConformityVerified:
		return 4
	default:
		return 0
	}
}

// NonConformity is a failure derived from a response.
type NonConformity struct {
	ID             string              `db:"id" json:"id"`
	TenantID       string              `db:"tenant_id" json:"tenant_id"`
	ExecutionID    string              `db:"execution_id" json:"execution_id"`
	ResponseID     *string             `db:"response_id" json:"response_id,omitempty"`
	ItemID         string              `db:"item_id" json:"item_id"`
	Severity       Severity            `db:"severity" json:"severity"`
	Description    string              `db:"description" json:"description"`
	Evidence       *string             `db:"evidence" json:"evidence,omitempty"`
	Status         NonConformityStatus `db:"status" json:"status"`
	IdentifiedDate time.Time           `db:"identified_date" json:"identified_date"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
	RestaurantID   string              `db:"restaurant_id" json:"restaurant_id"`
	RestaurantName string              `db:"restaurant_name" json:"restaurant_name"`
}

// NonConformityFilter narrows listings.
type NonConformityFilter struct {
	TenantID     string
	Status       []NonConformityStatus
	Severity     Severity
	ExecutionID  string
	RestaurantID string
	PageRequest
}
