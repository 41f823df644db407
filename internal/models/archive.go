package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ArchivedResponse is a frozen copy of a response with its question text.
type ArchivedResponse struct {
	ItemID    string   `json:"item_id"`
	Order     int      `json:"order"`
	Question  string   `json:"question"`
	Type      ItemType `json:"type"`
	Value     string   `json:"value"`
	Score     *float64 `json:"score,omitempty"`
	MaxScore  *int     `json:"max_score,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Critical  bool     `json:"is_critical"`
	Recorded  string   `json:"recorded_at"`
	Answerer  string   `json:"recorded_by"`
	Responded bool     `json:"responded"`
}

// ArchivedNonConformity is a frozen copy of a non-conformity.
type ArchivedNonConformity struct {
	ID             string              `json:"id"`
	ItemID         string              `json:"item_id"`
	Severity       Severity            `json:"severity"`
	Description    string              `json:"description"`
	Evidence       *string             `json:"evidence,omitempty"`
	Status         NonConformityStatus `json:"status"`
	IdentifiedDate time.Time           `json:"identified_date"`
}

// ArchivedCorrectiveAction is a frozen copy of a corrective action.
type ArchivedCorrectiveAction struct {
	ID                string                 `json:"id"`
	NonConformityID   string                 `json:"non_conformity_id"`
	ActionDescription string                 `json:"action_description"`
	AssignedTo        string                 `json:"assigned_to"`
	AssigneeName      string                 `json:"assignee_name"`
	DueDate           time.Time              `json:"due_date"`
	Status            CorrectiveActionStatus `json:"status"`
	CompletionDate    *time.Time             `json:"completion_date,omitempty"`
	CompletionNotes   *string                `json:"completion_notes,omitempty"`
	VerificationNotes *string                `json:"verification_notes,omitempty"`
}

// JSONList stores a slice as a JSONB column.
type JSONList[T any] []T

// Value implements driver.Valuer.
func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(l))
}

// Scan implements sql.Scanner.
func (l *JSONList[T]) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = JSONList[T]{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json list source %T", src)
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// AuditArchive is an immutable, denormalized record of a closed execution.
type AuditArchive struct {
	ID                    string                             `db:"id" json:"id"`
	TenantID              string                             `db:"tenant_id" json:"tenant_id"`
	ExecutionID           string                             `db:"execution_id" json:"execution_id"`
	TemplateID            string                             `db:"template_id" json:"template_id"`
	TemplateName          string                             `db:"template_name" json:"template_name"`
	TemplateCategory      TemplateCategory                   `db:"template_category" json:"template_category"`
	RestaurantName        string                             `db:"restaurant_name" json:"restaurant_name"`
	InspectorName         string                             `db:"inspector_name" json:"inspector_name"`
	ScheduledDate         time.Time                          `db:"scheduled_date" json:"scheduled_date"`
	CompletedDate         time.Time                          `db:"completed_date" json:"completed_date"`
	FinalStatus           ExecutionStatus                    `db:"final_status" json:"final_status"`
	TotalScore            float64                            `db:"total_score" json:"total_score"`
	MaxPossibleScore      float64                            `db:"max_possible_score" json:"max_possible_score"`
	ScorePercentage       float64                            `db:"score_percentage" json:"score_percentage"`
	ResponsesData         JSONList[ArchivedResponse]         `db:"responses_data" json:"responses_data"`
	NonConformitiesData   JSONList[ArchivedNonConformity]    `db:"non_conformities_data" json:"non_conformities_data"`
	CorrectiveActionsData JSONList[ArchivedCorrectiveAction] `db:"corrective_actions_data" json:"corrective_actions_data"`
	ArchivedBy            string                             `db:"archived_by" json:"archived_by"`
	ArchivedAt            time.Time                          `db:"archived_at" json:"archived_at"`
}

// ArchiveFilter narrows archive listings.
type ArchiveFilter struct {
	TenantID       string
	Category       TemplateCategory
	RestaurantName string
	InspectorName  string
	DateFrom       *time.Time
	DateTo         *time.Time
	MinScore       *float64
	MaxScore       *float64
	PageRequest
}

// ArchiveCategoryCount is one row of the per-category breakdown.
type ArchiveCategoryCount struct {
	Category TemplateCategory `db:"category" json:"category"`
	Count    int              `db:"count" json:"count"`
}

// ArchiveStats aggregates archives of a tenant.
type ArchiveStats struct {
	TotalArchives int                    `json:"total_archives"`
	AverageScore  float64                `json:"average_score"`
	Categories    []ArchiveCategoryCount `json:"categories"`
}
