package models

import "time"

// AuditAction constants represent actions recorded in the trail.
const (
	AuditActionTemplateCreate   = "AUDIT_TEMPLATE_CREATE"
	AuditActionTemplateUpdate   = "AUDIT_TEMPLATE_UPDATE"
	AuditActionTemplateDelete   = "AUDIT_TEMPLATE_DELETE"
	AuditActionExecutionCreate  = "AUDIT_EXECUTION_SCHEDULE"
	AuditActionExecutionUpdate  = "AUDIT_EXECUTION_RESCHEDULE"
	AuditActionExecutionDelete  = "AUDIT_EXECUTION_CANCEL"
	AuditActionExecutionStatus  = "AUDIT_EXECUTION_STATUS"
	AuditActionResponseRecord   = "AUDIT_RESPONSE_RECORD"
	AuditActionNonConformity    = "NON_CONFORMITY_STATUS"
	AuditActionActionCreate     = "CORRECTIVE_ACTION_CREATE"
	AuditActionActionUpdate     = "CORRECTIVE_ACTION_UPDATE"
	AuditActionActionStatus     = "CORRECTIVE_ACTION_STATUS"
	AuditActionActionArchive    = "CORRECTIVE_ACTION_ARCHIVE"
	AuditActionExecutionArchive = "AUDIT_EXECUTION_ARCHIVE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	TenantID   *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
