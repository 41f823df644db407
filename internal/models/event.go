package models

import "time"

// Domain event types published for downstream notification delivery.
const (
	EventAuditScheduled   = "audit.scheduled"
	EventActionAssigned   = "corrective_action.assigned"
	EventExecutionArchive = "audit.archived"
)

// DomainEvent is the envelope published on the notification channel.
type DomainEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Recipients []string               `json:"recipients,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}
