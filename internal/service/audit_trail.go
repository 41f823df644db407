package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type eventEmitter interface {
	Emit(ctx context.Context, event models.DomainEvent)
}

// auditEntry is what a service hands to emitAudit.
type auditEntry struct {
	Action     string
	Resource   string
	ResourceID string
	Old        interface{}
	New        interface{}
}

// emitAudit persists a trail row; failures are logged and never surface to the caller.
func emitAudit(ctx context.Context, store auditLogger, logger *zap.Logger, source string, actor *models.AuthorizationContext, entry auditEntry) {
	if store == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.Action,
		Resource:  entry.Resource,
		IPAddress: "system",
		UserAgent: source,
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		log.ResourceID = &id
	}
	if actor != nil {
		userID := actor.UserID
		log.UserID = &userID
		if actor.TenantID != "" {
			tenantID := actor.TenantID
			log.TenantID = &tenantID
		}
	}
	log.OldValues = marshalAuditValues(entry.Old, logger)
	log.NewValues = marshalAuditValues(entry.New, logger)
	if err := store.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func marshalAuditValues(value interface{}, logger *zap.Logger) []byte {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("failed to encode audit values", zap.Error(err))
		return nil
	}
	return raw
}

func emitEvent(ctx context.Context, events eventEmitter, event models.DomainEvent) {
	if events == nil {
		return
	}
	events.Emit(ctx, event)
}

func optionalString(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
