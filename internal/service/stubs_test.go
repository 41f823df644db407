package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

type eventStub struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (e *eventStub) Emit(ctx context.Context, event models.DomainEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventStub) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

// testNow is Monday 2026-10-19 09:00 UTC.
var testNow = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

func fixedClock(now time.Time) Clock {
	return Clock{Location: time.UTC, NowFunc: func() time.Time { return now }}
}

func day(offset int) time.Time {
	return startOfDay(testNow).AddDate(0, 0, offset)
}

func actorAdmin() *models.AuthorizationContext {
	return &models.AuthorizationContext{UserID: "admin-1", TenantID: "tenant-1", Role: models.RoleAdmin, FullName: "Ada Admin"}
}

func actorManager() *models.AuthorizationContext {
	return &models.AuthorizationContext{UserID: "manager-1", TenantID: "tenant-1", Role: models.RoleManager, FullName: "Mia Manager"}
}

func actorInspector() *models.AuthorizationContext {
	return &models.AuthorizationContext{UserID: "inspector-1", TenantID: "tenant-1", Role: models.RoleInspector, FullName: "Ivo Inspector"}
}

func actorStaff() *models.AuthorizationContext {
	return &models.AuthorizationContext{UserID: "staff-1", TenantID: "tenant-1", Role: models.RoleStaff, FullName: "Sam Staff"}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }
