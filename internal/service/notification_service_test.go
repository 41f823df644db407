package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

type publisherStub struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	failures int
}

func (p *publisherStub) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("redis unavailable")
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, payload)
	return nil
}

func (p *publisherStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestNotificationServicePublishesEvent(t *testing.T) {
	publisher := &publisherStub{}
	svc := NewNotificationService(publisher, NotificationConfig{Enabled: true, Channel: "audit.events", Workers: 1}, NewMetricsService(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Emit(ctx, models.DomainEvent{
		Type:       models.EventAuditScheduled,
		TenantID:   "tenant-1",
		Recipients: []string{"inspector-1"},
		Payload:    map[string]interface{}{"execution_id": "exec-1"},
	})

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, "audit.events", publisher.channels[0])
	var event models.DomainEvent
	require.NoError(t, json.Unmarshal(publisher.messages[0], &event))
	assert.Equal(t, models.EventAuditScheduled, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, []string{"inspector-1"}, event.Recipients)
}

func TestNotificationServiceRetriesFailedPublish(t *testing.T) {
	publisher := &publisherStub{failures: 1}
	svc := NewNotificationService(publisher, NotificationConfig{Enabled: true, Workers: 1, Retries: 2, RetryDelay: 10 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Emit(ctx, models.DomainEvent{Type: models.EventActionAssigned, TenantID: "tenant-1"})

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestNotificationServiceEmitNeverFails(t *testing.T) {
	publisher := &publisherStub{}

	notStarted := NewNotificationService(publisher, NotificationConfig{Enabled: true}, nil, nil)
	notStarted.Emit(context.Background(), models.DomainEvent{Type: models.EventAuditScheduled})

	disabled := NewNotificationService(publisher, NotificationConfig{Enabled: false}, nil, nil)
	disabled.Start(context.Background())
	disabled.Emit(context.Background(), models.DomainEvent{Type: models.EventAuditScheduled})
	disabled.Stop()

	var nilSvc *NotificationService
	nilSvc.Emit(context.Background(), models.DomainEvent{Type: models.EventAuditScheduled})

	assert.Equal(t, 0, publisher.count())
}
