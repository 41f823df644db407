package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/pkg/jobs"
)

type eventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// NotificationConfig tunes the event publisher.
type NotificationConfig struct {
	Enabled    bool
	Channel    string
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// NotificationService hands domain events to an in-process queue whose workers publish them
// on the notification channel. Delivery to people is the subscriber's job.
type NotificationService struct {
	publisher eventPublisher
	queue     *jobs.Queue
	channel   string
	enabled   bool
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service. Call Start before emitting.
func NewNotificationService(publisher eventPublisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = "audit.events"
	}
	svc := &NotificationService{
		publisher: publisher,
		channel:   cfg.Channel,
		enabled:   cfg.Enabled && publisher != nil,
		metrics:   metrics,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains nothing and waits for the workers to exit.
func (s *NotificationService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Emit enqueues the event without blocking. A full or stopped queue drops the event.
func (s *NotificationService) Emit(ctx context.Context, event models.DomainEvent) {
	if s == nil || !s.enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Type, Payload: event}); err != nil {
		s.metrics.EventPublished(event.Type, "dropped")
		s.logger.Warn("notification event dropped",
			zap.String("type", event.Type),
			zap.String("tenant_id", event.TenantID),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.DomainEvent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("payload_type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode notification event", zap.String("type", event.Type), zap.Error(err))
		return nil
	}
	if err := s.publisher.Publish(ctx, s.channel, payload); err != nil {
		s.metrics.EventPublished(event.Type, "failed")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	s.metrics.EventPublished(event.Type, "published")
	return nil
}
