package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/audit"
	jobmetrics "github.com/warden-authz/warden/internal/jobs"
	"github.com/warden-authz/warden/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditEvent is the task type for persisting audit events.
	TaskTypeAuditEvent = "audit:event"
)

// NewAuditEventTask constructs an Asynq task from a mutation event.
func NewAuditEventTask(event shared.AuditEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditEvent, data), nil
}

// AuditEventJob persists audit events delivered through the queue.
type AuditEventJob struct {
	service *audit.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditEventJob constructs the job handler. metrics may be nil.
func NewAuditEventJob(service *audit.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditEventJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEventJob{service: service, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeAuditEvent tasks. A malformed payload is dropped
// rather than retried.
func (j *AuditEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskTypeAuditEvent)
	var event shared.AuditEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		j.logger.Warn("audit event payload", slog.Any("error", err))
		return tracker.End(asynq.SkipRetry)
	}
	entry := audit.LogEntry{
		ID:       event.ID,
		ActorID:  event.ActorID,
		Action:   event.Action,
		Entity:   event.Entity,
		EntityID: event.EntityID,
		Meta:     event.Meta,
		At:       event.At,
	}
	if err := j.service.Store(ctx, entry); err != nil {
		j.logger.Error("store audit event", slog.String("event_id", event.ID), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
