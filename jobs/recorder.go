package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/shared"
)

// Recorder enqueues audit events to the background queue. Recording is
// fire-and-forget: enqueue failures are logged and discarded so a mutation
// never fails because the log store is unavailable.
type Recorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewRecorder constructs a Recorder backed by an Asynq client.
func NewRecorder(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{client: asynq.NewClient(redisOpts), logger: logger}
}

// Record implements shared.AuditRecorder.
func (r *Recorder) Record(ctx context.Context, event shared.AuditEvent) {
	if r == nil || r.client == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	task, err := NewAuditEventTask(event)
	if err != nil {
		r.logger.Warn("build audit task", slog.Any("error", err))
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		r.logger.Warn("enqueue audit event", slog.String("action", event.Action), slog.Any("error", err))
	}
}

// Close releases the underlying client.
func (r *Recorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
