package shared

import (
	"context"
	"time"
)

// AuditEvent describes a mutation to the permission registry.
type AuditEvent struct {
	ID       string         `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditRecorder accepts mutation events. Implementations must not block the
// caller; failures are logged and discarded, never returned.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent)
}

// NopAuditRecorder discards every event.
type NopAuditRecorder struct{}

// Record implements AuditRecorder.
func (NopAuditRecorder) Record(context.Context, AuditEvent) {}
