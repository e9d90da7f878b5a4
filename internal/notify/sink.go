// Package notify carries changelog transition events out of the core.
//
// The core only needs a publish capability: delivery is fire-and-forget,
// best-effort. The websocket hub is one sink; tests use the no-op or log
// sinks.
package notify

import (
	"context"
	"log/slog"

	"github.com/mindlens/mindlens/internal/lens"
)

// Sink receives outbound changelog events. Publish must never block the
// caller on slow consumers and must never return delivery errors into the
// mutation path.
type Sink interface {
	Publish(ctx context.Context, event lens.Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, lens.Event) {}

// LogSink writes events to the structured log. Useful for CLI runs where no
// websocket hub is attached.
type LogSink struct{}

// Publish implements Sink.
func (LogSink) Publish(_ context.Context, event lens.Event) {
	slog.Info("changelog event",
		"type", event.Type,
		"workspace", event.WorkspaceID,
		"change", event.ChangeID,
		"operation", string(event.Operation),
		"target_type", string(event.TargetType),
		"target", event.TargetID,
		"actor", string(event.Actor),
	)
}
