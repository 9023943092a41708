package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger. Useful during
// development when you want protocol events on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.SocketPath != "" {
		attrs = append(attrs, slog.String("socket", event.SocketPath))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("frame_size", event.Frame.Size),
			slog.Uint64("msg_id", uint64(event.Frame.MessageID)),
			slog.Uint64("component", uint64(event.Frame.ComponentType)),
			slog.Uint64("subtype", uint64(event.Frame.SubType)),
		)
	case event.Heartbeat != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("kind", event.Heartbeat.Kind.String()),
			slog.Uint64("seq", uint64(event.Heartbeat.Seq)),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Component != nil:
		attrs = append(attrs,
			slog.Uint64("component", uint64(event.Component.ID)),
			slog.String("action", event.Component.Action),
		)
		if event.Component.Detail != "" {
			attrs = append(attrs, slog.String("detail", event.Component.Detail))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
