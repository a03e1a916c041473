package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes transport events to an slog.Logger.
// Useful in development when you want connection activity on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("category", event.Category.String()),
	}

	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}

	switch {
	case event.Envelope != nil:
		attrs = append(attrs,
			slog.String("channel", event.Envelope.Channel),
			slog.Int("size", event.Envelope.Size),
		)
		if event.Envelope.Subscribers > 0 {
			attrs = append(attrs, slog.Int("subscribers", event.Envelope.Subscribers))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Control != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.Control.Type))
		if event.Control.Code != 0 {
			attrs = append(attrs, slog.Int("close_code", event.Control.Code))
		}
		if event.Control.Reason != "" {
			attrs = append(attrs, slog.String("close_reason", event.Control.Reason))
		}
	case event.Drop != nil:
		attrs = append(attrs, slog.String("drop_reason", event.Drop.Reason))
		if event.Drop.Size > 0 {
			attrs = append(attrs, slog.Int("size", event.Drop.Size))
		}
	case event.Error != nil:
		attrs = append(attrs, slog.String("error_msg", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "uplink", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
