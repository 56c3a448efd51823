package notify

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the structured log. It stands in for
// the email/SMS channel in demo deployments.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, event *Event) error {
	s.logger.Info("notification",
		"event", event.Type,
		"user", event.UserID,
		"data", event.Data)
	return nil
}

var _ Sink = (*LogSink)(nil)
