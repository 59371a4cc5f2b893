package notify

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Log)(nil)

// Log writes the payload to a logger at WARN. For development only: the reset
// code ends up in the server log.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, destination, payload string) error {
	l.logger.WarnContext(ctx, "reset code issued", "destination", destination, "code", payload)
	return nil
}
