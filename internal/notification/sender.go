// Package notification delivers one-time passwords and other account notices to users.
package notification

import (
	"context"

	"go.uber.org/zap"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender records deliveries instead of sending them. Used when no SMTP host is configured.
// The body is never logged because it carries the code.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery skipped: smtp not configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
