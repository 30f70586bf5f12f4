package email

import (
	"context"

	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. Used for
// local development.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSender{logger: log.With("component", "email.log")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ValidateAddress(msg.To); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email delivered to log",
		"to", msg.To,
		"subject", msg.Subject,
		"notification_id", msg.Headers[HeaderNotificationID],
		"text", msg.Text)
	return nil
}
