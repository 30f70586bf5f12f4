// Package email delivers rendered notifications over a configurable
// transport. Errors marked with Permanent must not be retried; only a
// malformed recipient address is. Every other error, provider rejections
// included, is transient.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/hiring-api/internal/config"
	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// Sender delivers one message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	// Headers are passed to the provider verbatim; the delivery worker sets the
	// idempotency key here.
	Headers map[string]string
}

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderNotificationID = "X-Notification-ID"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

var validate = validator.New()

// ValidateAddress rejects malformed recipient addresses with a permanent error.
func ValidateAddress(addr string) error {
	if err := validate.Var(addr, "required,email"); err != nil {
		return Permanent(fmt.Errorf("invalid recipient address %q", addr))
	}
	return nil
}

// New builds the configured transport wrapped in a circuit breaker.
func New(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	var sender Sender
	switch cfg.Driver {
	case "http":
		sender = NewHTTPSender(cfg.Endpoint, cfg.APIKey, cfg.Timeout, cfg.RatePerSecond)
	case "smtp":
		sender = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	case "log", "":
		sender = NewLogSender(log)
	default:
		return nil, fmt.Errorf("unknown email driver %q", cfg.Driver)
	}

	return NewBreakerSender(sender, "email-"+cfg.Driver, cfg.BreakerFailures, cfg.BreakerTimeout, log), nil
}
