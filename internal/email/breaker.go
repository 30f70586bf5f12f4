package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jwalitptl/hiring-api/pkg/logger"
)

// BreakerSender stops calling a failing transport for a cool-down period.
// Permanent errors come from a malformed recipient, not the transport, and do
// not count as failures. An open breaker is reported as a transient error.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSender(next Sender, name string, failures int, timeout time.Duration, log *logger.Logger) *BreakerSender {
	if failures < 1 {
		failures = 5
	}
	if log == nil {
		log = logger.Nop()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("email circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &BreakerSender{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("email transport unavailable: %w", err)
	}
	return err
}

func (s *BreakerSender) State() gobreaker.State {
	return s.cb.State()
}
