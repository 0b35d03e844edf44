package completion

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker wraps a Provider with a circuit breaker.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. The circuit opens after failures consecutive
// errors and lets one probe request through after openFor.
// Cancellation is not counted as a failure.
func NewBreaker(next Provider, failures int, openFor time.Duration, log zerolog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("completion circuit breaker changed state")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State reports the breaker state, for diagnostics.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
