package notification

import (
	"context"
	"errors"
	"time"

	"Raksha/pkg/logger"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerObserver interface {
	BreakerState(name string, state string)
	BreakerRejected(name string)
}

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Interval            time.Duration
}

// BreakerSender guards a gateway sender with a circuit breaker so a dead
// provider fails fast instead of eating the fan-out's pacing budget.
type BreakerSender struct {
	next     Sender
	cb       *gobreaker.CircuitBreaker[struct{}]
	observer BreakerObserver
}

func NewBreakerSender(name string, next Sender, cfg BreakerConfig, observer BreakerObserver) *BreakerSender {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	b := &BreakerSender{next: next, observer: observer}
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sender circuit breaker state changed",
				zap.String("sender", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if b.observer != nil {
				b.observer.BreakerState(name, to.String())
			}
		},
		// a cancelled dispatch says nothing about the provider
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return b
}

func (b *BreakerSender) Send(ctx context.Context, address, text string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, address, text)
	})
	if b.observer != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		b.observer.BreakerRejected(b.cb.Name())
	}
	return err
}

func (b *BreakerSender) State() string { return b.cb.State().String() }
