package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

type flakySender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *flakySender) Send(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type breakerEvents struct {
	mu       sync.Mutex
	states   []string
	rejected int
}

func (b *breakerEvents) BreakerState(_ string, state string) {
	b.mu.Lock()
	b.states = append(b.states, state)
	b.mu.Unlock()
}

func (b *breakerEvents) BreakerRejected(string) {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	next := &flakySender{err: errors.New("gateway 503")}
	events := &breakerEvents{}
	b := NewBreakerSender("sms", next, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour}, events)

	assert.Error(t, b.Send(context.Background(), "1", "x"))
	assert.Error(t, b.Send(context.Background(), "1", "x"))
	assert.Equal(t, "open", b.State())

	err := b.Send(context.Background(), "1", "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls, "open breaker does not call the gateway")
	assert.Equal(t, []string{"open"}, events.states)
	assert.Equal(t, 1, events.rejected)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	next := &flakySender{err: context.Canceled}
	b := NewBreakerSender("wa", next, BreakerConfig{ConsecutiveFailures: 1}, nil)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Send(context.Background(), "1", "x"), context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
}
