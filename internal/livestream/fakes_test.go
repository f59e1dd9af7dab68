package livestream

import (
	"context"
	"sync"

	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"
)

type fakeChannel struct {
	mu     sync.Mutex
	text   [][]byte
	binary [][]byte
	in     chan []byte
	once   sync.Once
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan []byte, 16)}
}

func (c *fakeChannel) Send(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(errors.KindUnavailable, "closed")
	}
	c.text = append(c.text, msg)
	return nil
}

func (c *fakeChannel) SendBinary(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(errors.KindUnavailable, "closed")
	}
	c.binary = append(c.binary, data)
	return nil
}

func (c *fakeChannel) Messages() <-chan []byte { return c.in }

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.in)
	})
	return nil
}

func (c *fakeChannel) push(sig websocket.Signal) {
	raw, err := websocket.Encode(sig)
	if err != nil {
		panic(err)
	}
	c.in <- raw
}

func (c *fakeChannel) binaries() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.binary...)
}

func (c *fakeChannel) texts() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.text...)
}

type fakeDialer struct {
	ch    *fakeChannel
	err   error
	calls int
}

func (d *fakeDialer) Dial(context.Context, string) (ports.Channel, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	started chan struct{}
	ended   chan struct{}
	signals []websocket.Signal
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{started: make(chan struct{}), ended: make(chan struct{})}
}

func (p *fakePublisher) Publish(ctx context.Context, _ ports.Channel) error {
	close(p.started)
	<-ctx.Done()
	close(p.ended)
	return nil
}

func (p *fakePublisher) Signal(_ context.Context, _ ports.Channel, sig websocket.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakePublisher) got() []websocket.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]websocket.Signal(nil), p.signals...)
}

// fakeTap hands out one channel the test feeds directly.
type fakeTap struct {
	ch           chan []byte
	unsubscribed chan struct{}
	once         sync.Once
}

func newFakeTap() *fakeTap {
	return &fakeTap{ch: make(chan []byte, 64), unsubscribed: make(chan struct{})}
}

func (t *fakeTap) Subscribe(int) (<-chan []byte, func()) {
	return t.ch, func() { t.once.Do(func() { close(t.unsubscribed) }) }
}

type recordingSink struct {
	ports.NopSink
	mu      sync.Mutex
	viewers []int
	errs    []error
}

func (s *recordingSink) ViewerCount(_ string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewers = append(s.viewers, n)
}

func (s *recordingSink) Error(_ string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) snapshot() ([]int, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.viewers...), append([]error(nil), s.errs...)
}

var _ ports.EventSink = (*recordingSink)(nil)
