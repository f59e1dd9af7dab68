package livestream

import (
	"context"
	"sync"
	"sync/atomic"

	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"

	"go.uber.org/zap"
)

const component = "livestream"

// ErrSessionBusy is returned when a different alert is already streaming.
var ErrSessionBusy = errors.New(errors.KindBusy, "livestream already running for another alert")

// ResolveFunc is invoked once when a remote party resolves the alert.
type ResolveFunc func(alertID, by string)

// Session owns the realtime channel of the alert being streamed.
type Session struct {
	dialer    Dialer
	publisher Publisher
	links     *LinkSigner
	sink      ports.EventSink
	log       *zap.Logger

	mu  sync.Mutex
	cur *live
}

type live struct {
	alertID   string
	link      string
	ch        ports.Channel
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onResolve ResolveFunc
	resolved  sync.Once
	stopped   atomic.Bool
	viewers   atomic.Int64
}

type SessionOption func(*Session)

func WithSessionSink(sink ports.EventSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

func WithSessionLogger(lg *zap.Logger) SessionOption {
	return func(s *Session) { s.log = lg }
}

func NewSession(dialer Dialer, publisher Publisher, links *LinkSigner, opts ...SessionOption) *Session {
	s := &Session{
		dialer:    dialer,
		publisher: publisher,
		links:     links,
		sink:      ports.NopSink{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the relay, begins publishing and returns the viewer link.
// Starting the alert that is already live returns its link again.
func (s *Session) Start(ctx context.Context, alertID string, onResolve ResolveFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		if s.cur.alertID == alertID {
			return s.cur.link, nil
		}
		return "", ErrSessionBusy
	}

	link, err := s.links.ViewerLink(alertID)
	if err != nil {
		return "", err
	}
	ch, err := s.dialer.Dial(ctx, alertID)
	if err != nil {
		return "", errors.Wrap(err, "connect livestream")
	}

	// the stream outlives the trigger request
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &live{alertID: alertID, link: link, ch: ch, cancel: cancel, onResolve: onResolve}
	s.cur = l

	l.wg.Add(2)
	go s.readLoop(runCtx, l)
	go s.publish(runCtx, l)

	s.log.Info("livestream started", zap.String("alert", alertID))
	return link, nil
}

// Stop tears down the channel and waits for publishing to end. Stopping an
// idle session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	l := s.cur
	s.cur = nil
	s.mu.Unlock()
	if l == nil {
		return nil
	}

	l.stopped.Store(true)
	l.cancel()
	err := l.ch.Close()
	l.wg.Wait()
	s.log.Info("livestream stopped", zap.String("alert", l.alertID))
	return err
}

// Link returns the viewer link of the running stream, if any.
func (s *Session) Link() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.link
}

// ViewerCount returns the last count reported by the relay.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0
	}
	return int(s.cur.viewers.Load())
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

func (s *Session) publish(ctx context.Context, l *live) {
	defer l.wg.Done()
	if err := s.publisher.Publish(ctx, l.ch); err != nil && !l.stopped.Load() {
		s.log.Warn("publisher ended", zap.String("alert", l.alertID), zap.Error(err))
		s.sink.Error(component, err)
	}
}

func (s *Session) readLoop(ctx context.Context, l *live) {
	defer l.wg.Done()
	for raw := range l.ch.Messages() {
		if l.stopped.Load() {
			continue
		}
		sig, err := websocket.Decode(raw)
		if errors.Is(err, websocket.ErrUnknownKind) {
			continue
		}
		if err != nil {
			s.log.Warn("invalid relay message", zap.Error(err))
			continue
		}
		s.handle(ctx, l, sig)
	}
	if !l.stopped.Load() {
		s.sink.Error(component, errors.New(errors.KindUnavailable, "relay connection closed"))
	}
}

func (s *Session) handle(ctx context.Context, l *live, sig websocket.Signal) {
	switch sig.Kind {
	case websocket.KindResolved:
		if sig.AlertID != l.alertID {
			s.log.Debug("resolved for another alert", zap.String("alert", sig.AlertID))
			return
		}
		l.resolved.Do(func() {
			s.log.Info("alert resolved remotely", zap.String("alert", l.alertID), zap.String("by", sig.By))
			if l.onResolve != nil {
				// the callback usually stops this session, so it cannot run on the reader
				go l.onResolve(l.alertID, sig.By)
			}
		})
	case websocket.KindViewerCount:
		l.viewers.Store(int64(sig.Count))
		s.sink.ViewerCount(l.alertID, sig.Count)
	case websocket.KindOffer, websocket.KindAnswer, websocket.KindCandidate:
		if err := s.publisher.Signal(ctx, l.ch, sig); err != nil {
			s.log.Warn("signalling failed", zap.String("kind", sig.Kind), zap.Error(err))
		}
	case websocket.KindError:
		s.log.Warn("relay reported error", zap.String("message", sig.Message))
		s.sink.Error(component, errors.New(errors.KindTransient, sig.Message))
	}
}
