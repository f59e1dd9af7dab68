package keyword

import (
	"context"
	"strings"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"

	"go.uber.org/zap"
)

var DefaultKeywords = []string{"help", "emergency", "bachao", "madad", "call police"}

// Recognizer opens continuous speech recognition streams.
type Recognizer interface {
	Listen(ctx context.Context) (RecognitionStream, error)
}

// RecognitionStream delivers transcript fragments until the engine ends it.
// Err is valid once Done is closed.
type RecognitionStream interface {
	Transcripts() <-chan domain.Transcript
	Done() <-chan struct{}
	Err() error
	Close() error
}

type Detection struct {
	Keyword    string
	Text       string
	Confidence float64
	At         time.Time
}

type Config struct {
	Keywords     []string
	Debounce     time.Duration
	RestartDelay time.Duration
}

// Spotter watches recognition output for distress keywords and reports at
// most one detection per debounce window.
type Spotter struct {
	rec        Recognizer
	onDistress func(Detection)
	onError    func(error)
	now        func() time.Time
	log        *zap.Logger

	keywords     []string
	debounce     time.Duration
	restartDelay time.Duration

	mu      sync.Mutex
	running bool
	// gen changes on every Start and Stop; a Start whose Listen returns
	// under a newer generation discards its stream.
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	last     time.Time
	accepted bool
}

type Option func(*Spotter)

func WithClock(now func() time.Time) Option { return func(s *Spotter) { s.now = now } }
func WithLogger(lg *zap.Logger) Option      { return func(s *Spotter) { s.log = lg } }

// WithErrorHandler receives recognition failures, including the permission
// denial that stops the spotter.
func WithErrorHandler(fn func(error)) Option { return func(s *Spotter) { s.onError = fn } }

func NewSpotter(rec Recognizer, cfg Config, onDistress func(Detection), opts ...Option) *Spotter {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 10 * time.Second
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	s := &Spotter{
		rec:          rec,
		onDistress:   onDistress,
		onError:      func(error) {},
		now:          time.Now,
		log:          zap.NewNop(),
		keywords:     normalize(cfg.Keywords),
		debounce:     cfg.Debounce,
		restartDelay: cfg.RestartDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start acquires a recognition stream and listens until Stop. Starting a
// running spotter is a no-op. A permission denial is returned and leaves the
// spotter stopped.
func (s *Spotter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.gen++
	mine := s.gen
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	stream, err := s.rec.Listen(ctx)
	if err != nil {
		cancel()
		s.mu.Lock()
		if s.gen == mine {
			s.running = false
		}
		s.mu.Unlock()
		return errors.Wrap(err, "start speech recognition")
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.gen != mine || !s.running {
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		s.log.Debug("spotter stopped while acquiring the microphone")
		return nil
	}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(runCtx, stream, done)
	s.log.Info("keyword spotter listening", zap.Strings("keywords", s.keywords))
	return nil
}

// Stop releases the recognition stream and waits for the listener to exit.
func (s *Spotter) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.running = false
	s.gen++
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Spotter) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Spotter) run(ctx context.Context, stream RecognitionStream, done chan struct{}) {
	defer close(done)
	for {
		ended := s.consume(ctx, stream)
		_ = stream.Close()
		if !ended {
			return
		}

		err := stream.Err()
		if errors.IsKind(err, errors.KindPermissionDenied) {
			s.halt(err)
			return
		}
		if err != nil {
			s.onError(err)
		}
		s.log.Debug("recognition ended, re-arming", zap.Error(err), zap.Duration("delay", s.restartDelay))

		next, ok := s.relisten(ctx)
		if !ok {
			return
		}
		stream = next
	}
}

// consume reports true when the engine ended the stream and false when the
// spotter was stopped.
func (s *Spotter) consume(ctx context.Context, stream RecognitionStream) bool {
	transcripts := stream.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return false
		case t, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			s.Observe(t)
		case <-stream.Done():
			s.drain(transcripts)
			return ctx.Err() == nil
		}
	}
}

func (s *Spotter) drain(transcripts <-chan domain.Transcript) {
	if transcripts == nil {
		return
	}
	for {
		select {
		case t, ok := <-transcripts:
			if !ok {
				return
			}
			s.Observe(t)
		default:
			return
		}
	}
}

func (s *Spotter) relisten(ctx context.Context) (RecognitionStream, bool) {
	for {
		t := time.NewTimer(s.restartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}

		stream, err := s.rec.Listen(ctx)
		if err == nil {
			return stream, true
		}
		if errors.IsKind(err, errors.KindPermissionDenied) {
			s.halt(err)
			return nil, false
		}
		if ctx.Err() != nil {
			return nil, false
		}
		s.onError(err)
	}
}

func (s *Spotter) halt(err error) {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.log.Warn("keyword spotter stopped", zap.Error(err))
	s.onError(err)
}

// Observe checks one fragment and fires onDistress for the first keyword
// found outside the debounce window. It reports whether a detection fired.
func (s *Spotter) Observe(t domain.Transcript) bool {
	kw := s.match(t.Text)
	if kw == "" {
		return false
	}

	now := s.now()
	s.mu.Lock()
	if s.accepted && now.Sub(s.last) < s.debounce {
		s.mu.Unlock()
		s.log.Debug("keyword within debounce window, discarded", zap.String("keyword", kw))
		return false
	}
	s.accepted = true
	s.last = now
	s.mu.Unlock()

	if s.onDistress != nil {
		s.onDistress(Detection{Keyword: kw, Text: t.Text, Confidence: t.Confidence, At: now})
	}
	return true
}

func (s *Spotter) match(text string) string {
	low := strings.ToLower(text)
	for _, kw := range s.keywords {
		if strings.Contains(low, kw) {
			return kw
		}
	}
	return ""
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
