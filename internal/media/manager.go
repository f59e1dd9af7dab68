package media

import (
	"context"
	"io"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
	"Raksha/pkg/scheduler"

	"go.uber.org/zap"
)

var (
	ErrCaptureBusy  = errors.New(errors.KindBusy, "capture already running")
	ErrNotCapturing = errors.New(errors.KindInvalid, "no capture running")
)

// Device acquires camera and microphone. The returned Stream owns the
// hardware until Stop.
type Device interface {
	Open(ctx context.Context, c domain.Constraints) (Stream, error)
}

type Stream interface {
	io.Reader
	Stop() error
	ActiveTracks() int
	ContentType() string
}

type CompactionObserver interface {
	ObserveCompaction(chunks int, bytes int64)
}

type Config struct {
	ChunkInterval   time.Duration
	CompactInterval time.Duration
	MaxBytes        int64
	// ReplayBytes is how much of the start of a capture late subscribers
	// receive before live data.
	ReplayBytes int
	ReadSize    int
}

func DefaultConfig() Config {
	return Config{
		ChunkInterval:   time.Second,
		CompactInterval: 30 * time.Second,
		MaxBytes:        50 << 20,
		ReplayBytes:     256 << 10,
		ReadSize:        32 << 10,
	}
}

// Handle describes a running capture.
type Handle struct {
	StartedAt   time.Time
	ContentType string
}

// Manager exclusively owns the capture device for the duration of a capture
// and records it into a bounded Buffer.
type Manager struct {
	device   Device
	cfg      Config
	sched    *scheduler.Scheduler
	observer CompactionObserver
	log      *zap.Logger
	buf      *Buffer

	mu  sync.Mutex
	cur *capture

	tapMu  sync.Mutex
	subs   map[int]chan []byte
	nextID int
	replay []byte
}

type capture struct {
	opening   bool
	stopping  bool
	stream    Stream
	startedAt time.Time

	pendMu  sync.Mutex
	pending []byte

	cancel      context.CancelFunc
	stopCompact func()
	readerDone  chan struct{}
	tickerDone  chan struct{}
}

type Option func(*Manager)

func WithObserver(o CompactionObserver) Option { return func(m *Manager) { m.observer = o } }
func WithLogger(lg *zap.Logger) Option         { return func(m *Manager) { m.log = lg } }

func NewManager(device Device, sched *scheduler.Scheduler, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = def.ChunkInterval
	}
	if cfg.CompactInterval <= 0 {
		cfg.CompactInterval = def.CompactInterval
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = def.ReadSize
	}
	if cfg.ReplayBytes < 0 {
		cfg.ReplayBytes = 0
	}
	m := &Manager{
		device: device,
		cfg:    cfg,
		sched:  sched,
		log:    zap.NewNop(),
		buf:    NewBuffer(cfg.MaxBytes),
		subs:   make(map[int]chan []byte),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start opens the device and begins chunked recording. A second Start while
// a capture is opening, running or stopping fails with ErrCaptureBusy.
func (m *Manager) Start(ctx context.Context, c domain.Constraints) (Handle, error) {
	m.mu.Lock()
	if m.cur != nil {
		m.mu.Unlock()
		return Handle{}, ErrCaptureBusy
	}
	cp := &capture{opening: true}
	m.cur = cp
	m.mu.Unlock()

	stream, err := m.device.Open(ctx, c)

	m.mu.Lock()
	if err != nil {
		m.cur = nil
		m.mu.Unlock()
		return Handle{}, errors.Wrap(err, "open capture device")
	}
	if cp.stopping {
		// Stop arrived while the device was opening.
		m.cur = nil
		m.mu.Unlock()
		_ = stream.Stop()
		return Handle{}, errors.New(errors.KindCancelled, "capture stopped while opening")
	}
	cp.opening = false
	cp.stream = stream
	cp.startedAt = time.Now()
	m.buf.Reset()
	m.tapMu.Lock()
	m.replay = m.replay[:0]
	m.tapMu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	cp.cancel = cancel
	cp.readerDone = make(chan struct{})
	cp.tickerDone = make(chan struct{})
	go m.readLoop(cp)
	go m.chunkLoop(runCtx, cp)
	if m.sched != nil {
		cp.stopCompact = m.sched.Every("media.compact", m.cfg.CompactInterval, scheduler.FuncJob(func(context.Context) {
			m.Compact()
		}))
	}
	m.mu.Unlock()

	m.log.Info("capture started", zap.String("contentType", stream.ContentType()))
	return Handle{StartedAt: cp.startedAt, ContentType: stream.ContentType()}, nil
}

// Stop releases the hardware first, then flushes the in-progress chunk and
// returns everything retained as one clip. The returned error reports a
// device stop failure; the clip is valid either way.
func (m *Manager) Stop() (domain.Clip, error) {
	m.mu.Lock()
	cp := m.cur
	if cp == nil || cp.stopping {
		m.mu.Unlock()
		return domain.Clip{}, ErrNotCapturing
	}
	cp.stopping = true
	if cp.opening {
		m.mu.Unlock()
		return domain.Clip{}, nil
	}
	m.mu.Unlock()

	if cp.stopCompact != nil {
		cp.stopCompact()
	}
	stopErr := cp.stream.Stop()
	cp.cancel()
	<-cp.readerDone
	<-cp.tickerDone
	m.flush(cp)

	clip := domain.Clip{
		Data:        m.buf.Drain(),
		ContentType: cp.stream.ContentType(),
		StartedAt:   cp.startedAt,
		StoppedAt:   time.Now(),
	}

	m.tapMu.Lock()
	m.replay = nil
	m.tapMu.Unlock()

	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()

	if stopErr != nil {
		m.log.Warn("capture device stop failed", zap.Error(stopErr))
		return clip, errors.Wrap(stopErr, "stop capture device")
	}
	m.log.Info("capture stopped", zap.Int("bytes", len(clip.Data)))
	return clip, nil
}

// Reset discards recorded data without stopping the capture.
func (m *Manager) Reset() {
	m.mu.Lock()
	cp := m.cur
	m.mu.Unlock()
	if cp != nil {
		cp.pendMu.Lock()
		cp.pending = nil
		cp.pendMu.Unlock()
	}
	m.buf.Reset()
}

// Compact enforces the byte cap on the retained chunks.
func (m *Manager) Compact() {
	chunks, n := m.buf.Compact()
	if chunks == 0 {
		return
	}
	m.log.Debug("capture buffer compacted", zap.Int("chunks", chunks), zap.Int64("bytes", n))
	if m.observer != nil {
		m.observer.ObserveCompaction(chunks, n)
	}
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil && !m.cur.opening && !m.cur.stopping
}

// ActiveTracks reports hardware tracks held by the current capture.
func (m *Manager) ActiveTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.stream == nil {
		return 0
	}
	return m.cur.stream.ActiveTracks()
}

func (m *Manager) BufferedBytes() int64 { return m.buf.Total() }

// Subscribe taps the raw capture bytes. Slow subscribers lose data rather
// than stall recording. A subscriber that joins during a capture first gets
// the capture's opening bytes, up to ReplayBytes.
func (m *Manager) Subscribe(size int) (<-chan []byte, func()) {
	if size <= 0 {
		size = 64
	}
	ch := make(chan []byte, size)

	m.tapMu.Lock()
	id := m.nextID
	m.nextID++
	if len(m.replay) > 0 {
		head := make([]byte, len(m.replay))
		copy(head, m.replay)
		ch <- head
	}
	m.subs[id] = ch
	m.tapMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.tapMu.Lock()
			delete(m.subs, id)
			m.tapMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) readLoop(cp *capture) {
	defer close(cp.readerDone)
	buf := make([]byte, m.cfg.ReadSize)
	for {
		n, err := cp.stream.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			cp.pendMu.Lock()
			cp.pending = append(cp.pending, data...)
			cp.pendMu.Unlock()

			m.publish(data)
		}
		if err != nil {
			if err != io.EOF {
				m.log.Debug("capture read ended", zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) chunkLoop(ctx context.Context, cp *capture) {
	defer close(cp.tickerDone)
	t := time.NewTicker(m.cfg.ChunkInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.flush(cp)
		}
	}
}

func (m *Manager) flush(cp *capture) {
	cp.pendMu.Lock()
	chunk := cp.pending
	cp.pending = nil
	cp.pendMu.Unlock()
	m.buf.Append(chunk)
}

func (m *Manager) publish(data []byte) {
	m.tapMu.Lock()
	defer m.tapMu.Unlock()
	if room := m.cfg.ReplayBytes - len(m.replay); room > 0 {
		if room > len(data) {
			room = len(data)
		}
		m.replay = append(m.replay, data[:room]...)
	}
	for _, ch := range m.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
