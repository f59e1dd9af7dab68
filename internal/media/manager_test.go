package media

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
	"Raksha/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	tracks atomic.Int32
	stops  atomic.Int32
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	s := &fakeStream{r: r, w: w}
	s.tracks.Store(2)
	return s
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *fakeStream) ContentType() string        { return "video/webm" }
func (s *fakeStream) ActiveTracks() int          { return int(s.tracks.Load()) }

func (s *fakeStream) Stop() error {
	s.stops.Add(1)
	s.tracks.Store(0)
	_ = s.w.Close()
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	gate    chan struct{}
}

func (d *fakeDevice) Open(ctx context.Context, _ domain.Constraints) (Stream, error) {
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type countingObserver struct{ chunks atomic.Int64 }

func (o *countingObserver) ObserveCompaction(chunks int, _ int64) { o.chunks.Add(int64(chunks)) }

func newTestManager(t *testing.T, dev Device, cfg Config, opts ...Option) *Manager {
	t.Helper()
	sched := scheduler.New()
	t.Cleanup(sched.Stop)
	return NewManager(dev, sched, cfg, opts...)
}

func TestManagerRecordsAndStops(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	m := newTestManager(t, dev, Config{ChunkInterval: 10 * time.Millisecond})

	h, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, "video/webm", h.ContentType)
	assert.Equal(t, 2, m.ActiveTracks())

	s := dev.last()
	_, err = s.w.Write([]byte("hello "))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.BufferedBytes() == 6 }, time.Second, 5*time.Millisecond)
	_, err = s.w.Write([]byte("world"))
	require.NoError(t, err)

	clip, err := m.Stop()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(clip.Data))
	assert.Equal(t, 0, m.ActiveTracks())
	assert.Zero(t, m.BufferedBytes())
	assert.False(t, m.Running())
}

func TestManagerStopDuringWriteReleasesTracks(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	m := newTestManager(t, dev, Config{ChunkInterval: time.Hour, ReadSize: 4})

	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	s := dev.last()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			if _, err := s.w.Write([]byte("frame-data-frame-data")); err != nil {
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	clip, err := m.Stop()
	require.NoError(t, err)
	<-writerDone

	assert.Equal(t, 0, s.ActiveTracks())
	assert.Equal(t, 0, m.ActiveTracks())
	assert.Equal(t, int32(1), s.stops.Load())
	assert.NotEmpty(t, clip.Data, "in-progress chunk is flushed")
}

func TestManagerRejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	m := newTestManager(t, dev, Config{})

	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)

	_, err = m.Start(context.Background(), domain.DefaultConstraints())
	assert.ErrorIs(t, err, ErrCaptureBusy)
	assert.True(t, errors.IsKind(err, errors.KindBusy))

	_, err = m.Stop()
	require.NoError(t, err)

	_, err = m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	_, _ = m.Stop()
}

func TestManagerStartErrorLeavesNoStream(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{err: errors.New(errors.KindPermissionDenied, "camera refused")}
	m := newTestManager(t, dev, Config{})

	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPermissionDenied))
	assert.False(t, m.Running())

	_, err = m.Stop()
	assert.ErrorIs(t, err, ErrNotCapturing)
}

func TestManagerStopWhileOpeningReleasesDevice(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{gate: make(chan struct{})}
	m := newTestManager(t, dev, Config{})

	startErr := make(chan error, 1)
	go func() {
		_, err := m.Start(context.Background(), domain.DefaultConstraints())
		startErr <- err
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.cur != nil
	}, time.Second, time.Millisecond)

	clip, err := m.Stop()
	require.NoError(t, err)
	assert.True(t, clip.Empty())

	close(dev.gate)
	err = <-startErr
	assert.True(t, errors.IsKind(err, errors.KindCancelled))
	assert.Equal(t, 0, dev.last().ActiveTracks())
	assert.Equal(t, 0, m.ActiveTracks())
}

func TestManagerCompactionKeepsWithinCap(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	obs := &countingObserver{}
	m := newTestManager(t, dev, Config{
		ChunkInterval:   5 * time.Millisecond,
		CompactInterval: 20 * time.Millisecond,
		MaxBytes:        64,
	}, WithObserver(obs))

	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	s := dev.last()
	for i := 0; i < 8; i++ {
		_, err := s.w.Write(make([]byte, 32))
		require.NoError(t, err)
		time.Sleep(8 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return obs.chunks.Load() > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	m.Compact()
	assert.LessOrEqual(t, m.BufferedBytes(), int64(64))
	_, _ = m.Stop()
}

func TestManagerSubscribeReplaysOpeningBytes(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	m := newTestManager(t, dev, Config{ReplayBytes: 4})

	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	s := dev.last()
	_, err = s.w.Write([]byte("DKIF"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m.tapMu.Lock()
		defer m.tapMu.Unlock()
		return len(m.replay) == 4
	}, time.Second, time.Millisecond)

	ch, cancel := m.Subscribe(4)
	defer cancel()
	assert.Equal(t, []byte("DKIF"), <-ch)

	_, err = s.w.Write([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), <-ch)

	_, _ = m.Stop()
}

func TestManagerReset(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	m := newTestManager(t, dev, Config{ChunkInterval: 5 * time.Millisecond})
	_, err := m.Start(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)

	_, err = dev.last().w.Write([]byte("old"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.BufferedBytes() == 3 }, time.Second, time.Millisecond)

	m.Reset()
	assert.Zero(t, m.BufferedBytes())
	assert.True(t, m.Running())

	clip, err := m.Stop()
	require.NoError(t, err)
	assert.True(t, clip.Empty())
}
