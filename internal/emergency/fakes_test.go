package emergency

import (
	"context"
	"io"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/fanout"
	"Raksha/internal/livestream"
	"Raksha/internal/media"
	"Raksha/internal/ports"
	"Raksha/pkg/errors"
)

// trail records the order collaborators were called in.
type trail struct {
	mu    sync.Mutex
	steps []string
}

func (t *trail) add(s string) {
	t.mu.Lock()
	t.steps = append(t.steps, s)
	t.mu.Unlock()
}

func (t *trail) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type fakeStore struct {
	mu        sync.Mutex
	createErr error
	alerts    map[string]domain.Alert
	actions   []domain.Action
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: make(map[string]domain.Alert)}
}

func (s *fakeStore) CreateAlert(_ context.Context, a domain.Alert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.alerts[a.ID] = a
	return a.ID, nil
}

func (s *fakeStore) ResolveAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return errors.New(errors.KindInvalid, "not found")
	}
	a.IsResolved = true
	s.alerts[id] = a
	return nil
}

func (s *fakeStore) AttachClip(_ context.Context, id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.alerts[id]
	a.ClipKey = key
	s.alerts[id] = a
	return nil
}

func (s *fakeStore) RecordAction(_ context.Context, _ string, action domain.Action, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}

func (s *fakeStore) all() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	return out
}

func (s *fakeStore) recorded() []domain.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Action(nil), s.actions...)
}

type staticContacts []domain.Contact

func (c staticContacts) ActiveContacts(context.Context, string) ([]domain.Contact, error) {
	out := make([]domain.Contact, 0, len(c))
	for _, ct := range c {
		if ct.IsActive {
			out = append(out, ct)
		}
	}
	return out, nil
}

// slowLocator answers after delay, or never when delay is negative.
type slowLocator struct {
	delay time.Duration
	pos   domain.Position
}

func (l slowLocator) CurrentPosition(ctx context.Context) (domain.Position, error) {
	if l.delay < 0 {
		<-ctx.Done()
		return domain.Position{}, ctx.Err()
	}
	select {
	case <-time.After(l.delay):
		return l.pos, nil
	case <-ctx.Done():
		return domain.Position{}, ctx.Err()
	}
}

// gatedContacts blocks ActiveContacts until release is closed.
type gatedContacts struct {
	list    staticContacts
	entered chan struct{}
	release chan struct{}
}

func newGatedContacts(list staticContacts) *gatedContacts {
	return &gatedContacts{list: list, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedContacts) ActiveContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	close(g.entered)
	<-g.release
	return g.list.ActiveContacts(ctx, userID)
}

type fakeCapture struct {
	trail *trail
	clip  domain.Clip

	mu      sync.Mutex
	running bool
	starts  int
	stopErr error
}

func (c *fakeCapture) Start(context.Context, domain.Constraints) (media.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return media.Handle{}, media.ErrCaptureBusy
	}
	c.running = true
	c.starts++
	if c.trail != nil {
		c.trail.add("capture.start")
	}
	return media.Handle{StartedAt: time.Now(), ContentType: "video/webm"}, nil
}

func (c *fakeCapture) Stop() (domain.Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return domain.Clip{}, media.ErrNotCapturing
	}
	c.running = false
	if c.trail != nil {
		c.trail.add("capture.stop")
	}
	if c.stopErr != nil {
		return domain.Clip{}, c.stopErr
	}
	return c.clip, nil
}

func (c *fakeCapture) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

type fakeStream struct {
	trail *trail

	mu        sync.Mutex
	alertID   string
	onResolve livestream.ResolveFunc
	stops     int
}

func (s *fakeStream) Start(_ context.Context, alertID string, onResolve livestream.ResolveFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertID = alertID
	s.onResolve = onResolve
	if s.trail != nil {
		s.trail.add("stream.start")
	}
	return "https://raksha.test/watch/" + alertID, nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.trail != nil {
		s.trail.add("stream.stop")
	}
	return nil
}

func (s *fakeStream) ViewerCount() int { return 2 }

func (s *fakeStream) currentAlert() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertID
}

// remote simulates a guardian resolve arriving on the channel.
func (s *fakeStream) remote(alertID, by string) {
	s.mu.Lock()
	fn := s.onResolve
	s.mu.Unlock()
	fn(alertID, by)
}

// recordingNotifier wraps a real fanout and notes the contacts it got.
type recordingNotifier struct {
	inner *fanout.Fanout
	trail *trail

	mu       sync.Mutex
	contacts []domain.Contact
	msgs     []fanout.Message
}

func (n *recordingNotifier) Start(ctx context.Context, contacts []domain.Contact, msg fanout.Message) *fanout.Report {
	n.mu.Lock()
	n.contacts = contacts
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	if n.trail != nil {
		n.trail.add("fanout.start")
	}
	return n.inner.Start(ctx, contacts, msg)
}

func (n *recordingNotifier) calls() []fanout.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]fanout.Message(nil), n.msgs...)
}

type textRenderer struct{}

func (textRenderer) Render(c domain.Contact, ch domain.ChannelKind, m fanout.Message) (string, error) {
	return c.Name + " " + string(ch) + " " + m.Alert.Location.String(), nil
}

type countingSender struct {
	mu    sync.Mutex
	sent  []string
	delay time.Duration
}

func (s *countingSender) Send(_ context.Context, address, _ string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.sent = append(s.sent, address)
	s.mu.Unlock()
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeUploader struct {
	trail *trail
	err   error

	mu    sync.Mutex
	keys  []string
	sizes []int64
}

func (u *fakeUploader) Upload(_ context.Context, key string, r io.Reader, size int64, _ string) (string, error) {
	if u.trail != nil {
		u.trail.add("upload")
	}
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.sizes = append(u.sizes, size)
	u.mu.Unlock()
	return key, nil
}

type stateSink struct {
	ports.NopSink
	mu     sync.Mutex
	states []domain.State
	errs   []string
}

func (s *stateSink) StateChanged(st domain.State, _ string) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
}

func (s *stateSink) Error(component string, _ error) {
	s.mu.Lock()
	s.errs = append(s.errs, component)
	s.mu.Unlock()
}

func (s *stateSink) snapshot() ([]domain.State, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.State(nil), s.states...), append([]string(nil), s.errs...)
}

type countingObserver struct {
	mu       sync.Mutex
	accepted int
	folded   int
	degraded int
	uploads  map[bool]int
}

func (o *countingObserver) TriggerAccepted(string) { o.mu.Lock(); o.accepted++; o.mu.Unlock() }
func (o *countingObserver) TriggerFolded(string)   { o.mu.Lock(); o.folded++; o.mu.Unlock() }
func (o *countingObserver) Transition(string)      {}
func (o *countingObserver) LocationDegraded()      { o.mu.Lock(); o.degraded++; o.mu.Unlock() }
func (o *countingObserver) ClipUploaded(ok bool, _ int) {
	o.mu.Lock()
	if o.uploads == nil {
		o.uploads = make(map[bool]int)
	}
	o.uploads[ok]++
	o.mu.Unlock()
}

type recordingPublisher struct {
	mu       sync.Mutex
	resolved []string
}

func (p *recordingPublisher) AlertTriggered(context.Context, domain.Alert) error { return nil }

func (p *recordingPublisher) AlertResolved(_ context.Context, _ domain.Alert, by string) error {
	p.mu.Lock()
	p.resolved = append(p.resolved, by)
	p.mu.Unlock()
	return nil
}
