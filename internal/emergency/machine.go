// Package emergency runs the alert lifecycle: Idle, Triggering, Active,
// Resolving and back to Idle.
//
// The state field under mu is the only source of truth. Every transition
// checks it before acting; blocking work (geolocation, device open, relay
// connect, upload) happens outside the lock.
package emergency

import (
	"bytes"
	"context"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/fanout"
	"Raksha/internal/livestream"
	"Raksha/internal/media"
	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Capture is the exclusive owner of camera and microphone.
type Capture interface {
	Start(ctx context.Context, c domain.Constraints) (media.Handle, error)
	Stop() (domain.Clip, error)
}

type Livestream interface {
	Start(ctx context.Context, alertID string, onResolve livestream.ResolveFunc) (string, error)
	Stop() error
	ViewerCount() int
}

// Notifier starts one fan-out pass and returns its live report.
type Notifier interface {
	Start(ctx context.Context, contacts []domain.Contact, msg fanout.Message) *fanout.Report
}

type Observer interface {
	TriggerAccepted(source string)
	TriggerFolded(source string)
	Transition(state string)
	LocationDegraded()
	ClipUploaded(ok bool, bytes int)
}

type Config struct {
	UserID   string
	UserName string
	Lang     string
	// GeoTimeout bounds the position lookup before the placeholder is used.
	GeoTimeout    time.Duration
	UploadTimeout time.Duration
	Constraints   domain.Constraints
}

// Status is a point-in-time copy of the machine.
type Status struct {
	State      domain.State     `json:"state"`
	Alert      *domain.Alert    `json:"alert,omitempty"`
	Last       *domain.Alert    `json:"last,omitempty"`
	Attempts   []domain.Attempt `json:"attempts"`
	ViewerLink string           `json:"viewerLink,omitempty"`
	Viewers    int              `json:"viewers"`
}

type Machine struct {
	cfg       Config
	store     ports.AlertStore
	contacts  ports.ContactDirectory
	locator   ports.Locator
	capture   Capture
	stream    Livestream
	notifier  Notifier
	uploader  ports.ClipUploader
	publisher ports.EventPublisher
	sink      ports.EventSink
	observer  Observer
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   domain.State
	alert   *domain.Alert
	last    *domain.Alert
	fanRep  *fanout.Report
	link    string
	stopFan context.CancelFunc
	// ready is closed when the Triggering flow settles.
	ready  chan struct{}
	closed bool
}

type Option func(*Machine)

func WithLivestream(s Livestream) Option           { return func(m *Machine) { m.stream = s } }
func WithUploader(u ports.ClipUploader) Option     { return func(m *Machine) { m.uploader = u } }
func WithPublisher(p ports.EventPublisher) Option  { return func(m *Machine) { m.publisher = p } }
func WithSink(s ports.EventSink) Option            { return func(m *Machine) { m.sink = s } }
func WithObserver(o Observer) Option               { return func(m *Machine) { m.observer = o } }
func WithLogger(lg *zap.Logger) Option             { return func(m *Machine) { m.log = lg } }
func WithClock(now func() time.Time) Option        { return func(m *Machine) { m.now = now } }
func WithContacts(c ports.ContactDirectory) Option { return func(m *Machine) { m.contacts = c } }
func WithLocator(l ports.Locator) Option           { return func(m *Machine) { m.locator = l } }
func WithCapture(c Capture) Option                 { return func(m *Machine) { m.capture = c } }
func WithNotifier(n Notifier) Option               { return func(m *Machine) { m.notifier = n } }

func New(cfg Config, store ports.AlertStore, opts ...Option) *Machine {
	if cfg.GeoTimeout <= 0 {
		cfg.GeoTimeout = 10 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	if cfg.Constraints == (domain.Constraints{}) {
		cfg.Constraints = domain.DefaultConstraints()
	}
	m := &Machine{
		cfg:   cfg,
		store: store,
		sink:  ports.NopSink{},
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Trigger starts an emergency. From any state but Idle it is a no-op that
// returns the current alert with accepted=false. The call returns once the
// machine is Active; fan-out continues in the background.
func (m *Machine) Trigger(ctx context.Context, t domain.Trigger) (domain.Alert, bool, error) {
	if t.Source == "" {
		return domain.Alert{}, false, errors.New(errors.KindInvalid, "trigger source required")
	}
	if t.At.IsZero() {
		t.At = m.now()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.Alert{}, false, errors.New(errors.KindUnavailable, "emergency core is shut down")
	}
	if m.state != domain.StateIdle {
		cur := *m.alert
		m.mu.Unlock()
		m.fold(ctx, cur, t)
		return cur, false, nil
	}
	m.state = domain.StateTriggering
	alert := &domain.Alert{
		ID:          uuid.NewString(),
		UserID:      m.cfg.UserID,
		TriggerType: t.Source,
		Evidence:    t.Evidence,
		CreatedAt:   t.At,
	}
	m.alert = alert
	ready := make(chan struct{})
	m.ready = ready
	m.mu.Unlock()
	defer close(ready)

	// an emergency must not die with the request that raised it
	flow := context.WithoutCancel(ctx)
	m.changed(domain.StateTriggering, alert.ID)
	if m.observer != nil {
		m.observer.TriggerAccepted(string(t.Source))
	}
	m.log.Info("emergency triggered", zap.String("alert", alert.ID), zap.String("source", string(t.Source)))

	loc := m.locate(flow)
	id, local := m.persist(flow, *alert, loc)

	if m.capture != nil && !m.isClosed() {
		if _, err := m.capture.Start(flow, m.cfg.Constraints); err != nil {
			m.report("capture", errors.Wrap(err, "start capture"))
		}
	}
	var link string
	if m.stream != nil && !m.isClosed() {
		l, err := m.stream.Start(flow, id, m.remoteResolve)
		if err != nil {
			m.report("livestream", errors.Wrap(err, "start livestream"))
		}
		link = l
	}
	contacts := m.snapshotContacts(flow)

	fanCtx, stopFan := context.WithCancel(flow)
	m.mu.Lock()
	alert.ID = id
	alert.Location = loc
	alert.Local = local
	m.link = link
	m.stopFan = stopFan
	m.state = domain.StateActive
	m.ready = nil
	snapshot := *alert
	var rep *fanout.Report
	if m.notifier != nil && !m.closed {
		rep = m.notifier.Start(fanCtx, contacts, fanout.Message{
			Alert:      snapshot,
			UserName:   m.cfg.UserName,
			StreamLink: link,
			Lang:       m.cfg.Lang,
		})
		m.fanRep = rep
	}
	m.mu.Unlock()

	m.changed(domain.StateActive, id)
	if rep != nil {
		go m.awaitFanout(id, rep, stopFan)
	}
	if m.publisher != nil {
		if err := m.publisher.AlertTriggered(flow, snapshot); err != nil {
			m.report("events", err)
		}
	}
	return snapshot, true, nil
}

// Resolve ends the current emergency. Outside Active it does nothing and
// reports false.
func (m *Machine) Resolve(ctx context.Context, by string) (bool, error) {
	return m.resolve(ctx, "", by)
}

// ResolveAlert resolves only if alertID is the current alert.
func (m *Machine) ResolveAlert(ctx context.Context, alertID, by string) (bool, error) {
	if alertID == "" {
		return false, errors.New(errors.KindInvalid, "alert id required")
	}
	return m.resolve(ctx, alertID, by)
}

func (m *Machine) resolve(ctx context.Context, alertID, by string) (bool, error) {
	if by == "" {
		by = "user"
	}
	m.mu.Lock()
	if m.state != domain.StateActive || (alertID != "" && m.alert.ID != alertID) {
		st := m.state
		m.mu.Unlock()
		m.log.Debug("resolve ignored", zap.Stringer("state", st), zap.String("alert", alertID))
		return false, nil
	}
	m.state = domain.StateResolving
	alert := *m.alert
	stopFan := m.stopFan
	m.mu.Unlock()

	flow := context.WithoutCancel(ctx)
	m.changed(domain.StateResolving, alert.ID)
	// remaining contacts are not paced out once the user is safe
	if stopFan != nil {
		stopFan()
	}

	if m.capture != nil {
		clip, err := m.capture.Stop()
		switch {
		case errors.Is(err, media.ErrNotCapturing):
		case err != nil:
			m.report("capture", err)
		}
		if key := m.upload(flow, alert, clip); key != "" {
			alert.ClipKey = key
		}
	}
	if m.stream != nil {
		if err := m.stream.Stop(); err != nil {
			m.report("livestream", errors.Wrap(err, "stop livestream"))
		}
	}

	at := m.now()
	alert.IsResolved = true
	alert.ResolvedAt = &at
	if m.store != nil && !alert.Local {
		if err := m.store.ResolveAlert(flow, alert.ID); err != nil {
			m.report("store", errors.Wrap(err, "mark alert resolved"))
		}
	}
	m.audit(flow, alert, domain.ActionResolved, by)

	m.mu.Lock()
	m.state = domain.StateIdle
	m.alert = nil
	m.last = &alert
	m.link = ""
	m.stopFan = nil
	m.mu.Unlock()

	m.changed(domain.StateIdle, alert.ID)
	m.log.Info("emergency resolved", zap.String("alert", alert.ID), zap.String("by", by))
	if m.publisher != nil {
		if err := m.publisher.AlertResolved(flow, alert, by); err != nil {
			m.report("events", err)
		}
	}
	return true, nil
}

// HandleDetection adapts keyword detections to voice triggers.
func (m *Machine) HandleDetection(ctx context.Context, keyword, text string, at time.Time) {
	evidence := text
	if evidence == "" {
		evidence = keyword
	}
	if _, _, err := m.Trigger(ctx, domain.Trigger{Source: domain.SourceVoice, At: at, Evidence: evidence}); err != nil {
		m.report("keyword", err)
	}
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	st := Status{State: m.state, ViewerLink: m.link}
	if m.alert != nil {
		a := *m.alert
		st.Alert = &a
	}
	if m.last != nil {
		a := *m.last
		st.Last = &a
	}
	rep := m.fanRep
	m.mu.Unlock()

	if rep != nil {
		st.Attempts = rep.Attempts()
	}
	if st.State == domain.StateActive && m.stream != nil {
		st.Viewers = m.stream.ViewerCount()
	}
	return st
}

func (m *Machine) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Machine) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Report returns the fan-out report of the latest alert, if any.
func (m *Machine) Report() *fanout.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fanRep
}

// Close releases devices without resolving. The alert stays open in the
// store so guardians still see it. A trigger still in flight is waited for
// and starts no devices; later triggers are refused.
func (m *Machine) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	ready := m.ready
	m.mu.Unlock()
	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			m.log.Warn("close gave up waiting for trigger", zap.Error(ctx.Err()))
			return
		}
	}

	m.mu.Lock()
	active := m.state == domain.StateActive
	var alert domain.Alert
	if active {
		alert = *m.alert
		m.state = domain.StateResolving
	}
	stopFan := m.stopFan
	m.mu.Unlock()
	if !active {
		return
	}
	if stopFan != nil {
		stopFan()
	}
	if m.capture != nil {
		if clip, err := m.capture.Stop(); err == nil {
			m.upload(context.WithoutCancel(ctx), alert, clip)
		}
	}
	if m.stream != nil {
		_ = m.stream.Stop()
	}
	m.mu.Lock()
	m.state = domain.StateIdle
	m.last = &alert
	m.alert = nil
	m.link = ""
	m.stopFan = nil
	m.mu.Unlock()
	m.changed(domain.StateIdle, alert.ID)
	m.log.Warn("shut down with alert open", zap.String("alert", alert.ID))
}

func (m *Machine) fold(ctx context.Context, cur domain.Alert, t domain.Trigger) {
	if m.observer != nil {
		m.observer.TriggerFolded(string(t.Source))
	}
	m.log.Info("trigger folded into current alert", zap.String("alert", cur.ID), zap.String("source", string(t.Source)))
	if !cur.Local {
		m.audit(context.WithoutCancel(ctx), cur, domain.ActionFolded, string(t.Source))
	}
}

func (m *Machine) locate(ctx context.Context) domain.Location {
	if m.locator == nil {
		m.degraded(errors.New(errors.KindUnavailable, "no locator configured"))
		return domain.UnavailableLocation()
	}
	gctx, cancel := context.WithTimeout(ctx, m.cfg.GeoTimeout)
	defer cancel()
	pos, err := m.locator.CurrentPosition(gctx)
	if err != nil {
		m.degraded(err)
		return domain.UnavailableLocation()
	}
	return pos.Location()
}

func (m *Machine) degraded(err error) {
	if m.observer != nil {
		m.observer.LocationDegraded()
	}
	m.report("geo", errors.Mark(err, errors.KindUnavailable, "location unavailable"))
}

// persist stores the alert and reports whether the id is local only.
func (m *Machine) persist(ctx context.Context, alert domain.Alert, loc domain.Location) (string, bool) {
	alert.Location = loc
	if m.store == nil {
		return alert.ID, true
	}
	id, err := m.store.CreateAlert(ctx, alert)
	if err != nil {
		m.report("store", errors.Wrap(err, "persist alert"))
		return alert.ID, true
	}
	if id == "" {
		id = alert.ID
	}
	alert.ID = id
	m.audit(ctx, alert, domain.ActionTriggered, string(alert.TriggerType))
	return id, false
}

func (m *Machine) snapshotContacts(ctx context.Context) []domain.Contact {
	if m.contacts == nil {
		return nil
	}
	list, err := m.contacts.ActiveContacts(ctx, m.cfg.UserID)
	if err != nil {
		m.report("contacts", errors.Wrap(err, "load contacts"))
		return nil
	}
	return list
}

// upload stores a non-empty clip once. Failures are recorded, never retried.
func (m *Machine) upload(ctx context.Context, alert domain.Alert, clip domain.Clip) string {
	if clip.Empty() || m.uploader == nil {
		return ""
	}
	uctx, cancel := context.WithTimeout(ctx, m.cfg.UploadTimeout)
	defer cancel()

	started := clip.StartedAt
	if started.IsZero() {
		started = alert.CreatedAt
	}
	key := storage.ClipKey(alert.ID, started, clip.ContentType)
	stored, err := m.uploader.Upload(uctx, key, bytes.NewReader(clip.Data), int64(len(clip.Data)), clip.ContentType)
	if m.observer != nil {
		m.observer.ClipUploaded(err == nil, len(clip.Data))
	}
	if err != nil {
		m.report("upload", err)
		m.audit(ctx, alert, domain.ActionUploadFailed, "system")
		return ""
	}
	m.log.Info("clip uploaded", zap.String("alert", alert.ID), zap.String("key", stored), zap.Int("bytes", len(clip.Data)))
	if m.store != nil && !alert.Local {
		if err := m.store.AttachClip(ctx, alert.ID, stored); err != nil {
			m.report("store", errors.Wrap(err, "attach clip"))
		}
	}
	m.audit(ctx, alert, domain.ActionClipUploaded, "system")
	return stored
}

func (m *Machine) audit(ctx context.Context, alert domain.Alert, action domain.Action, actor string) {
	if m.store == nil || alert.Local {
		return
	}
	if err := m.store.RecordAction(ctx, alert.ID, action, actor); err != nil {
		m.log.Warn("audit row not written", zap.String("alert", alert.ID), zap.String("action", string(action)), zap.Error(err))
	}
}

// remoteResolve is the livestream callback and runs off the channel's read
// loop. A resolve that arrives while the alert is still Triggering is
// applied once it reaches Active.
func (m *Machine) remoteResolve(alertID, by string) {
	if by == "" {
		by = "guardian"
	}
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if ready != nil {
		<-ready
	}
	if _, err := m.ResolveAlert(context.Background(), alertID, by); err != nil {
		m.report("livestream", err)
	}
}

func (m *Machine) awaitFanout(alertID string, rep *fanout.Report, stop context.CancelFunc) {
	<-rep.Done()
	stop()
	m.mu.Lock()
	current := m.alert != nil && m.alert.ID == alertID
	m.mu.Unlock()
	fields := []zap.Field{
		zap.String("alert", alertID),
		zap.Int("sent", rep.Sent()),
		zap.Int("failed", rep.Failed()),
		zap.Duration("took", rep.Duration()),
	}
	if !current {
		m.log.Info("fan-out settled after alert closed", fields...)
		return
	}
	m.log.Info("fan-out settled", fields...)
}

func (m *Machine) changed(st domain.State, alertID string) {
	m.sink.StateChanged(st, alertID)
	if m.observer != nil {
		m.observer.Transition(st.String())
	}
}

func (m *Machine) report(component string, err error) {
	m.log.Warn("emergency component failed", zap.String("component", component), zap.Error(err))
	m.sink.Error(component, err)
}
