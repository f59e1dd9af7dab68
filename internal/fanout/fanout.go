// Package fanout dispatches one alert to every active contact on every
// channel the contact can be reached on.
//
// Outcomes are optimistic: an attempt is "sent" when the channel's dispatch
// call returned without error. Deep-link channels give no delivery receipt,
// so a sent attempt is not proof the contact saw the message. There is no
// retry beyond the single paced pass.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/ports"
	"Raksha/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrCancelled = errors.New(errors.KindCancelled, "fan-out cancelled before dispatch")

// Message is what every contact is told about one alert.
type Message struct {
	Alert      domain.Alert
	UserName   string
	StreamLink string
	Lang       string
}

// Renderer turns a message into the text for one contact and channel.
type Renderer interface {
	Render(c domain.Contact, ch domain.ChannelKind, m Message) (string, error)
}

type AttemptObserver interface {
	ObserveAttempt(channel, result string)
}

type Config struct {
	// Stagger paces contacts apart.
	Stagger     time.Duration
	SendTimeout time.Duration
}

type Fanout struct {
	senders  map[domain.ChannelKind]ports.Sender
	renderer Renderer
	cfg      Config
	sink     ports.EventSink
	observer AttemptObserver
	log      *zap.Logger
}

type Option func(*Fanout)

func WithSink(s ports.EventSink) Option     { return func(f *Fanout) { f.sink = s } }
func WithObserver(o AttemptObserver) Option { return func(f *Fanout) { f.observer = o } }
func WithLogger(lg *zap.Logger) Option      { return func(f *Fanout) { f.log = lg } }
func WithSender(ch domain.ChannelKind, s ports.Sender) Option {
	return func(f *Fanout) { f.senders[ch] = s }
}

func New(renderer Renderer, cfg Config, opts ...Option) *Fanout {
	if cfg.Stagger == 0 {
		cfg.Stagger = 1500 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	f := &Fanout{
		senders:  make(map[domain.ChannelKind]ports.Sender),
		renderer: renderer,
		cfg:      cfg,
		sink:     ports.NopSink{},
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Channels lists the channels with a configured sender, in priority order.
func (f *Fanout) Channels() []domain.ChannelKind {
	var out []domain.ChannelKind
	for _, ch := range []domain.ChannelKind{domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelEmail} {
		if _, ok := f.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Send makes one paced pass over contacts and returns once every attempt
// has settled. Every attempt is registered as pending before the first
// dispatch and ends as sent or failed. Cancelling ctx stops pacing: attempts
// not yet started fail with ErrCancelled while a contact already being
// dispatched runs to completion.
func (f *Fanout) Send(ctx context.Context, contacts []domain.Contact, msg Message) *Report {
	rep, plans := f.prepare(contacts, msg)
	f.run(ctx, rep, plans, msg)
	return rep
}

// Start is Send without the wait. The pending attempts are already on the
// returned report; Done closes when the pass ends.
func (f *Fanout) Start(ctx context.Context, contacts []domain.Contact, msg Message) *Report {
	rep, plans := f.prepare(contacts, msg)
	go f.run(ctx, rep, plans, msg)
	return rep
}

type plan struct {
	contact domain.Contact
	idx     []int
}

func (f *Fanout) prepare(contacts []domain.Contact, msg Message) (*Report, []plan) {
	rep := newReport(msg.Alert.ID)
	var plans []plan
	for _, c := range contacts {
		if !c.IsActive {
			continue
		}
		p := plan{contact: c}
		for _, ch := range c.Channels() {
			if _, ok := f.senders[ch]; !ok {
				f.log.Debug("no sender for channel", zap.String("channel", string(ch)), zap.String("contact", c.ID))
				continue
			}
			p.idx = append(p.idx, rep.add(domain.Attempt{
				ContactID: c.ID,
				Contact:   c.Name,
				Channel:   ch,
				Result:    domain.ResultPending,
				At:        time.Now(),
			}))
		}
		if len(p.idx) > 0 {
			plans = append(plans, p)
		}
	}
	for _, a := range rep.Attempts() {
		f.sink.NotificationProgress(rep.AlertID, a)
	}
	return rep, plans
}

func (f *Fanout) run(ctx context.Context, rep *Report, plans []plan, msg Message) {
	limiter := rate.NewLimiter(rate.Every(f.cfg.Stagger), 1)
	for i, p := range plans {
		if err := limiter.Wait(ctx); err != nil {
			for _, rest := range plans[i:] {
				for _, idx := range rest.idx {
					f.settle(rep, idx, ErrCancelled)
				}
			}
			f.log.Info("fan-out cancelled", zap.String("alert", rep.AlertID), zap.Int("contactsSkipped", len(plans)-i))
			break
		}
		for _, idx := range p.idx {
			a := rep.get(idx)
			f.settle(rep, idx, f.dispatch(ctx, p.contact, a.Channel, msg))
		}
	}
	rep.finish()
	f.log.Info("fan-out finished",
		zap.String("alert", rep.AlertID),
		zap.Int("sent", rep.Sent()),
		zap.Int("failed", rep.Failed()))
}

func (f *Fanout) dispatch(ctx context.Context, c domain.Contact, ch domain.ChannelKind, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	text, err := f.renderer.Render(c, ch, msg)
	if err != nil {
		return errors.Mark(err, errors.KindInvalid, "render message")
	}
	// A dispatch that has begun is allowed to finish after the alert resolves.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.SendTimeout)
	defer cancel()
	return f.senders[ch].Send(sendCtx, c.Address(ch), text)
}

func (f *Fanout) settle(rep *Report, idx int, err error) {
	a := rep.settle(idx, err)
	if err != nil {
		f.log.Warn("notification attempt failed",
			zap.String("alert", rep.AlertID),
			zap.String("contact", a.ContactID),
			zap.String("channel", string(a.Channel)),
			zap.Error(err))
	}
	if f.observer != nil {
		f.observer.ObserveAttempt(string(a.Channel), string(a.Result))
	}
	f.sink.NotificationProgress(rep.AlertID, a)
}

// Report collects the outcome of every attempt of one pass. It is safe to
// read while the pass is running.
type Report struct {
	AlertID string

	mu       sync.Mutex
	attempts []domain.Attempt
	started  time.Time
	finished time.Time
	done     chan struct{}
}

func newReport(alertID string) *Report {
	return &Report{AlertID: alertID, started: time.Now(), done: make(chan struct{})}
}

func (r *Report) add(a domain.Attempt) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return len(r.attempts) - 1
}

func (r *Report) get(idx int) domain.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[idx]
}

func (r *Report) settle(idx int, err error) domain.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &r.attempts[idx]
	a.At = time.Now()
	if err != nil {
		a.Result = domain.ResultFailed
		a.Err = err.Error()
	} else {
		a.Result = domain.ResultSent
	}
	return *a
}

func (r *Report) finish() {
	r.mu.Lock()
	r.finished = time.Now()
	r.mu.Unlock()
	close(r.done)
}

// Done is closed when every attempt has settled.
func (r *Report) Done() <-chan struct{} { return r.done }

func (r *Report) Attempts() []domain.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Attempt(nil), r.attempts...)
}

func (r *Report) count(res domain.AttemptResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.Result == res {
			n++
		}
	}
	return n
}

func (r *Report) Sent() int    { return r.count(domain.ResultSent) }
func (r *Report) Failed() int  { return r.count(domain.ResultFailed) }
func (r *Report) Pending() int { return r.count(domain.ResultPending) }

// ContactReached reports whether at least one channel to the contact was sent.
func (r *Report) ContactReached(contactID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.ContactID == contactID && a.Result == domain.ResultSent {
			return true
		}
	}
	return false
}

func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.IsZero() {
		return time.Since(r.started)
	}
	return r.finished.Sub(r.started)
}
