package fanout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/ports"
	"Raksha/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainRenderer struct{}

func (plainRenderer) Render(c domain.Contact, ch domain.ChannelKind, m Message) (string, error) {
	return fmt.Sprintf("%s via %s for %s", c.Name, ch, m.Alert.ID), nil
}

type call struct {
	address string
	text    string
	at      time.Time
}

type recordingSender struct {
	mu    sync.Mutex
	calls []call
	err   error
	block chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, address, text string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{address: address, text: text, at: time.Now()})
	return s.err
}

func (s *recordingSender) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

type progressSink struct {
	ports.NopSink
	mu     sync.Mutex
	events []domain.Attempt
}

func (p *progressSink) NotificationProgress(_ string, a domain.Attempt) {
	p.mu.Lock()
	p.events = append(p.events, a)
	p.mu.Unlock()
}

func (p *progressSink) snapshot() []domain.Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Attempt(nil), p.events...)
}

func contacts(n int) []domain.Contact {
	out := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Contact{
			ID:             fmt.Sprintf("c%d", i),
			Name:           fmt.Sprintf("Contact %d", i),
			PhoneNumber:    fmt.Sprintf("+9198000000%02d", i),
			WhatsappNumber: fmt.Sprintf("+9198000000%02d", i),
			Email:          fmt.Sprintf("c%d@example.com", i),
			IsActive:       true,
		})
	}
	return out
}

func allSenders(wa, sms, mail ports.Sender) []Option {
	return []Option{
		WithSender(domain.ChannelWhatsApp, wa),
		WithSender(domain.ChannelSMS, sms),
		WithSender(domain.ChannelEmail, mail),
	}
}

func TestSendProducesOutcomePerContactChannel(t *testing.T) {
	t.Parallel()

	wa, sms, mail := &recordingSender{}, &recordingSender{}, &recordingSender{}
	sink := &progressSink{}
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, append(allSenders(wa, sms, mail), WithSink(sink))...)

	cs := contacts(4)
	cs[1].WhatsappNumber = ""
	cs[2].Email = ""
	rep := f.Send(context.Background(), cs, Message{Alert: domain.Alert{ID: "a1"}})

	attempts := rep.Attempts()
	require.Len(t, attempts, 10)
	for _, a := range attempts {
		assert.Equal(t, domain.ResultSent, a.Result)
	}
	assert.Equal(t, 10, rep.Sent())
	assert.Zero(t, rep.Pending())

	assert.Equal(t, []domain.ChannelKind{domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelEmail},
		[]domain.ChannelKind{attempts[0].Channel, attempts[1].Channel, attempts[2].Channel})
	assert.Equal(t, domain.ChannelSMS, attempts[3].Channel, "contact without whatsapp starts at sms")

	assert.Len(t, wa.snapshot(), 3)
	assert.Len(t, sms.snapshot(), 4)
	assert.Len(t, mail.snapshot(), 3)
	assert.Equal(t, "c0@example.com", mail.snapshot()[0].address)
	assert.Equal(t, "Contact 0 via email for a1", mail.snapshot()[0].text)

	// 10 pending registrations then 10 settlements
	events := sink.snapshot()
	require.Len(t, events, 20)
	for _, e := range events[:10] {
		assert.Equal(t, domain.ResultPending, e.Result)
	}
	select {
	case <-rep.Done():
	default:
		t.Fatal("report not done")
	}
}

func TestAlwaysFailingSenderDoesNotHaltIteration(t *testing.T) {
	t.Parallel()

	broken := &recordingSender{err: errors.New(errors.KindTransient, "gateway down")}
	sms := &recordingSender{}
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, allSenders(broken, sms, broken)...)

	rep := f.Send(context.Background(), contacts(3), Message{Alert: domain.Alert{ID: "a2"}})
	require.Len(t, rep.Attempts(), 9)
	assert.Equal(t, 6, rep.Failed())
	assert.Equal(t, 3, rep.Sent())
	assert.True(t, rep.ContactReached("c2"))

	allBroken := New(plainRenderer{}, Config{Stagger: time.Millisecond}, allSenders(broken, broken, broken)...)
	rep = allBroken.Send(context.Background(), contacts(3), Message{Alert: domain.Alert{ID: "a3"}})
	assert.Equal(t, 9, rep.Failed())
	for _, a := range rep.Attempts() {
		assert.Contains(t, a.Err, "gateway down")
	}
}

func TestPanickingSenderIsAFailedAttempt(t *testing.T) {
	t.Parallel()

	panicky := ports.SenderFunc(func(context.Context, string, string) error { panic("nil deref") })
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, WithSender(domain.ChannelSMS, panicky))

	rep := f.Send(context.Background(), []domain.Contact{{ID: "c", PhoneNumber: "1", IsActive: true}, {ID: "d", PhoneNumber: "2", IsActive: true}}, Message{})
	assert.Equal(t, 2, rep.Failed())
}

func TestInactiveContactsAndMissingSendersSkipped(t *testing.T) {
	t.Parallel()

	sms := &recordingSender{}
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, WithSender(domain.ChannelSMS, sms))
	assert.Equal(t, []domain.ChannelKind{domain.ChannelSMS}, f.Channels())

	cs := contacts(2)
	cs[1].IsActive = false
	rep := f.Send(context.Background(), cs, Message{})
	require.Len(t, rep.Attempts(), 1)
	assert.Equal(t, "c0", rep.Attempts()[0].ContactID)
}

func TestContactsArePacedApart(t *testing.T) {
	t.Parallel()

	sms := &recordingSender{}
	f := New(plainRenderer{}, Config{Stagger: 40 * time.Millisecond}, WithSender(domain.ChannelSMS, sms))

	f.Send(context.Background(), contacts(3), Message{})
	calls := sms.snapshot()
	require.Len(t, calls, 3)
	assert.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), 30*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].at.Sub(calls[1].at), 30*time.Millisecond)
}

func TestCancelMarksUnstartedAttemptsFailed(t *testing.T) {
	t.Parallel()

	sms := &recordingSender{}
	f := New(plainRenderer{}, Config{Stagger: time.Hour}, WithSender(domain.ChannelSMS, sms))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() { done <- f.Send(ctx, contacts(4), Message{}) }()

	require.Eventually(t, func() bool { return len(sms.snapshot()) == 1 }, time.Second, time.Millisecond)
	cancel()

	rep := <-done
	attempts := rep.Attempts()
	require.Len(t, attempts, 4)
	assert.Equal(t, domain.ResultSent, attempts[0].Result)
	for _, a := range attempts[1:] {
		assert.Equal(t, domain.ResultFailed, a.Result)
		assert.Equal(t, ErrCancelled.Error(), a.Err)
	}
	assert.Len(t, sms.snapshot(), 1)
}

func TestInFlightDispatchSurvivesCancel(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	var gotCtxErr error
	slow := ports.SenderFunc(func(ctx context.Context, _, _ string) error {
		<-gate
		gotCtxErr = ctx.Err()
		return nil
	})
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, WithSender(domain.ChannelSMS, slow))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() { done <- f.Send(ctx, contacts(1), Message{}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	close(gate)

	rep := <-done
	assert.Equal(t, 1, rep.Sent())
	assert.NoError(t, gotCtxErr)
}

func TestStartReturnsPendingReportImmediately(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sms := &recordingSender{block: gate}
	f := New(plainRenderer{}, Config{Stagger: time.Millisecond}, WithSender(domain.ChannelSMS, sms))

	rep := f.Start(context.Background(), contacts(2), Message{Alert: domain.Alert{ID: "a1"}})
	assert.Equal(t, "a1", rep.AlertID)
	assert.Equal(t, 2, rep.Pending())

	close(gate)
	select {
	case <-rep.Done():
	case <-time.After(time.Second):
		t.Fatal("pass did not finish")
	}
	assert.Equal(t, 2, rep.Sent())
}
