package listeners

import (
	"context"
	"sync"
	"testing"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/events"
	"Raksha/pkg/i18n"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type push struct {
	alias       []string
	title, body string
	extras      map[string]any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (f *fakePusher) PushToAlias(_ context.Context, alias []string, title, content string, extras map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{alias, title, content, extras})
	return f.err
}

func (f *fakePusher) all() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.pushes...)
}

type fakeMailer struct {
	mu  sync.Mutex
	to  []string
	sub []string
}

func (f *fakeMailer) SendMail(_ context.Context, to, subject, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.sub = append(f.sub, subject)
	return nil
}

type fakeContacts []domain.Contact

func (f fakeContacts) ActiveContacts(context.Context, string) ([]domain.Contact, error) {
	return f, nil
}

func newListener(t *testing.T, p *fakePusher, m *fakeMailer) *GuardianListener {
	t.Helper()
	tr, err := i18n.NewI18nSupport("en")
	require.NoError(t, err)
	contacts := fakeContacts{
		{ID: "c1", Name: "Ravi", Email: "ravi@example.com"},
		{ID: "c2", Name: "Meera", PhoneNumber: "+919800000003"},
	}
	return NewGuardianListener(GuardianConfig{UserName: "Asha", Lang: "en", Location: time.UTC, Aliases: []string{"guardian-1"}}, tr, p, m, contacts, "u1")
}

func alertEvent() events.AlertEvent {
	return events.AlertEvent{
		Alert: domain.Alert{
			ID:          "a1",
			TriggerType: domain.SourceVoice,
			Location:    domain.Location{Lat: 12.9716, Lng: 77.5946, Address: "MG Road"},
			CreatedAt:   time.Date(2026, 10, 16, 21, 4, 0, 0, time.UTC),
		},
		By: "guardian",
	}
}

func TestOnTriggeredPushesGuardians(t *testing.T) {
	t.Parallel()
	p := &fakePusher{err: assert.AnError}
	l := newListener(t, p, &fakeMailer{})

	require.NoError(t, l.OnTriggered(context.Background(), events.TopicAlertTriggered, alertEvent()))
	pushes := p.all()
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"guardian-1"}, pushes[0].alias)
	assert.Equal(t, "Asha triggered an emergency", pushes[0].title)
	assert.Contains(t, pushes[0].body, "voice")
	assert.Contains(t, pushes[0].body, "MG Road")
	assert.Equal(t, "a1", pushes[0].extras["alertId"])
	assert.Contains(t, pushes[0].extras["maps"], "12.971600")
}

func TestOnResolvedMailsContactsWithEmail(t *testing.T) {
	t.Parallel()
	p := &fakePusher{}
	m := &fakeMailer{}
	l := newListener(t, p, m)

	require.NoError(t, l.OnResolved(context.Background(), events.TopicAlertResolved, alertEvent()))
	assert.Equal(t, []string{"ravi@example.com"}, m.to)
	assert.Equal(t, []string{"Asha is safe"}, m.sub)
	pushes := p.all()
	require.Len(t, pushes, 1)
	assert.Contains(t, pushes[0].body, "resolved by guardian")
}

func TestListenersOverBus(t *testing.T) {
	t.Parallel()
	bus := events.NewBus(nil)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePusher{}
	require.NoError(t, InitGuardianListeners(ctx, bus, newListener(t, p, &fakeMailer{})))
	require.NoError(t, bus.AlertTriggered(ctx, alertEvent().Alert))
	require.Eventually(t, func() bool { return len(p.all()) == 1 }, time.Second, 10*time.Millisecond)
}
