package notification

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeMailer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestMailNotificationSend(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	m := NewMailNotification(MailConfig{From: "alerts@raksha.example"}, mailer, func(to, _ string) string {
		return "Emergency alert for " + to
	})

	require.NoError(t, m.Send(context.Background(), "ravi@example.com", "Asha needs help"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"Emergency alert for ravi@example.com"}, mailer.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"alerts@raksha.example"}, mailer.sent[0].GetHeader("From"))

	var buf bytes.Buffer
	_, err := mailer.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Asha needs help")
}

func TestMailNotificationErrors(t *testing.T) {
	t.Parallel()

	m := NewMailNotification(MailConfig{From: "a@b"}, &fakeMailer{err: errors.New("535 auth failed")}, nil)
	err := m.Send(context.Background(), "x@y", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 auth failed")

	assert.Error(t, m.Send(context.Background(), "", "body"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "x@y", "body"), context.Canceled)
}
