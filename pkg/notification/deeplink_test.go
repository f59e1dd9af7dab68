package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinks(t *testing.T) {
	t.Parallel()

	link, err := SMSLink("+91 98000-00001", "help me & hurry")
	require.NoError(t, err)
	assert.Equal(t, "sms:+919800000001?body=help+me+%26+hurry", link)

	link, err = WhatsAppLink("+91 98000 00001", "help")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/919800000001?text=help", link)

	_, err = SMSLink("n/a", "x")
	assert.Error(t, err)
}

func TestDeepLinkSenderLaunches(t *testing.T) {
	t.Parallel()

	var opened []string
	launcher := LauncherFunc(func(_ context.Context, link string) error {
		opened = append(opened, link)
		return nil
	})
	s := NewDeepLinkSender(LinkWhatsApp, launcher)
	require.NoError(t, s.Send(context.Background(), "+919800000001", "hi"))
	assert.Equal(t, []string{"https://wa.me/919800000001?text=hi"}, opened)
	assert.Equal(t, "WHATSAPP deep link", s.String())
}

func TestDeepLinkSenderLaunchFailure(t *testing.T) {
	t.Parallel()

	s := NewDeepLinkSender(LinkSMS, LauncherFunc(func(context.Context, string) error {
		return errors.New("no handler for sms:")
	}))
	err := s.Send(context.Background(), "+919800000001", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch sms link")

	assert.Error(t, NewDeepLinkSender("pigeon", s.launcher).Send(context.Background(), "1", "x"))
}

func TestBrowserLauncherHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, BrowserLauncher{}.Open(ctx, "sms:+1"), context.Canceled)
}
