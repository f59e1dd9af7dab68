package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/browser"
)

// Launcher hands a URL to the operating system.
type Launcher interface {
	Open(ctx context.Context, link string) error
}

type LauncherFunc func(ctx context.Context, link string) error

func (f LauncherFunc) Open(ctx context.Context, link string) error { return f(ctx, link) }

// BrowserLauncher opens links with the desktop's registered handler.
type BrowserLauncher struct{}

func (BrowserLauncher) Open(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return browser.OpenURL(link)
}

type LinkKind string

const (
	LinkSMS      LinkKind = "sms"
	LinkWhatsApp LinkKind = "whatsapp"
)

// SMSLink builds an sms: URI with a prefilled body.
func SMSLink(number, text string) (string, error) {
	n := E164(number)
	if n == "" {
		return "", fmt.Errorf("invalid phone number %q", number)
	}
	return "sms:" + n + "?body=" + url.QueryEscape(text), nil
}

// WhatsAppLink builds a wa.me click-to-chat link.
func WhatsAppLink(number, text string) (string, error) {
	n := Digits(number)
	if n == "" {
		return "", fmt.Errorf("invalid whatsapp number %q", number)
	}
	return "https://wa.me/" + n + "?text=" + url.QueryEscape(text), nil
}

// DeepLinkSender dispatches by launching a prefilled message link. The
// launch returning is all it can observe.
type DeepLinkSender struct {
	kind     LinkKind
	launcher Launcher
}

func NewDeepLinkSender(kind LinkKind, launcher Launcher) *DeepLinkSender {
	if launcher == nil {
		launcher = BrowserLauncher{}
	}
	return &DeepLinkSender{kind: kind, launcher: launcher}
}

func (s *DeepLinkSender) Send(ctx context.Context, address, text string) error {
	var (
		link string
		err  error
	)
	switch s.kind {
	case LinkSMS:
		link, err = SMSLink(address, text)
	case LinkWhatsApp:
		link, err = WhatsAppLink(address, text)
	default:
		err = fmt.Errorf("unknown deep link kind %q", s.kind)
	}
	if err != nil {
		return err
	}
	if err := s.launcher.Open(ctx, link); err != nil {
		return fmt.Errorf("launch %s link: %w", s.kind, err)
	}
	return nil
}

func (s *DeepLinkSender) String() string {
	return strings.ToUpper(string(s.kind)) + " deep link"
}
