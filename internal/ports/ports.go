// Package ports declares the collaborators the emergency core consumes.
package ports

import (
	"context"
	"io"

	"Raksha/internal/domain"
)

type AlertStore interface {
	CreateAlert(ctx context.Context, alert domain.Alert) (string, error)
	ResolveAlert(ctx context.Context, id string) error
	AttachClip(ctx context.Context, id, key string) error
	RecordAction(ctx context.Context, id string, action domain.Action, actor string) error
}

type ContactDirectory interface {
	ActiveContacts(ctx context.Context, userID string) ([]domain.Contact, error)
}

type Locator interface {
	CurrentPosition(ctx context.Context) (domain.Position, error)
}

// Sender dispatches one message on one channel. A nil error means the
// dispatch call succeeded, not that the message was delivered.
type Sender interface {
	Send(ctx context.Context, address, text string) error
}

type SenderFunc func(ctx context.Context, address, text string) error

func (f SenderFunc) Send(ctx context.Context, address, text string) error {
	return f(ctx, address, text)
}

// Channel is a duplex realtime connection keyed by alert id.
type Channel interface {
	Send(ctx context.Context, msg []byte) error
	SendBinary(ctx context.Context, data []byte) error
	Messages() <-chan []byte
	Close() error
}

type ClipUploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// EventSink receives core notifications. Implementations must not block.
type EventSink interface {
	StateChanged(state domain.State, alertID string)
	NotificationProgress(alertID string, attempt domain.Attempt)
	ViewerCount(alertID string, count int)
	Error(component string, err error)
}

// EventPublisher forwards alert lifecycle events to outside listeners.
type EventPublisher interface {
	AlertTriggered(ctx context.Context, alert domain.Alert) error
	AlertResolved(ctx context.Context, alert domain.Alert, by string) error
}

type NopSink struct{}

func (NopSink) StateChanged(domain.State, string)           {}
func (NopSink) NotificationProgress(string, domain.Attempt) {}
func (NopSink) ViewerCount(string, int)                     {}
func (NopSink) Error(string, error)                         {}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) StateChanged(state domain.State, alertID string) {
	for _, s := range m {
		s.StateChanged(state, alertID)
	}
}

func (m MultiSink) NotificationProgress(alertID string, attempt domain.Attempt) {
	for _, s := range m {
		s.NotificationProgress(alertID, attempt)
	}
}

func (m MultiSink) ViewerCount(alertID string, count int) {
	for _, s := range m {
		s.ViewerCount(alertID, count)
	}
}

func (m MultiSink) Error(component string, err error) {
	for _, s := range m {
		s.Error(component, err)
	}
}
