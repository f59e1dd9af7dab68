// Package domain holds the value types shared by the emergency core and its
// collaborators.
package domain

import (
	"fmt"
	"strings"
	"time"
)

type TriggerSource string

const (
	SourceManual   TriggerSource = "manual"
	SourceVoice    TriggerSource = "voice"
	SourceExternal TriggerSource = "external"
)

func ParseTriggerSource(s string) (TriggerSource, error) {
	switch src := TriggerSource(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceManual, SourceVoice, SourceExternal:
		return src, nil
	}
	return "", fmt.Errorf("unknown trigger source %q", s)
}

// Trigger is consumed once by the state machine and never stored as-is.
type Trigger struct {
	Source   TriggerSource
	At       time.Time
	Evidence string
}

// UnavailableAddress is the placeholder used when no position could be
// obtained in time.
const UnavailableAddress = "Location unavailable"

type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
	Address  string  `json:"address"`
	Degraded bool    `json:"degraded"`
}

func UnavailableLocation() Location {
	return Location{Address: UnavailableAddress, Degraded: true}
}

// MapsLink is empty for a degraded location.
func (l Location) MapsLink() string {
	if l.Degraded {
		return ""
	}
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", l.Lat, l.Lng)
}

func (l Location) String() string {
	if l.Address != "" {
		return l.Address
	}
	return fmt.Sprintf("%.6f, %.6f", l.Lat, l.Lng)
}

// Position is a raw fix from a geolocation provider.
type Position struct {
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy"`
	Address  string    `json:"address,omitempty"`
	Source   string    `json:"source,omitempty"`
	At       time.Time `json:"at"`
}

func (p Position) Location() Location {
	return Location{Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy, Address: p.Address}
}

type Alert struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	TriggerType TriggerSource `json:"triggerType"`
	Evidence    string        `json:"evidence,omitempty"`
	Location    Location      `json:"location"`
	CreatedAt   time.Time     `json:"createdAt"`
	IsResolved  bool          `json:"isResolved"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
	ClipKey     string        `json:"clipKey,omitempty"`
	// Local is set when the store rejected the alert and the id was generated
	// in-process.
	Local bool `json:"local,omitempty"`
}

type Contact struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	PhoneNumber    string `json:"phoneNumber"`
	WhatsappNumber string `json:"whatsappNumber,omitempty"`
	Email          string `json:"email,omitempty"`
	IsActive       bool   `json:"isActive"`
	IsPrimary      bool   `json:"isPrimary"`
}

// Channels lists the channels a contact can be reached on, richest first.
func (c Contact) Channels() []ChannelKind {
	out := make([]ChannelKind, 0, 3)
	if strings.TrimSpace(c.WhatsappNumber) != "" {
		out = append(out, ChannelWhatsApp)
	}
	if strings.TrimSpace(c.PhoneNumber) != "" {
		out = append(out, ChannelSMS)
	}
	if strings.TrimSpace(c.Email) != "" {
		out = append(out, ChannelEmail)
	}
	return out
}

// Address returns the destination for ch.
func (c Contact) Address(ch ChannelKind) string {
	switch ch {
	case ChannelWhatsApp:
		return strings.TrimSpace(c.WhatsappNumber)
	case ChannelSMS:
		return strings.TrimSpace(c.PhoneNumber)
	case ChannelEmail:
		return strings.TrimSpace(c.Email)
	}
	return ""
}

type ChannelKind string

const (
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelSMS      ChannelKind = "sms"
	ChannelEmail    ChannelKind = "email"
)

type AttemptResult string

const (
	ResultPending AttemptResult = "pending"
	ResultSent    AttemptResult = "sent"
	ResultFailed  AttemptResult = "failed"
)

// Attempt is one contact x channel dispatch. ResultSent only means the
// dispatch call returned without error; it says nothing about delivery.
type Attempt struct {
	ContactID string        `json:"contactId"`
	Contact   string        `json:"contact"`
	Channel   ChannelKind   `json:"channel"`
	Result    AttemptResult `json:"result"`
	Err       string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

type State int

const (
	StateIdle State = iota
	StateTriggering
	StateActive
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggering:
		return "triggering"
	case StateActive:
		return "active"
	case StateResolving:
		return "resolving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transcript is one recognition fragment, interim or final.
type Transcript struct {
	Text       string
	Final      bool
	Confidence float64
}

// Constraints select the capture devices.
type Constraints struct {
	Audio       bool
	Video       bool
	AudioDevice string
	VideoDevice string
	Width       int
	Height      int
	FrameRate   int
}

func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: true, Width: 640, Height: 480, FrameRate: 24}
}

// Clip is the finalized recording returned by a capture stop.
type Clip struct {
	Data        []byte
	ContentType string
	StartedAt   time.Time
	StoppedAt   time.Time
}

func (c Clip) Empty() bool { return len(c.Data) == 0 }

type Action string

const (
	ActionTriggered    Action = "triggered"
	ActionFolded       Action = "folded"
	ActionResolved     Action = "resolved"
	ActionClipUploaded Action = "clip_uploaded"
	ActionUploadFailed Action = "upload_failed"
	ActionClipExpired  Action = "clip_expired"
)
