package websocket

import (
	"Raksha/pkg/errors"

	"github.com/goccy/go-json"
)

// Role is the part a connection plays inside an alert room.
type Role string

// ParseRole accepts the three room roles; anything else is rejected.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePublisher, RoleViewer, RoleGuardian:
		return r, nil
	}
	return "", errors.Newf(errors.KindInvalid, "unknown role %q", s)
}

// ErrUnknownKind marks a well-formed message whose kind is not part of the
// protocol. Receivers ignore such messages.
var ErrUnknownKind = errors.New(errors.KindInvalid, "unknown signal kind")

// Signal is the single JSON envelope of the relay protocol. Which fields are
// meaningful depends on Kind.
type Signal struct {
	Kind      string `json:"kind"`
	AlertID   string `json:"alertId,omitempty"`
	Count     int    `json:"count,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Message   string `json:"message,omitempty"`
	By        string `json:"by,omitempty"`
	// From is stamped by the hub with the sender's connection id.
	From string `json:"from,omitempty"`
	// To addresses a single connection of the room.
	To string `json:"to,omitempty"`
}

// Validate checks the fields each kind requires.
func (s Signal) Validate() error {
	switch s.Kind {
	case KindResolved:
		if s.AlertID == "" {
			return errors.New(errors.KindInvalid, "resolved without alertId")
		}
	case KindViewerCount:
		if s.Count < 0 {
			return errors.Newf(errors.KindInvalid, "negative viewer count %d", s.Count)
		}
	case KindOffer, KindAnswer:
		if s.SDP == "" {
			return errors.Newf(errors.KindInvalid, "%s without sdp", s.Kind)
		}
	case KindCandidate:
		if s.Candidate == "" {
			return errors.New(errors.KindInvalid, "candidate without payload")
		}
	case KindError:
	default:
		return ErrUnknownKind
	}
	return nil
}

// Encode serializes a validated signal.
func Encode(s Signal) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Decode parses and validates a signal. Unknown kinds yield ErrUnknownKind.
func Decode(raw []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signal{}, errors.Mark(err, errors.KindInvalid, "malformed signal")
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}
