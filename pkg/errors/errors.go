package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies a failure by how callers should react to it.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindPermissionDenied: the user refused camera, mic, location or speech
	// access. Never retried automatically; the component stays stopped.
	KindPermissionDenied
	// KindTransient: network sends, recognition engine auto-stop.
	KindTransient
	// KindUnavailable: a dependency could not produce a value; the caller degrades.
	KindUnavailable
	// KindBusy: an exclusively owned resource is already in use.
	KindBusy
	KindInvalid
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransient:
		return "transient"
	case KindUnavailable:
		return "unavailable"
	case KindBusy:
		return "busy"
	case KindInvalid:
		return "invalid"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Kind sentinels. errors.Is(err, ErrBusy) holds for any busy error in the
// chain; every other *Error matches only itself.
var (
	ErrPermissionDenied = kindSentinel(KindPermissionDenied, "permission denied")
	ErrTransient        = kindSentinel(KindTransient, "transient failure")
	ErrUnavailable      = kindSentinel(KindUnavailable, "unavailable")
	ErrBusy             = kindSentinel(KindBusy, "resource busy")
	ErrInvalid          = kindSentinel(KindInvalid, "invalid argument")
	ErrCancelled        = kindSentinel(KindCancelled, "cancelled")
)

func kindSentinel(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, class: true}
}

// Error carries an HTTP-ish code, a kind, the wrapped cause and context pairs.
type Error struct {
	Code    int        `json:"code"`
	Kind    Kind       `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`

	class bool
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the same error value, or a kind sentinel of e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (t.class && e.Kind == t.Kind)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Stack: captureStack()}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// WithCode creates an error carrying a status code for the HTTP layer.
func WithCode(code int, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack()}
}

func WithCodef(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// Wrap annotates err. The kind is inherited from the cause.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Message: message, Err: err, Stack: captureStack()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Message: fmt.Sprintf(format, args...), Err: err, Stack: captureStack()}
}

// Mark wraps err with an explicit kind.
func Mark(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err, Stack: captureStack()}
}

// WithContext returns a copy of e with an extra key/value pair.
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.class = false
	out.Context = append(append([]KeyValue(nil), e.Context...), KeyValue{Key: key, Value: value})
	return &out
}

// KindOf walks the chain and returns the first explicit kind. Context
// cancellation and deadline errors map to KindCancelled and KindTransient.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			break
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	switch {
	case err == nil:
		return KindUnknown
	case stderrors.Is(err, context.Canceled):
		return KindCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func GetCode(err error) int {
	var e *Error
	for stderrors.As(err, &e) {
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

// Re-exports so callers need only one errors import.
func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	// drop goroutine header plus captureStack and its caller frames
	if len(lines) > 5 {
		lines = lines[5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s [%s]", e.Error(), e.Kind)
			for _, kv := range e.Context {
				fmt.Fprintf(s, " %s=%s", kv.Key, kv.Value)
			}
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
