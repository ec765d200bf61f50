// Package apperr defines the error kinds shared by the chat core, the REST
// handlers and the WebSocket gateway.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a user-facing failure. Message is safe to show to clients; Err is not.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and code, so sentinels work with errors.Is
// even after Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a copy of e.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func Authentication(code, message string) *Error { return New(KindAuthentication, code, message) }
func Authorization(code, message string) *Error  { return New(KindAuthorization, code, message) }
func NotFound(code, message string) *Error       { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error       { return New(KindConflict, code, message) }
func Validation(code, message string) *Error     { return New(KindValidation, code, message) }

var (
	ErrAuthentication  = Authentication("", "authentication required")
	ErrAuthorization   = Authorization("", "not allowed")
	ErrNotFound        = NotFound("", "not found")
	ErrConflict        = Conflict("", "conflict")
	ErrValidation      = Validation("", "invalid input")
	ErrNotAParticipant = Authorization("not_a_participant", "You are not a participant of this chat")
	ErrChatNotFound    = NotFound("chat_not_found", "Chat not found")
	ErrMessageNotFound = NotFound("message_not_found", "Message not found")
)

// KindOf reports the kind of err, KindInternal if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
