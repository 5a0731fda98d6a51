package apiexec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the coarse classification every failed call is reduced to.
type Kind int

const (
	// KindUnknown covers anything not recognised below. Never retried.
	KindUnknown Kind = iota
	// KindValidation means the server answered with a structured
	// {succeeded:false, messages:[...]} envelope.
	KindValidation
	// KindAuth means the session is unusable: no credentials, a failed
	// refresh, or a 401 from the API.
	KindAuth
	// KindTransient covers network failures, timeouts and 5xx answers.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Transient reports whether the retry policy may re-attempt a failure of this kind.
func (k Kind) Transient() bool {
	return k == KindTransient
}

// Reason refines KindAuth failures.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoCredentials  Reason = "no_credentials"
	ReasonRefreshFailed  Reason = "refresh_failed"
	ReasonInvalidSession Reason = "invalid_session"
)

// Sentinel errors usable with errors.Is against any *Error.
var (
	ErrNoCredentials  = &Error{Kind: KindAuth, Reason: ReasonNoCredentials, Message: "no stored credentials"}
	ErrRefreshFailed  = &Error{Kind: KindAuth, Reason: ReasonRefreshFailed, Message: "token refresh failed"}
	ErrInvalidSession = &Error{Kind: KindAuth, Reason: ReasonInvalidSession, Message: "session rejected by server"}

	// ErrValidation matches every validation failure regardless of payload.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	// ErrTransient matches every transient failure.
	ErrTransient = &Error{Kind: KindTransient, Message: "transient failure"}
)

// Envelope is the response wrapper every endpoint of the remote API uses.
type Envelope struct {
	Succeeded bool            `json:"succeeded"`
	Data      json.RawMessage `json:"data,omitempty"`
	Messages  []string        `json:"messages,omitempty"`
}

// Error is the classified failure returned by every executor call.
type Error struct {
	Kind       Kind
	Reason     Reason
	Message    string
	StatusCode int
	// Payload holds the server envelope for KindValidation.
	Payload *Envelope
	Cause   error

	RequestID string
	Method    string
	Path      string
	Attempt   int
	Duration  time.Duration

	retryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Reason != ReasonNone {
		msg = fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Reason)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on Kind, and on Reason when the target carries one.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Messages returns the server supplied validation messages, if any.
func (e *Error) Messages() []string {
	if e == nil || e.Payload == nil {
		return nil
	}
	return e.Payload.Messages
}

// UserMessage returns a generic, localized message safe to show to end users.
// Validation failures return the server messages joined instead.
func (e *Error) UserMessage(locale string) string {
	if e == nil {
		return ""
	}
	if e.Kind == KindValidation && len(e.Messages()) > 0 {
		out := e.Messages()[0]
		for _, m := range e.Messages()[1:] {
			out += "\n" + m
		}
		return out
	}
	msgs, ok := userMessages[locale]
	if !ok {
		msgs = userMessages[DefaultLocale]
	}
	if e.Kind == KindAuth {
		return msgs.auth
	}
	return msgs.generic
}

type localizedMessages struct {
	auth    string
	generic string
}

var userMessages = map[string]localizedMessages{
	"pt-BR": {
		auth:    "Sua sessão expirou. Faça login novamente.",
		generic: "Não foi possível concluir a operação. Tente novamente mais tarde.",
	},
	"en": {
		auth:    "Your session has expired. Please sign in again.",
		generic: "The operation could not be completed. Please try again later.",
	},
}

// AsError extracts the *Error from err, wrapping foreign errors as KindUnknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknown, Message: "unexpected failure", Cause: err}
}

// KindOf returns the Kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return AsError(err).Kind
}

// IsValidation reports whether err is a server side validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAuth reports whether err is an unrecoverable authentication failure.
func IsAuth(err error) bool {
	return err != nil && KindOf(err) == KindAuth
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && KindOf(err).Transient()
}
