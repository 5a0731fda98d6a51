package apiexec

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIs(t *testing.T) {
	refreshFailed := &Error{Kind: KindAuth, Reason: ReasonRefreshFailed, Message: "token refresh failed"}

	if !errors.Is(refreshFailed, ErrRefreshFailed) {
		t.Error("expected refresh failure to match ErrRefreshFailed")
	}
	if errors.Is(refreshFailed, ErrNoCredentials) {
		t.Error("expected refresh failure not to match ErrNoCredentials")
	}
	if !errors.Is(refreshFailed, &Error{Kind: KindAuth}) {
		t.Error("expected a reasonless target to match on kind alone")
	}
	if errors.Is(refreshFailed, ErrTransient) {
		t.Error("expected auth failure not to match ErrTransient")
	}

	wrapped := fmt.Errorf("loading licenses: %w", refreshFailed)
	if !errors.Is(wrapped, ErrRefreshFailed) {
		t.Error("expected wrapped error to match ErrRefreshFailed")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{
		Kind:       KindTransient,
		Message:    "Service Unavailable",
		StatusCode: 503,
		Cause:      errors.New("upstream down"),
		RequestID:  "req-1",
	}
	got := err.Error()
	for _, want := range []string{"[req-1]", "transient", "Service Unavailable", "[status 503]", "upstream down"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}

	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Errorf("nil Error() = %q", nilErr.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &Error{Kind: KindTransient, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		locale string
		want   string
	}{
		{"auth pt-BR", &Error{Kind: KindAuth}, "pt-BR", "Sua sessão expirou. Faça login novamente."},
		{"auth en", &Error{Kind: KindAuth}, "en", "Your session has expired. Please sign in again."},
		{"unknown locale falls back", &Error{Kind: KindTransient, Cause: errors.New("dial tcp 10.0.0.1:443")}, "fr", "Não foi possível concluir a operação. Tente novamente mais tarde."},
		{"validation joins messages", &Error{Kind: KindValidation, Payload: &Envelope{Messages: []string{"Nome é obrigatório", "Email inválido"}}}, "en", "Nome é obrigatório\nEmail inválido"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(tt.locale); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindHelpers(t *testing.T) {
	foreign := errors.New("boom")
	if KindOf(foreign) != KindUnknown {
		t.Errorf("KindOf(foreign) = %v", KindOf(foreign))
	}
	if AsError(foreign).Cause != foreign {
		t.Error("AsError should keep foreign errors as cause")
	}
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	validation := &Error{Kind: KindValidation}
	if !IsValidation(validation) || IsAuth(validation) || IsTransient(validation) {
		t.Error("validation helpers disagree")
	}
	if !IsTransient(fmt.Errorf("wrapped: %w", &Error{Kind: KindTransient})) {
		t.Error("expected wrapped transient error")
	}
	if IsAuth(nil) || IsTransient(nil) {
		t.Error("nil is neither auth nor transient")
	}
	if KindTransient.String() != "transient" || Kind(42).String() != "unknown" {
		t.Error("unexpected Kind.String()")
	}
}
