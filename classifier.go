package apiexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

// Classify reduces one failed attempt to an *Error. status is 0 when the
// transport never produced a response; body is the raw response body.
// A nil result means the attempt was a success.
func Classify(status int, body []byte, err error) *Error {
	if err != nil {
		return classifyTransport(err)
	}

	if status == http.StatusUnauthorized {
		return &Error{
			Kind:       KindAuth,
			Reason:     ReasonInvalidSession,
			Message:    "session rejected by server",
			StatusCode: status,
		}
	}

	if status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return &Error{
			Kind:       KindTransient,
			Message:    http.StatusText(status),
			StatusCode: status,
		}
	}

	// a structured failure payload wins over the status code, the API
	// answers validation problems with 400 but also with 200 on some routes
	if env, ok := decodeEnvelope(body); ok && !env.Succeeded {
		return &Error{
			Kind:       KindValidation,
			Message:    "validation failed",
			StatusCode: status,
			Payload:    env,
		}
	}

	if status >= 400 {
		return &Error{
			Kind:       KindUnknown,
			Message:    http.StatusText(status),
			StatusCode: status,
		}
	}
	return nil
}

func classifyTransport(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	// the caller gave up, re-attempting would ignore that
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnknown, Message: "request canceled", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "request timed out", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTransient, Message: "request timed out", Cause: err}
		}
		return &Error{Kind: KindTransient, Message: "network request failed", Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindTransient, Message: "network request failed", Cause: err}
	}

	// net/http wraps dial and read failures in *url.Error which is a
	// net.Error, so reaching this point means something else went wrong
	return &Error{Kind: KindUnknown, Message: "unexpected failure", Cause: err}
}

func decodeEnvelope(body []byte) (*Envelope, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var probe struct {
		Succeeded *bool           `json:"succeeded"`
		Data      json.RawMessage `json:"data"`
		Messages  []string        `json:"messages"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Succeeded == nil {
		return nil, false
	}
	return &Envelope{
		Succeeded: *probe.Succeeded,
		Data:      probe.Data,
		Messages:  probe.Messages,
	}, true
}
