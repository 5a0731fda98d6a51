package apiexec

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RawResponse is the undecoded outcome of a call.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FromCache  bool
	RequestID  string
}

// Response is the decoded envelope of a call.
type Response[T any] struct {
	StatusCode int
	Succeeded  bool
	Data       T
	Messages   []string
	FromCache  bool
}

// decodeResponse turns raw into a Response. Bodies that are not an envelope
// are decoded straight into Data.
func decodeResponse[T any](raw *RawResponse) (*Response[T], error) {
	resp := &Response[T]{
		StatusCode: raw.StatusCode,
		FromCache:  raw.FromCache,
	}
	if len(strings.TrimSpace(string(raw.Body))) == 0 {
		resp.Succeeded = raw.StatusCode < 400
		return resp, nil
	}

	if env, ok := decodeEnvelope(raw.Body); ok {
		resp.Succeeded = env.Succeeded
		resp.Messages = env.Messages
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &resp.Data); err != nil {
				return resp, &Error{Kind: KindUnknown, Message: "decoding response data", StatusCode: raw.StatusCode, Cause: err, RequestID: raw.RequestID}
			}
		}
		return resp, nil
	}

	resp.Succeeded = raw.StatusCode < 400
	if err := json.Unmarshal(raw.Body, &resp.Data); err != nil {
		return resp, &Error{Kind: KindUnknown, Message: "decoding response body", StatusCode: raw.StatusCode, Cause: err, RequestID: raw.RequestID}
	}
	return resp, nil
}
