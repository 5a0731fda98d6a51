package apiexec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CallOption tunes a single executor call.
type CallOption func(*callOptions)

type callOptions struct {
	anonymous      bool
	functionalArea string
	family         string
	invalidates    []string
	noCache        bool
	query          url.Values
	header         http.Header
}

func resolveCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Anonymous skips token validation and the Authorization header, for
// endpoints such as login or password reset.
func Anonymous() CallOption {
	return func(o *callOptions) {
		o.anonymous = true
	}
}

// FunctionalArea sends X-Funcionalidade-Id for this call, overriding the
// executor default.
func FunctionalArea(id string) CallOption {
	return func(o *callOptions) {
		o.functionalArea = id
	}
}

// Family overrides the resource family derived from the path.
func Family(name string) CallOption {
	return func(o *callOptions) {
		o.family = name
	}
}

// Invalidates names additional families a successful write makes stale.
func Invalidates(families ...string) CallOption {
	return func(o *callOptions) {
		o.invalidates = append(o.invalidates, families...)
	}
}

// NoCache bypasses the response cache for a read.
func NoCache() CallOption {
	return func(o *callOptions) {
		o.noCache = true
	}
}

// Query adds query parameters to the call.
func Query(v url.Values) CallOption {
	return func(o *callOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range v {
			for _, s := range vs {
				o.query.Add(k, s)
			}
		}
	}
}

// Header sets an extra request header.
func Header(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

// Request is one untyped executor call.
type Request struct {
	Method string
	Path   string
	// Body is sent as JSON. []byte and json.RawMessage are sent verbatim.
	Body    any
	Options []CallOption
}

func (r Request) encodeBody() ([]byte, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return data, nil
	}
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func normalizeMethod(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}
