package apiexec

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantNil  bool
		wantKind Kind
		reason   Reason
	}{
		{name: "success envelope", status: 200, body: `{"succeeded":true,"data":1}`, wantNil: true},
		{name: "plain success", status: 204, wantNil: true},
		{name: "unauthorized", status: 401, body: `{"succeeded":false}`, wantKind: KindAuth, reason: ReasonInvalidSession},
		{name: "server error", status: 500, wantKind: KindTransient},
		{name: "bad gateway with envelope", status: 502, body: `{"succeeded":false,"messages":["x"]}`, wantKind: KindTransient},
		{name: "unavailable", status: 503, wantKind: KindTransient},
		{name: "request timeout", status: 408, wantKind: KindTransient},
		{name: "too many requests", status: 429, wantKind: KindTransient},
		{name: "validation 400", status: 400, body: `{"succeeded":false,"messages":["Nome é obrigatório"]}`, wantKind: KindValidation},
		{name: "validation 422", status: 422, body: `{"succeeded":false,"messages":["a","b"]}`, wantKind: KindValidation},
		{name: "validation on 200", status: 200, body: `{"succeeded":false,"messages":["Licença expirada"]}`, wantKind: KindValidation},
		{name: "not found without envelope", status: 404, body: `<html>not found</html>`, wantKind: KindUnknown},
		{name: "forbidden plain json", status: 403, body: `{"error":"nope"}`, wantKind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, []byte(tt.body), nil)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassifyKeepsValidationPayload(t *testing.T) {
	got := Classify(400, []byte(`{"succeeded":false,"data":{"field":"nome"},"messages":["Nome é obrigatório"]}`), nil)
	require.NotNil(t, got)
	require.NotNil(t, got.Payload)
	assert.False(t, got.Payload.Succeeded)
	assert.Equal(t, []string{"Nome é obrigatório"}, got.Messages())
	assert.JSONEq(t, `{"field":"nome"}`, string(got.Payload.Data))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"caller canceled", context.Canceled, KindUnknown},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"net timeout", timeoutError{}, KindTransient},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindTransient},
		{"something else", errors.New("weird"), KindUnknown},
		{"already classified", &Error{Kind: KindAuth, Reason: ReasonRefreshFailed}, KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(0, nil, tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassifyTransportThroughHTTPClient(t *testing.T) {
	// nothing listens on a closed listener's address
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = http.Get("http://" + addr)
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(0, nil, err).Kind)
}

func TestDecodeEnvelope(t *testing.T) {
	_, ok := decodeEnvelope([]byte(`[1,2,3]`))
	assert.False(t, ok)

	_, ok = decodeEnvelope([]byte(`{"items":[]}`))
	assert.False(t, ok, "objects without succeeded are not envelopes")

	env, ok := decodeEnvelope([]byte(`  {"succeeded":true,"data":"abc"}`))
	require.True(t, ok)
	assert.True(t, env.Succeeded)
	assert.Equal(t, `"abc"`, string(env.Data))
}
