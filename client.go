package apiexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 * 1024 * 1024

// Executor is the shared request path every domain service goes through.
// It owns the token coordinator and the response cache, so two executors
// never share a session or cached data. It is safe for concurrent use.
type Executor struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	store           CredentialStore
	coordinator     *TokenCoordinator
	refresher       Refresher
	refreshPath     string
	navigator       Navigator
	coordinatorOpts []CoordinatorOption

	cache         *ResponseCache
	cacheStore    CacheStore
	cacheTTL      time.Duration
	cacheDisabled bool

	retry           *RetryPolicy
	maxAttempts     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	jitter          float64
	constantBackoff bool

	tenant         string
	locale         string
	apiKey         string
	functionalArea string

	logger       Logger
	metrics      *MetricsCollector
	requestIDGen func() string
}

// New constructs an Executor for the API at baseURL. Invalid configuration
// is reported as a KindUnknown *Error listing every problem.
func New(baseURL string, store CredentialStore, options ...Option) (*Executor, error) {
	e := &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:        30 * time.Second,
		store:          store,
		refreshPath:    DefaultRefreshPath,
		cacheTTL:       DefaultCacheTTL,
		maxAttempts:    3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
		jitter:         0.1,
		locale:         DefaultLocale,
		logger:         nopLogger{},
		requestIDGen:   uuid.NewString,
	}

	for _, option := range options {
		option(e)
	}
	if e.logger == nil {
		e.logger = nopLogger{}
	}

	if err := e.ValidateConfiguration(); err != nil {
		return nil, err
	}

	if e.retry == nil {
		e.retry = NewRetryPolicy(e.maxAttempts, e.initialBackoff, e.maxBackoff).WithJitter(e.jitter)
		if e.constantBackoff {
			e.retry = e.retry.WithConstantDelay()
		}
	}

	if !e.cacheDisabled {
		e.cache = NewResponseCache(e.cacheStore, e.cacheTTL)
		e.cache.logger = e.logger
		e.cache.metrics = e.metrics
	}

	if e.refresher == nil {
		e.refresher = &HTTPRefresher{
			BaseURL:    e.baseURL,
			Path:       e.refreshPath,
			HTTPClient: e.httpClient,
			Headers:    e.buildHeaders(AuthSession{}, callOptions{}, ""),
		}
	}
	coordOpts := append([]CoordinatorOption{
		WithCoordinatorLogger(e.logger),
		WithCoordinatorMetrics(e.metrics),
	}, e.coordinatorOpts...)
	e.coordinator = NewTokenCoordinator(e.store, e.refresher, e.navigator, coordOpts...)
	e.coordinator.onClear = e.purgeCache

	return e, nil
}

// Coordinator returns the token coordinator owned by the executor.
func (e *Executor) Coordinator() *TokenCoordinator {
	return e.coordinator
}

// Cache returns the response cache, nil when caching is disabled.
func (e *Executor) Cache() *ResponseCache {
	return e.cache
}

// Locale returns the configured locale.
func (e *Executor) Locale() string {
	return e.locale
}

// Session returns the stored session.
func (e *Executor) Session() (AuthSession, error) {
	return e.store.Get()
}

// SetSession stores a session obtained by logging in. Cached reads of the
// previous session are dropped.
func (e *Executor) SetSession(s AuthSession) error {
	e.trackSessionScope()
	if err := e.coordinator.SetSession(s); err != nil {
		return err
	}
	e.purgeCache()
	return nil
}

// Logout clears the session and its cached reads. It does not navigate.
func (e *Executor) Logout() error {
	e.trackSessionScope()
	return e.coordinator.Logout()
}

// CacheScope returns the scope cached reads of the current session are
// stored under: the tenant plus the token subject. A session without a sub
// claim falls back to its refresh token, hashed like the subject.
func (e *Executor) CacheScope() string {
	s, err := e.store.Get()
	if err != nil {
		s = AuthSession{}
	}
	tenant := s.Tenant
	if tenant == "" {
		tenant = e.tenant
	}
	identity := s.Subject()
	if identity == "" {
		identity = s.RefreshToken
	}
	if identity == "" {
		identity = s.AccessToken
	}
	return Scope(tenant, identity)
}

// trackSessionScope makes the current session's scope reachable by the next
// purge, even when this process has not read through it yet.
func (e *Executor) trackSessionScope() {
	if e.cache != nil {
		e.cache.track(e.CacheScope())
	}
}

// InvalidateFamily drops cached reads of family.
func (e *Executor) InvalidateFamily(ctx context.Context, family string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.InvalidateFamily(ctx, family)
}

func (e *Executor) purgeCache() {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.cache.Purge(ctx)
}

// Do runs one call: cache lookup for reads, token validation, headers,
// bounded retry, classification, then cache store or family invalidation.
// On a KindValidation failure the raw response is returned with the error.
func (e *Executor) Do(ctx context.Context, req Request) (*RawResponse, error) {
	start := time.Now()
	opts := resolveCallOptions(req.Options)
	method := normalizeMethod(req.Method)
	family := opts.family
	if family == "" {
		family = FamilyOf(req.Path)
	}
	requestID := e.requestIDGen()

	body, err := req.encodeBody()
	if err != nil {
		return nil, e.finish(err, requestID, method, req.Path, family, 0, start)
	}

	e.metrics.RecordRequestStart(method, family)
	defer e.metrics.RecordRequestEnd(method, family)

	var raw *RawResponse
	if isRead(method) && e.cache != nil && !opts.noCache {
		key := BuildKey(method, req.Path, opts.query, body, family).WithScope(e.CacheScope())
		var fresh *RawResponse
		entry, hit, cerr := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*CacheEntry, error) {
			r, err := e.send(ctx, method, req.Path, body, opts, requestID, family)
			fresh = r
			if err != nil {
				return nil, err
			}
			return &CacheEntry{Value: r.Body, StatusCode: r.StatusCode}, nil
		})
		err = cerr
		if hit {
			raw = &RawResponse{StatusCode: entry.StatusCode, Body: entry.Value, FromCache: true, RequestID: requestID}
		} else {
			raw = fresh
		}
	} else {
		raw, err = e.send(ctx, method, req.Path, body, opts, requestID, family)
		if err == nil && !isRead(method) {
			e.invalidate(ctx, family, opts.invalidates)
		}
	}

	status := 0
	if raw != nil {
		status = raw.StatusCode
	}
	if err != nil {
		return raw, e.finish(err, requestID, method, req.Path, family, status, start)
	}

	duration := time.Since(start)
	e.metrics.RecordRequest(method, family, status, duration)
	e.logger.Debug("request completed",
		"requestID", requestID, "method", method, "path", req.Path,
		"status", status, "fromCache", raw.FromCache, "duration", duration)
	return raw, nil
}

func (e *Executor) send(ctx context.Context, method, path string, body []byte, opts callOptions, requestID, family string) (*RawResponse, error) {
	var session AuthSession
	if !opts.anonymous {
		s, err := e.coordinator.EnsureValidToken(ctx)
		if err != nil {
			return nil, err
		}
		session = s
	}

	header := e.buildHeaders(session, opts, requestID)
	target := e.resolveURL(path, opts.query)

	policy := *e.retry
	policy.onRetry = func(attempt int, last *Error, delay time.Duration) {
		e.metrics.RecordRetry(method, family, attempt)
		e.logger.Info("retrying request",
			"requestID", requestID, "method", method, "path", path,
			"attempt", attempt+1, "maxAttempts", policy.MaxAttempts(),
			"backoff", delay, "error", last)
	}

	raw, err := WithRetry(ctx, &policy, func(ctx context.Context, _ int) (*RawResponse, error) {
		return e.attempt(ctx, method, target, body, header)
	})
	if raw != nil {
		raw.RequestID = requestID
	}

	if err != nil && !opts.anonymous && errors.Is(err, ErrInvalidSession) {
		e.coordinator.Invalidate(session.AccessToken)
	}
	return raw, err
}

func (e *Executor) attempt(ctx context.Context, method, target string, body []byte, header http.Header) (*RawResponse, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "creating request", Cause: err}
	}
	req.Header = header.Clone()

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, Classify(0, nil, err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, Classify(0, nil, err)
	}

	raw := &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}
	if cerr := Classify(resp.StatusCode, data, nil); cerr != nil {
		if cerr.Kind == KindTransient {
			cerr.retryAfter = parseRetryAfter(resp.Header)
		}
		return raw, cerr
	}
	return raw, nil
}

func (e *Executor) invalidate(ctx context.Context, family string, extra []string) {
	if e.cache == nil {
		return
	}
	seen := map[string]bool{}
	for _, f := range append([]string{family}, extra...) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		if err := e.cache.InvalidateFamily(ctx, f); err != nil {
			e.logger.Warn("invalidating cache family", "family", f, "error", err)
		}
	}
}

func (e *Executor) resolveURL(path string, query url.Values) string {
	target := joinURL(e.baseURL, path)
	if len(query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

// finish returns a copy of err decorated with the call's context; err itself
// may be shared between refresh waiters.
func (e *Executor) finish(err error, requestID, method, path, family string, status int, start time.Time) *Error {
	duration := time.Since(start)
	ce := *AsError(err)
	ce.RequestID = requestID
	ce.Method = method
	ce.Path = path
	ce.Duration = duration

	e.metrics.RecordRequest(method, family, status, duration)
	e.metrics.RecordError(ce.Kind, method, family)

	switch ce.Kind {
	case KindValidation:
		e.logger.Debug("request rejected by validation",
			"requestID", requestID, "method", method, "path", path, "messages", ce.Messages())
	case KindAuth:
		e.logger.Warn("request failed authentication",
			"requestID", requestID, "method", method, "path", path, "reason", string(ce.Reason))
	default:
		e.logger.Error("request failed",
			"requestID", requestID, "method", method, "path", path,
			"kind", ce.Kind.String(), "status", status, "error", ce.Cause)
	}
	return &ce
}

// Fetch issues a GET. Reads are served from the cache when possible.
func Fetch[T any](ctx context.Context, e *Executor, path string, opts ...CallOption) (*Response[T], error) {
	return call[T](ctx, e, Request{Method: http.MethodGet, Path: path, Options: opts})
}

// Create issues a POST.
func Create[T any](ctx context.Context, e *Executor, path string, body any, opts ...CallOption) (*Response[T], error) {
	return call[T](ctx, e, Request{Method: http.MethodPost, Path: path, Body: body, Options: opts})
}

// Replace issues a PUT.
func Replace[T any](ctx context.Context, e *Executor, path string, body any, opts ...CallOption) (*Response[T], error) {
	return call[T](ctx, e, Request{Method: http.MethodPut, Path: path, Body: body, Options: opts})
}

// Delete issues a DELETE without body.
func Delete[T any](ctx context.Context, e *Executor, path string, opts ...CallOption) (*Response[T], error) {
	return call[T](ctx, e, Request{Method: http.MethodDelete, Path: path, Options: opts})
}

// DeleteWithBody issues a DELETE carrying a JSON body, used by bulk deletes.
func DeleteWithBody[T any](ctx context.Context, e *Executor, path string, body any, opts ...CallOption) (*Response[T], error) {
	return call[T](ctx, e, Request{Method: http.MethodDelete, Path: path, Body: body, Options: opts})
}

// call decodes whatever response exists. A validation failure therefore
// comes back as a populated Response together with its *Error.
func call[T any](ctx context.Context, e *Executor, req Request) (*Response[T], error) {
	raw, err := e.Do(ctx, req)
	if raw == nil {
		return nil, err
	}
	resp, derr := decodeResponse[T](raw)
	if err != nil {
		return resp, err
	}
	if derr != nil {
		return resp, derr
	}
	return resp, nil
}
