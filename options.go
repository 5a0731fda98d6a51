package apiexec

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sends requests through a copy of client. The copy shares
// client's transport; the caller's client is never modified.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client == nil {
			e.httpClient = nil
			return
		}
		own := *client
		if e.timeout != 0 {
			own.Timeout = e.timeout
		}
		e.httpClient = &own
	}
}

// WithTimeout bounds every single attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
		if e.httpClient != nil {
			e.httpClient.Timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts per call, first included.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		e.maxAttempts = n
	}
}

// WithBackoff sets the delay before the first re-attempt and its cap.
// WithBackoff(0, 0) re-attempts immediately.
func WithBackoff(initial, max time.Duration) Option {
	return func(e *Executor) {
		e.initialBackoff = initial
		e.maxBackoff = max
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0)
func WithJitter(f float64) Option {
	return func(e *Executor) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		e.jitter = f
	}
}

// WithConstantBackoff waits the initial backoff before every re-attempt.
func WithConstantBackoff() Option {
	return func(e *Executor) {
		e.constantBackoff = true
	}
}

// WithRetryPolicy replaces the policy built from the options above.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithCache sets the TTL of the default in-memory response cache.
func WithCache(ttl time.Duration) Option {
	return func(e *Executor) {
		e.cacheTTL = ttl
		e.cacheDisabled = false
	}
}

// WithCacheStore backs the response cache with store.
func WithCacheStore(store CacheStore, ttl time.Duration) Option {
	return func(e *Executor) {
		e.cacheStore = store
		e.cacheTTL = ttl
		e.cacheDisabled = false
	}
}

// WithoutCache sends every read to the network.
func WithoutCache() Option {
	return func(e *Executor) {
		e.cacheDisabled = true
	}
}

func WithTenant(tenant string) Option {
	return func(e *Executor) {
		e.tenant = tenant
	}
}

// WithLocale sets Accept-Language and the locale of user messages.
func WithLocale(locale string) Option {
	return func(e *Executor) {
		e.locale = locale
	}
}

func WithAPIKey(key string) Option {
	return func(e *Executor) {
		e.apiKey = key
	}
}

// WithFunctionalArea sends X-Funcionalidade-Id on every call.
func WithFunctionalArea(id string) Option {
	return func(e *Executor) {
		e.functionalArea = id
	}
}

// WithNavigator receives the login path on unrecoverable auth failure.
func WithNavigator(nav Navigator) Option {
	return func(e *Executor) {
		e.navigator = nav
	}
}

// WithRefresher replaces the default refresh call against the API.
func WithRefresher(r Refresher) Option {
	return func(e *Executor) {
		e.refresher = r
	}
}

// WithRefreshPath changes the endpoint of the default refresher.
func WithRefreshPath(path string) Option {
	return func(e *Executor) {
		e.refreshPath = path
	}
}

// WithCoordinatorOptions tunes the token coordinator the executor builds.
func WithCoordinatorOptions(opts ...CoordinatorOption) Option {
	return func(e *Executor) {
		e.coordinatorOpts = append(e.coordinatorOpts, opts...)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(e *Executor) {
		e.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(e *Executor) {
		e.metrics = collector
	}
}

// WithLogger sets the structured logger
func WithLogger(logger Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(e *Executor) {
		e.requestIDGen = gen
	}
}

// ValidateConfiguration reports every configuration problem at once.
func (e *Executor) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, e.validateEndpointConfig()...)
	problems = append(problems, e.validateRetryConfig()...)
	problems = append(problems, e.validateCacheConfig()...)
	problems = append(problems, e.validateSessionConfig()...)
	problems = append(problems, e.validateExtremeValues()...)

	if len(problems) > 0 {
		return &Error{
			Kind:    KindUnknown,
			Message: "configuration validation failed",
			Cause:   errors.New(strings.Join(problems, "; ")),
		}
	}
	return nil
}

func (e *Executor) validateEndpointConfig() []string {
	var problems []string

	if e.baseURL == "" {
		problems = append(problems, "baseURL must be set")
	} else if u, err := url.Parse(e.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("baseURL %q must be an absolute URL", e.baseURL))
	}
	if e.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}
	if e.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if e.locale == "" {
		problems = append(problems, "locale must be set")
	}
	if e.requestIDGen == nil {
		problems = append(problems, "request ID generator cannot be nil")
	}

	return problems
}

func (e *Executor) validateRetryConfig() []string {
	var problems []string

	if e.retry != nil {
		return problems
	}
	if e.maxAttempts < 1 {
		problems = append(problems, "maxAttempts must be at least 1")
	}
	if e.initialBackoff < 0 {
		problems = append(problems, "initialBackoff must be non-negative")
	}
	if e.maxBackoff < e.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if e.jitter < 0 || e.jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}

	return problems
}

func (e *Executor) validateCacheConfig() []string {
	var problems []string

	if !e.cacheDisabled && e.cacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive when cache is enabled")
	}

	return problems
}

func (e *Executor) validateSessionConfig() []string {
	var problems []string

	if e.store == nil {
		problems = append(problems, "credential store cannot be nil")
	}

	return problems
}

func (e *Executor) validateExtremeValues() []string {
	var problems []string

	if e.maxAttempts > 10 {
		problems = append(problems, "maxAttempts > 10 would hammer a failing API")
	}
	if e.maxBackoff > time.Minute {
		problems = append(problems, "maxBackoff > 1m keeps callers waiting too long")
	}
	if e.timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}
	if !e.cacheDisabled && e.cacheTTL > 24*time.Hour {
		problems = append(problems, "cacheTTL > 24h may cause stale data issues")
	}

	return problems
}
