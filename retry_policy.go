package apiexec

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devgrupoglobalsoft/apiexec/internal/backoff"
)

// RetryPolicy bounds how often a failing operation is attempted.
type RetryPolicy struct {
	maxAttempts int
	settings    backoff.Settings
	strategy    backoff.Strategy
	classify    func(error) *Error
	// onRetry is called before every re-attempt.
	onRetry func(attempt int, err *Error, delay time.Duration)
}

// NewRetryPolicy returns a policy that makes at most maxAttempts attempts
// with capped exponential backoff between them.
func NewRetryPolicy(maxAttempts int, initialBackoff, maxBackoff time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		settings: backoff.Settings{
			Initial:    initialBackoff,
			Max:        maxBackoff,
			Multiplier: 2.0,
			Jitter:     0.1,
		},
		strategy: backoff.Exponential{},
		classify: AsError,
	}
}

// MaxAttempts returns the total number of attempts, including the first.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// WithClassifier returns a copy of the policy deciding kinds with fn.
func (p *RetryPolicy) WithClassifier(fn func(error) *Error) *RetryPolicy {
	cp := *p
	cp.classify = fn
	return &cp
}

// WithConstantDelay returns a copy of the policy that waits the initial
// backoff before every re-attempt instead of growing it.
func (p *RetryPolicy) WithConstantDelay() *RetryPolicy {
	cp := *p
	cp.strategy = backoff.Constant{}
	return &cp
}

// WithJitter returns a copy of the policy using the given jitter factor.
func (p *RetryPolicy) WithJitter(j float64) *RetryPolicy {
	cp := *p
	cp.settings.Jitter = j
	return &cp
}

func (p *RetryPolicy) delay(attempt int, err *Error) time.Duration {
	if err != nil && err.retryAfter > 0 {
		d := err.retryAfter
		if p.settings.Max > 0 && d > p.settings.Max {
			d = p.settings.Max
		}
		return d
	}
	return p.strategy.Delay(attempt, p.settings)
}

// WithRetry runs op until it succeeds, fails with a non transient error, or
// the policy runs out of attempts. The last failure is returned as *Error.
// attempt is zero based.
func WithRetry[T any](ctx context.Context, p *RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	classify := p.classify
	if classify == nil {
		classify = AsError
	}

	var last *Error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			d := p.delay(attempt-1, last)
			if p.onRetry != nil {
				p.onRetry(attempt, last, d)
			}
			if err := backoff.Sleep(ctx, d); err != nil {
				return zero, classifyTransport(err)
			}
		}

		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}

		classified := *classify(err)
		classified.Attempt = attempt + 1
		last = &classified
		if !last.Kind.Transient() {
			return v, last
		}
	}
	return zero, last
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
