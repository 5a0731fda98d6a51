package apiexec

import (
	"context"
	"time"

	"github.com/devgrupoglobalsoft/apiexec/internal/singleflight"
)

const refreshTicketKey = "refresh"

// TokenCoordinator keeps the access token valid. However many callers find
// the token expired at the same time, a single refresh request is sent and
// all of them observe its outcome.
type TokenCoordinator struct {
	store     CredentialStore
	refresher Refresher
	tickets   *singleflight.Group[AuthSession]
	gate      *navigationGate
	loginPath string
	skew      time.Duration
	timeout   time.Duration
	retry     *RetryPolicy
	now       func() time.Time
	logger    Logger
	metrics   *MetricsCollector
	// onClear runs after the store was cleared.
	onClear func()
}

// CoordinatorOption configures a TokenCoordinator.
type CoordinatorOption func(*TokenCoordinator)

// WithExpirySkew treats tokens expiring within d as already expired.
func WithExpirySkew(d time.Duration) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.skew = d
	}
}

// WithRefreshTimeout bounds one refresh round-trip, retries included.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.timeout = d
	}
}

// WithRefreshRetry replaces the retry policy wrapping the refresh call.
func WithRefreshRetry(p *RetryPolicy) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.retry = p
	}
}

// WithLoginPath sets the path handed to the navigator on auth failure.
func WithLoginPath(path string) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.loginPath = path
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.now = now
	}
}

func WithCoordinatorLogger(l Logger) CoordinatorOption {
	return func(c *TokenCoordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithCoordinatorMetrics(m *MetricsCollector) CoordinatorOption {
	return func(c *TokenCoordinator) {
		c.metrics = m
	}
}

// NewTokenCoordinator wires a coordinator around store. nav may be nil.
func NewTokenCoordinator(store CredentialStore, refresher Refresher, nav Navigator, opts ...CoordinatorOption) *TokenCoordinator {
	c := &TokenCoordinator{
		store:     store,
		refresher: refresher,
		tickets:   singleflight.New[AuthSession](),
		gate:      newNavigationGate(nav),
		loginPath: DefaultLoginPath,
		timeout:   30 * time.Second,
		// a rejected refresh token is terminal, so this only ever
		// re-attempts network hiccups, and only once
		retry:  NewRetryPolicy(2, 200*time.Millisecond, time.Second),
		now:    time.Now,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureValidToken returns a session whose access token is valid, refreshing
// it first when needed. It fails with KindAuth when no session exists or the
// refresh did not succeed; in both cases the navigator is sent to the login
// path once.
func (c *TokenCoordinator) EnsureValidToken(ctx context.Context) (AuthSession, error) {
	session, err := c.store.Get()
	if err != nil {
		return AuthSession{}, &Error{Kind: KindUnknown, Message: "reading credential store", Cause: err}
	}

	if session.Empty() {
		c.redirect()
		return AuthSession{}, &Error{Kind: KindAuth, Reason: ReasonNoCredentials, Message: "no stored credentials"}
	}

	// common path: decoded locally, no network
	if session.AccessToken != "" && session.ValidAt(c.now(), c.skew) {
		return session, nil
	}

	// the refresh must outlive any single waiter, so it runs on a context
	// that keeps the caller's values but not its cancellation
	detached := context.WithoutCancel(ctx)
	ticket, started := c.tickets.Start(refreshTicketKey, func() (AuthSession, error) {
		return c.refresh(detached)
	})
	if started {
		c.logger.Debug("access token expired, refreshing")
	} else {
		c.logger.Debug("joining in-flight token refresh", "waiters", ticket.Waiters())
	}

	next, err := ticket.Wait(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AuthSession{}, classifyTransport(ctxErr)
		}
		return AuthSession{}, err
	}
	return next, nil
}

func (c *TokenCoordinator) refresh(ctx context.Context) (AuthSession, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()

	// re-read: a login may have landed between the check and the ticket
	current, err := c.store.Get()
	if err != nil {
		return AuthSession{}, c.fail(err)
	}
	if current.AccessToken != "" && current.ValidAt(c.now(), c.skew) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return AuthSession{}, c.fail(&Error{Kind: KindAuth, Reason: ReasonRefreshFailed, Message: "no refresh token"})
	}

	next, err := WithRetry(ctx, c.retry, func(ctx context.Context, attempt int) (AuthSession, error) {
		if attempt > 0 {
			c.logger.Warn("retrying token refresh", "attempt", attempt+1)
		}
		return c.refresher.Refresh(ctx, current)
	})
	if err != nil {
		c.metrics.RecordTokenRefresh("failure", time.Since(start))
		return AuthSession{}, c.fail(err)
	}

	if err := c.store.Set(next); err != nil {
		c.metrics.RecordTokenRefresh("failure", time.Since(start))
		return AuthSession{}, c.fail(err)
	}
	if !next.ValidAt(c.now(), 0) {
		c.logger.Warn("refreshed access token is not valid yet or already expired")
	}

	c.gate.Reset()
	c.metrics.RecordTokenRefresh("success", time.Since(start))
	c.logger.Info("access token refreshed", "duration", time.Since(start))
	return next, nil
}

// fail is the terminal path: the session is dropped and the user is sent to
// the login page.
func (c *TokenCoordinator) fail(cause error) *Error {
	c.logger.Error("token refresh failed, clearing session", "error", cause)
	c.clear()
	c.redirect()

	authErr := &Error{Kind: KindAuth, Reason: ReasonRefreshFailed, Message: "token refresh failed", Cause: cause}
	if ce := AsError(cause); ce != nil && ce.Kind == KindAuth && ce.Reason == ReasonRefreshFailed {
		authErr.Cause = ce.Cause
		authErr.Message = ce.Message
	}
	return authErr
}

// Invalidate runs the failure path after the server rejected rejectedToken.
// It is a no-op when the stored token already changed, e.g. because a
// refresh completed while the rejected request was in flight.
func (c *TokenCoordinator) Invalidate(rejectedToken string) bool {
	current, err := c.store.Get()
	if err != nil || current.AccessToken != rejectedToken {
		return false
	}
	c.logger.Warn("server rejected session, clearing credentials")
	c.clear()
	c.redirect()
	return true
}

// SetSession stores a freshly obtained session, e.g. after login, and
// re-arms navigation.
func (c *TokenCoordinator) SetSession(s AuthSession) error {
	if err := c.store.Set(s); err != nil {
		return err
	}
	c.gate.Reset()
	return nil
}

// Logout clears the session without navigating; the caller decides where to go.
func (c *TokenCoordinator) Logout() error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	if c.onClear != nil {
		c.onClear()
	}
	return nil
}

func (c *TokenCoordinator) clear() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("clearing credential store", "error", err)
	}
	if c.onClear != nil {
		c.onClear()
	}
}

// Refreshing reports whether a refresh ticket is outstanding.
func (c *TokenCoordinator) Refreshing() bool {
	return c.tickets.InFlight(refreshTicketKey)
}

func (c *TokenCoordinator) redirect() {
	if c.gate.Redirect(c.loginPath) {
		c.logger.Info("redirecting to login", "path", c.loginPath)
	}
}
