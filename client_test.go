package apiexec

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgrupoglobalsoft/apiexec/internal/fakeapi"
)

type listPage struct {
	Items      []map[string]any `json:"items"`
	TotalCount int              `json:"totalCount"`
}

type harness struct {
	api   *fakeapi.API
	exec  *Executor
	store *MemoryCredentialStore
	nav   *recordingNavigator
}

func newHarness(t *testing.T, api *fakeapi.API, session AuthSession, opts ...Option) *harness {
	t.Helper()
	srv := api.Start()
	t.Cleanup(srv.Close)

	h := &harness{api: api, store: NewMemoryCredentialStore(session), nav: &recordingNavigator{}}
	opts = append([]Option{
		WithBackoff(0, 0),
		WithNavigator(h.nav.Navigate),
	}, opts...)
	exec, err := New(srv.URL, h.store, opts...)
	require.NoError(t, err)
	h.exec = exec
	return h
}

func issue(t *testing.T, api *fakeapi.API, ttl time.Duration) AuthSession {
	t.Helper()
	access, refresh, err := api.IssueSession(fakeapi.DefaultUser, ttl)
	require.NoError(t, err)
	return AuthSession{AccessToken: access, RefreshToken: refresh}
}

func TestExecutorReadsAreCached(t *testing.T) {
	api := fakeapi.New()
	api.Seed("licencas", map[string]any{"id": "l1", "nome": "Básica"})
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	first, err := Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, first.Data.TotalCount)

	second, err := Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Data, second.Data)
	assert.EqualValues(t, 1, api.Hits(http.MethodGet, "/api/licencas"), "second read must not reach the network")

	_, err = Fetch[listPage](ctx, h.exec, "/api/licencas", NoCache())
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.Hits(http.MethodGet, "/api/licencas"))
}

func TestExecutorQueryIsPartOfCacheKey(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/perfis", Query(map[string][]string{"page": {"1"}}))
	require.NoError(t, err)
	_, err = Fetch[listPage](ctx, h.exec, "/api/perfis", Query(map[string][]string{"page": {"2"}}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.Hits(http.MethodGet, "/api/perfis"))
}

func TestExecutorWriteInvalidatesFamily(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/clientes")
	require.NoError(t, err)
	_, err = Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)

	created, err := Create[string](ctx, h.exec, "/api/clientes", map[string]any{"nome": "Acme"}, Invalidates("licencas"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.Data)

	after, err := Fetch[listPage](ctx, h.exec, "/api/clientes")
	require.NoError(t, err)
	assert.False(t, after.FromCache)
	assert.Equal(t, 1, after.Data.TotalCount)

	_, err = Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.Hits(http.MethodGet, "/api/licencas"), "dependent family must be refetched")
}

func TestExecutorFailedWriteKeepsCache(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/modulos")
	require.NoError(t, err)

	resp, err := Create[string](ctx, h.exec, "/api/modulos", map[string]any{"nome": ""})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	require.NotNil(t, resp, "validation failures carry the decoded response")
	assert.False(t, resp.Succeeded)
	assert.Equal(t, []string{"Nome é obrigatório"}, resp.Messages)
	assert.Equal(t, []string{"Nome é obrigatório"}, AsError(err).Messages())

	cached, err := Fetch[listPage](ctx, h.exec, "/api/modulos")
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour), WithMaxAttempts(3))
	ctx := context.Background()

	api.FailNext(http.StatusServiceUnavailable, http.StatusBadGateway)
	resp, err := Fetch[listPage](ctx, h.exec, "/api/aplicacoes")
	require.NoError(t, err)
	assert.True(t, resp.Succeeded)
	assert.EqualValues(t, 3, api.Hits(http.MethodGet, "/api/aplicacoes"))
}

func TestExecutorRetryExhausted(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour), WithMaxAttempts(3))

	api.FailNext(503, 503, 503, 503)
	_, err := Fetch[listPage](context.Background(), h.exec, "/api/aplicacoes")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 503, AsError(err).StatusCode)
	assert.Equal(t, http.MethodGet, AsError(err).Method)
	assert.Equal(t, "/api/aplicacoes", AsError(err).Path)
	assert.EqualValues(t, 3, api.Hits(http.MethodGet, "/api/aplicacoes"), "attempts are bounded")
}

func TestExecutorDoesNotRetryTerminalFailures(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour), WithMaxAttempts(3))

	api.FailNext(http.StatusBadRequest)
	_, err := Replace[string](context.Background(), h.exec, "/api/perfis/x", map[string]any{"nome": "Admin"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.EqualValues(t, 1, api.Hits(http.MethodPut, "/api/perfis/x"))
}

func TestExecutorSingleRefreshForConcurrentCallers(t *testing.T) {
	api := fakeapi.New()
	api.DelayRefresh(50 * time.Millisecond)
	h := newHarness(t, api, issue(t, api, -time.Minute))

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Fetch[listPage](context.Background(), h.exec, "/api/utilizadores", NoCache())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, api.RefreshCalls(), "concurrent callers must share one refresh")
	assert.EqualValues(t, callers, api.Hits(http.MethodGet, "/api/utilizadores"))
	assert.Empty(t, h.nav.Calls())
}

func TestExecutorRefreshFollowsClock(t *testing.T) {
	clock := newFakeClock(time.Now())
	api := fakeapi.New(fakeapi.WithClock(clock.Now), fakeapi.WithAccessTTL(15*time.Minute))
	h := newHarness(t, api, issue(t, api, 15*time.Minute),
		WithCoordinatorOptions(WithClock(clock.Now), WithExpirySkew(30*time.Second)))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/clientes", NoCache())
	require.NoError(t, err)
	before := api.LastHeaders().Get(HeaderAuthorization)
	assert.Zero(t, api.RefreshCalls())

	// inside the skew window the token counts as expired
	clock.Advance(15*time.Minute - 10*time.Second)

	_, err = Fetch[listPage](ctx, h.exec, "/api/clientes", NoCache())
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.RefreshCalls())
	after := api.LastHeaders().Get(HeaderAuthorization)
	assert.NotEqual(t, before, after, "the refreshed token must be sent")

	stored, err := h.exec.Session()
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+stored.AccessToken, after)
}

func TestExecutorRefreshRejected(t *testing.T) {
	api := fakeapi.New()
	api.RejectRefresh(http.StatusUnauthorized)
	api.DelayRefresh(30 * time.Millisecond)
	h := newHarness(t, api, issue(t, api, -time.Minute))

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Fetch[listPage](context.Background(), h.exec, "/api/licencas")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefreshFailed)
	}
	assert.EqualValues(t, 1, api.RefreshCalls())
	assert.Zero(t, api.Hits(http.MethodGet, "/api/licencas"), "no data call without a valid token")
	assert.Equal(t, []string{DefaultLoginPath}, h.nav.Calls(), "navigate to login exactly once")

	stored, err := h.exec.Session()
	require.NoError(t, err)
	assert.True(t, stored.Empty(), "credentials must be cleared")

	_, err = Fetch[listPage](context.Background(), h.exec, "/api/licencas")
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Len(t, h.nav.Calls(), 1)
}

func TestExecutorServerRejectsSession(t *testing.T) {
	api := fakeapi.New()
	// locally valid, but not signed by the server
	foreign := AuthSession{AccessToken: mintToken(t, "admin", time.Now().Add(time.Hour)), RefreshToken: "r"}
	h := newHarness(t, api, foreign, WithMaxAttempts(3))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/perfis")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.EqualValues(t, 1, api.Hits(http.MethodGet, "/api/perfis"), "401 is not retried")
	assert.Equal(t, []string{DefaultLoginPath}, h.nav.Calls())

	stored, err := h.exec.Session()
	require.NoError(t, err)
	assert.True(t, stored.Empty())
}

func TestExecutorExpiredWithoutRefreshToken(t *testing.T) {
	api := fakeapi.New()
	session := issue(t, api, -time.Minute)
	session.RefreshToken = ""
	h := newHarness(t, api, session)

	_, err := Fetch[listPage](context.Background(), h.exec, "/api/perfis")
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Zero(t, api.RefreshCalls())
	assert.Len(t, h.nav.Calls(), 1)
}

func TestExecutorAnonymousCalls(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, AuthSession{})
	ctx := context.Background()

	pair, err := Create[refreshData](ctx, h.exec, "/api/auth/login",
		map[string]string{"username": fakeapi.DefaultUser, "password": fakeapi.DefaultPassword}, Anonymous())
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Data.AccessToken)
	assert.Empty(t, h.nav.Calls(), "anonymous calls never navigate")

	require.NoError(t, h.exec.SetSession(AuthSession{AccessToken: pair.Data.AccessToken, RefreshToken: pair.Data.RefreshToken}))
	_, err = Fetch[listPage](ctx, h.exec, "/api/aplicacoes")
	require.NoError(t, err)
}

func TestExecutorSendsHeaders(t *testing.T) {
	api := fakeapi.New(fakeapi.WithAPIKey("key-1"))
	h := newHarness(t, api, issue(t, api, time.Hour),
		WithTenant("acme"),
		WithAPIKey("key-1"),
		WithLocale("en"),
		WithFunctionalArea("5"),
		WithRequestIDGenerator(func() string { return "req-42" }),
	)

	_, err := Fetch[listPage](context.Background(), h.exec, "/api/modulos", FunctionalArea("9"))
	require.NoError(t, err)

	headers := api.LastHeaders()
	assert.Equal(t, "acme", headers.Get(HeaderTenant))
	assert.Equal(t, "key-1", headers.Get(HeaderAPIKey))
	assert.Equal(t, "en", headers.Get(HeaderAcceptLanguage))
	assert.Equal(t, "9", headers.Get(HeaderFunctionalArea))
	assert.Equal(t, "req-42", headers.Get(HeaderRequestID))
	assert.Contains(t, headers.Get(HeaderAuthorization), "Bearer ")
}

func TestExecutorLogoutPurgesCache(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/clientes")
	require.NoError(t, err)
	require.Equal(t, 1, h.exec.Cache().Store().Len())

	require.NoError(t, h.exec.Logout())
	assert.Zero(t, h.exec.Cache().Store().Len())
	assert.Empty(t, h.nav.Calls(), "logout does not navigate")

	_, err = Fetch[listPage](ctx, h.exec, "/api/clientes")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExecutorDeleteWithBody(t *testing.T) {
	api := fakeapi.New()
	a := api.Seed("perfis", map[string]any{"nome": "A"})
	b := api.Seed("perfis", map[string]any{"nome": "B"})
	h := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	removed, err := DeleteWithBody[int](ctx, h.exec, "/api/perfis", map[string][]string{"ids": {a, b, "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Data)

	_, err = Delete[string](ctx, h.exec, "/api/perfis/"+a)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, AsError(err).StatusCode)
}

func TestExecutorDoRawResponse(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour), WithRequestIDGenerator(func() string { return "raw-1" }))

	raw, err := h.exec.Do(context.Background(), Request{Path: "/api/licencas"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Equal(t, "raw-1", raw.RequestID)
	assert.Contains(t, string(raw.Body), `"succeeded":true`)
}

func TestExecutorCancelledContext(t *testing.T) {
	api := fakeapi.New()
	h := newHarness(t, api, issue(t, api, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.Error(t, err)
	assert.False(t, IsTransient(err), "a cancelled call is not retried")
}

func TestExecutorsDoNotShareState(t *testing.T) {
	api := fakeapi.New()
	one := newHarness(t, api, issue(t, api, time.Hour))
	two := newHarness(t, api, issue(t, api, time.Hour))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, one.exec, "/api/clientes")
	require.NoError(t, err)
	resp, err := Fetch[listPage](ctx, two.exec, "/api/clientes")
	require.NoError(t, err)
	assert.False(t, resp.FromCache)

	require.NoError(t, one.exec.Logout())
	s, err := two.exec.Session()
	require.NoError(t, err)
	assert.False(t, s.Empty())
}

func sessionFor(t *testing.T, api *fakeapi.API, subject, tenant string) AuthSession {
	t.Helper()
	access, refresh, err := api.IssueSession(subject, time.Hour)
	require.NoError(t, err)
	return AuthSession{AccessToken: access, RefreshToken: refresh, Tenant: tenant}
}

func TestExecutorsSharingACacheStoreAreScoped(t *testing.T) {
	tests := []struct {
		name   string
		first  [2]string
		second [2]string
	}{
		{name: "different tenants", first: [2]string{"admin", "tenant-a"}, second: [2]string{"admin", "tenant-b"}},
		{name: "different users", first: [2]string{"admin", "acme"}, second: [2]string{"maria", "acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := fakeapi.New()
			api.Seed("clientes", map[string]any{"nome": "Cliente"})
			shared := NewMemoryStore()
			a := newHarness(t, api, sessionFor(t, api, tt.first[0], tt.first[1]), WithCacheStore(shared, time.Minute))
			b := newHarness(t, api, sessionFor(t, api, tt.second[0], tt.second[1]), WithCacheStore(shared, time.Minute))
			ctx := context.Background()
			require.NotEqual(t, a.exec.CacheScope(), b.exec.CacheScope())

			_, err := Fetch[listPage](ctx, a.exec, "/api/clientes")
			require.NoError(t, err)
			resp, err := Fetch[listPage](ctx, b.exec, "/api/clientes")
			require.NoError(t, err)
			assert.False(t, resp.FromCache, "one scope must never serve another")
			assert.EqualValues(t, 2, api.Hits(http.MethodGet, "/api/clientes"))
			require.Equal(t, 2, shared.Len())

			require.NoError(t, b.exec.SetSession(sessionFor(t, api, "outro", tt.second[1])))
			assert.Equal(t, 1, shared.Len(), "a new session drops only its predecessor's reads")

			resp, err = Fetch[listPage](ctx, a.exec, "/api/clientes")
			require.NoError(t, err)
			assert.True(t, resp.FromCache)

			require.NoError(t, a.exec.Logout())
			assert.Zero(t, shared.Len())
		})
	}
}

func TestExecutorLogoutReachesReadsOfEarlierProcesses(t *testing.T) {
	api := fakeapi.New()
	session := issue(t, api, time.Hour)
	shared := NewMemoryStore()
	earlier := newHarness(t, api, session, WithCacheStore(shared, time.Minute))
	_, err := Fetch[listPage](context.Background(), earlier.exec, "/api/perfis")
	require.NoError(t, err)
	require.Equal(t, 1, shared.Len())

	later := newHarness(t, api, session, WithCacheStore(shared, time.Minute))
	require.NoError(t, later.exec.Logout())
	assert.Zero(t, shared.Len())
}

// flakyStore fails every prefix delete, like a remote tier that is down.
type flakyStore struct {
	*MemoryStore
}

func (flakyStore) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestExecutorWriteHidesEntriesTheStoreFailedToDrop(t *testing.T) {
	api := fakeapi.New()
	id := api.Seed("licencas", map[string]any{"nome": "Básica"})
	l2 := flakyStore{NewMemoryStore()}
	h := newHarness(t, api, issue(t, api, time.Hour), WithCacheStore(NewTieredStore(NewMemoryStore(), l2), time.Minute))
	ctx := context.Background()

	_, err := Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)
	require.Equal(t, 1, l2.Len())

	_, err = Replace[string](ctx, h.exec, "/api/licencas/"+id, map[string]any{"nome": "Premium"})
	require.NoError(t, err, "the write itself succeeded")
	require.Equal(t, 1, l2.Len(), "the remote tier kept its entry")

	resp, err := Fetch[listPage](ctx, h.exec, "/api/licencas")
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "Premium", resp.Data.Items[0]["nome"])
	assert.EqualValues(t, 2, api.Hits(http.MethodGet, "/api/licencas"))
}
