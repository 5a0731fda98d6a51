// Package apiexec is the request path shared by every service of the
// licensing admin console. One Executor composes:
//
//   - Token renewal: the access token's exp claim is decoded locally on every
//     call; when it has passed, exactly one refresh is sent no matter how many
//     callers noticed, and all of them observe its outcome
//   - A response cache for reads, keyed by tenant and user, verb, path and
//     body, with invalidation by resource family after every successful write
//   - Bounded retries with capped exponential backoff, for transient failures only
//   - One error taxonomy: KindValidation, KindAuth, KindTransient, KindUnknown
//   - Prometheus metrics and pluggable structured logging
//
// Typical usage:
//
//	store := apiexec.NewFileCredentialStore(path)
//	exec, err := apiexec.New("https://api.example.com", store,
//	    apiexec.WithTenant("acme"),
//	    apiexec.WithAPIKey(key),
//	    apiexec.WithNavigator(func(path string) { router.Go(path) }),
//	)
//	resp, err := apiexec.Fetch[[]License](ctx, exec, "/api/licencas")
//
// Validation failures are not exceptional: the decoded Response comes back
// together with a KindValidation *Error carrying the server messages.
// Auth failures clear the session and send the navigator to the login path
// once, however many calls failed at the same time.
package apiexec
