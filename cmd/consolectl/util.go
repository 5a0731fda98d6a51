package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/devgrupoglobalsoft/apiexec"
	"github.com/devgrupoglobalsoft/apiexec/services"
)

var (
	greenCheck = color.New(color.FgGreen).Sprint("✔")
	redCross   = color.New(color.FgRed).Sprint("✘")
	yellowBang = color.New(color.FgYellow).Sprint("!")
	bold       = color.New(color.Bold).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
)

// quietError signals that the failure was already reported.
type quietError struct{}

func (quietError) Error() string {
	return "error already reported"
}

func logSuccess(format string, args ...any) {
	fmt.Printf("%s %s\n", greenCheck, fmt.Sprintf(format, args...))
}

// reportError prints err the way a user should read it: the localized
// message, or the server's validation messages, with the request id at
// debug level.
func reportError(err error) {
	var ce *apiexec.Error
	if !errors.As(err, &ce) {
		log.Error().Err(err).Msgf("%s command failed", redCross)
		return
	}

	if ce.Kind == apiexec.KindValidation {
		log.Error().Msgf("%s request rejected", redCross)
		for _, msg := range ce.Messages() {
			log.Error().Msgf("  - %s", msg)
		}
	} else {
		log.Error().Msgf("%s %s", redCross, ce.UserMessage(viper.GetString(LocaleKey)))
	}
	log.Debug().Str("requestID", ce.RequestID).Str("kind", ce.Kind.String()).Err(ce.Cause).Msg("request details")
	if ce.Kind == apiexec.KindAuth {
		log.Warn().Msgf("%s run %s to start a new session", yellowBang, bold("consolectl login"))
	}
}

// console builds the service bundle from the current configuration. The
// returned closer releases the cache backend.
func console(ctx context.Context) (*services.Console, *apiexec.Executor, func(), error) {
	server := viper.GetString(ServerKey)
	if server == "" {
		return nil, nil, nil, errors.New("server address not configured, provide via --server or env")
	}

	store, err := credentialStore()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := apiexec.NewZerologLogger(log.Logger)
	opts := []apiexec.Option{
		apiexec.WithLogger(logger),
		apiexec.WithTenant(viper.GetString(TenantKey)),
		apiexec.WithLocale(viper.GetString(LocaleKey)),
		apiexec.WithAPIKey(viper.GetString(APIKeyKey)),
		apiexec.WithMaxAttempts(viper.GetInt(MaxAttemptsKey)),
		apiexec.WithTimeout(viper.GetDuration(TimeoutKey)),
		apiexec.WithNavigator(func(string) {
			log.Warn().Msgf("%s session expired, run %s", yellowBang, bold("consolectl login"))
		}),
	}

	switch b := strings.ToLower(viper.GetString(RetryBackoffKey)); b {
	case "", "exponential":
	case "constant":
		opts = append(opts, apiexec.WithConstantBackoff())
	default:
		return nil, nil, nil, fmt.Errorf("unknown retry backoff %q, use exponential or constant", b)
	}

	cacheOpt, closer, err := cacheOption(ctx, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append(opts, cacheOpt)

	exec, err := apiexec.New(server, store, opts...)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return services.New(exec), exec, closer, nil
}

func credentialStore() (*apiexec.FileCredentialStore, error) {
	path := viper.GetString(CredentialsKey)
	if path == "" {
		p, err := apiexec.DefaultCredentialPath()
		if err != nil {
			return nil, fmt.Errorf("locating credential file: %w", err)
		}
		path = p
	}
	return apiexec.NewFileCredentialStore(path), nil
}

// cacheOption maps the cache backend setting to an executor option. A redis
// backend is fronted by bigcache so repeated reads stay in process.
func cacheOption(ctx context.Context, logger apiexec.Logger) (apiexec.Option, func(), error) {
	ttl := viper.GetDuration(CacheTTLKey)
	noop := func() {}

	switch backend := strings.ToLower(viper.GetString(CacheBackendKey)); backend {
	case "", "memory":
		return apiexec.WithCache(ttl), noop, nil
	case "none", "off":
		return apiexec.WithoutCache(), noop, nil
	case "bigcache":
		bc, err := newBigCache(ctx, ttl, logger)
		if err != nil {
			return nil, nil, err
		}
		return apiexec.WithCacheStore(bc, ttl), func() { _ = bc.Close() }, nil
	case "redis":
		client, err := apiexec.NewRedisClient(ctx, viper.GetString(CacheRedisKey))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		bc, err := newBigCache(ctx, ttl, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		l2 := apiexec.NewRedisStore(client, apiexec.WithRedisLogger(logger))
		closer := func() {
			_ = bc.Close()
			_ = l2.Close()
		}
		return apiexec.WithCacheStore(apiexec.NewTieredStore(bc, l2), ttl), closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func newBigCache(ctx context.Context, ttl time.Duration, logger apiexec.Logger) (*apiexec.BigCacheStore, error) {
	return apiexec.NewBigCacheStore(ctx, apiexec.BigCacheConfig{
		LifeWindow: ttl,
		SizeMB:     viper.GetInt(CacheSizeKey),
	}, logger)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
