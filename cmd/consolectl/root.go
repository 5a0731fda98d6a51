package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devgrupoglobalsoft/apiexec"
)

// global flags
var userConfig string

const (
	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"

	ServerKey      = "server"
	TenantKey      = "tenant"
	APIKeyKey      = "api_key"
	LocaleKey      = "locale"
	CredentialsKey = "credentials"

	CacheBackendKey = "cache.backend"
	CacheTTLKey     = "cache.ttl"
	CacheRedisKey   = "cache.redis_url"
	CacheSizeKey    = "cache.size_mb"

	MaxAttemptsKey  = "retry.max_attempts"
	RetryBackoffKey = "retry.backoff"
	TimeoutKey      = "timeout"
)

var rootCmd = &cobra.Command{
	Use:     "consolectl",
	Short:   fmt.Sprintf("Console administration CLI (version: %s)", apiexec.Version),
	Version: apiexec.Version,
	Long: `consolectl talks to the console API: licenses, applications, modules,
users, profiles and clients. The session obtained by "consolectl login" is
stored locally and refreshed on demand.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		initLogging()
		if configErr != nil {
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var quiet quietError
		if !errors.As(err, &quiet) {
			reportError(err)
		}
		os.Exit(1)
	}
}

func init() {
	initDefaultLogging()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&userConfig, "config", "",
		"Configuration file (default is ./.consolectl.yaml or $HOME/.consolectl.yaml)")

	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, flags.Lookup("log-level"))

	flags.String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(LogFormatKey, flags.Lookup("log-format"))

	flags.Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(LogNoColorKey, flags.Lookup("no-color"))

	flags.String("server", "", "Base URL of the console API")
	_ = viper.BindPFlag(ServerKey, flags.Lookup("server"))

	flags.String("tenant", "", "Tenant sent with every request")
	_ = viper.BindPFlag(TenantKey, flags.Lookup("tenant"))

	flags.String("api-key", "", "API key sent as X-API-Key")
	_ = viper.BindPFlag(APIKeyKey, flags.Lookup("api-key"))

	flags.String("locale", apiexec.DefaultLocale, "Locale for Accept-Language and messages")
	_ = viper.BindPFlag(LocaleKey, flags.Lookup("locale"))

	flags.String("credentials", "", "Credential file (default is $HOME/.consolectl/credentials.json)")
	_ = viper.BindPFlag(CredentialsKey, flags.Lookup("credentials"))

	flags.String("cache", "memory", "Response cache backend (memory, bigcache, redis, none)")
	_ = viper.BindPFlag(CacheBackendKey, flags.Lookup("cache"))

	viper.SetDefault(CacheTTLKey, apiexec.DefaultCacheTTL)
	viper.SetDefault(CacheSizeKey, 64)
	viper.SetDefault(MaxAttemptsKey, 3)
	viper.SetDefault(RetryBackoffKey, "exponential")
	viper.SetDefault(TimeoutKey, "30s")

	viper.SetEnvPrefix("CONSOLECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		config, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(config + "/consolectl")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".consolectl")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
