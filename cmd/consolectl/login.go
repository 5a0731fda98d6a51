package main

import (
	"errors"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devgrupoglobalsoft/apiexec/services"
)

const (
	UsernameKey = "username"
	PasswordKey = "password"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the console API",
	Long: `Exchanges a username and password for a session. The session is saved
to the credential file and refreshed automatically by later commands.`,
	Example: `  consolectl login --server https://console.example.com --username admin
  CONSOLECTL_PASSWORD=secret consolectl login --username admin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username := viper.GetString(UsernameKey)
		password := viper.GetString(PasswordKey)
		if username == "" || password == "" {
			return errors.New("username and password are required, provide via flags or env")
		}

		c, _, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		host := viper.GetString(ServerKey)
		if u, err := url.Parse(host); err == nil && u.Host != "" {
			host = u.Host
		}
		log.Info().Msgf("Logging in to %q...", host)

		if _, err := c.Auth.Login(cmd.Context(), username, password); err != nil {
			return err
		}

		if fs, err := credentialStore(); err == nil {
			log.Debug().Str("path", fs.Path()).Msg("session saved")
		}
		logSuccess("logged in as %s", bold(username))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session and its cached reads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentialStore()
		if err != nil {
			return err
		}
		if s, err := store.Get(); err != nil || s.Empty() {
			logSuccess("no session stored")
			return nil
		}

		c, _, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()
		return logout(c)
	},
}

// logout goes through the auth service so the executor drops the session's
// cached reads, including those held by a shared redis tier.
func logout(c *services.Console) error {
	if err := c.Auth.Logout(); err != nil {
		return err
	}
	logSuccess("logged out")
	return nil
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password <email>",
	Short: "Request a password reset e-mail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		if _, err := c.Auth.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
			return err
		}
		logSuccess("password reset requested for %s", bold(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, forgotPasswordCmd)

	loginCmd.Flags().String("username", "", "Username")
	_ = viper.BindPFlag(UsernameKey, loginCmd.Flags().Lookup("username"))
	loginCmd.Flags().String("password", "", "Password (prefer CONSOLECTL_PASSWORD)")
	_ = viper.BindPFlag(PasswordKey, loginCmd.Flags().Lookup("password"))
}
