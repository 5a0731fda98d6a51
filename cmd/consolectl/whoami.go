package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, exec, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		resp, err := c.Auth.Me(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", bold("user:  "), resp.Data.Subject)
		fmt.Printf("%s %s\n", bold("tenant:"), resp.Data.Tenant)

		session, err := exec.Session()
		if err != nil {
			return err
		}
		if exp, err := session.AccessTokenExpiry(); err == nil {
			fmt.Printf("%s %s %s\n", bold("token: "), exp.Local().Format(time.RFC3339),
				faint(fmt.Sprintf("(in %s)", time.Until(exp).Round(time.Second))))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
