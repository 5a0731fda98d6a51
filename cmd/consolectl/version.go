package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devgrupoglobalsoft/apiexec"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionOutput == "" {
			fmt.Printf("consolectl %s\n", apiexec.CurrentBuild())
			return nil
		}
		return writeDocument(os.Stdout, versionOutput, apiexec.CurrentBuild())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("consolectl %s\n", apiexec.CurrentBuild()))

	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "Output format (json, yaml)")
}
