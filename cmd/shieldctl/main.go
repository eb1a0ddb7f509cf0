// Command shieldctl is the operator CLI for shield vaults.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "shieldctl",
	Short: "Operator tooling for shield vaults",
	Long: `shieldctl drives shield vaults from the command line.

Available subcommands:
  simulate - Run an end-to-end scenario on an in-memory vault
  keygen   - Generate a Neo N3 key pair for configuring principals
  version  - Print the CLI version`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shieldctl %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd, keygenCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
