package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudutil/cloudutil/cmd/cloudutil/commands"
	"github.com/cloudutil/cloudutil/internal/logging"
	"github.com/cloudutil/cloudutil/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Wipe any secret material still held in protected memory once the
	// command finishes.
	defer secure.Purge()

	var (
		noColor bool
		debug   bool
	)

	root := &commands.Root{Out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:   "cloudutil",
		Short: "Cloud provisioning and secret utilities for AWS, Azure, and SQL servers",
		Long: `cloudutil bundles the day-to-day cloud plumbing: declarative SQL server
provisioning from a YAML desired state, AWS console login and secret
search, and Azure Key Vault access.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			root.Logger = logging.New(debug, noColor)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewSQLCommand(root),
		commands.NewAWSCommand(root),
		commands.NewAzureCommand(root),
	)

	return rootCmd.Execute()
}
