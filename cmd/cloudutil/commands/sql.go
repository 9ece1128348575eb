package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/sqlconf"
)

// NewSQLCommand builds the `cloudutil sql` command group.
func NewSQLCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Declarative SQL server provisioning",
		Long: `Provision databases, extensions, users, and privileges on a SQL server
from a YAML desired-state file. Reconciliation is idempotent: existing
resources are probed first and only the missing pieces are created.`,
	}

	cmd.AddCommand(
		newSQLExecuteCommand(root),
		newSQLValidateCommand(root),
	)
	return cmd
}

func newSQLExecuteCommand(root *Root) *cobra.Command {
	var (
		configFile string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Reconcile a server against a desired-state file",
		Long: `Connect to the configured server and converge it to the desired state:
databases first, then extensions, users, and privileges. Failures in one
resource are reported and the run continues; only a connection failure
aborts.

Examples:
  # Apply a desired state
  cloudutil sql execute -c databases.yaml

  # Machine-readable change report
  cloudutil sql execute -c databases.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return cuerrors.UserError{
					Message:    "Configuration file is required",
					Suggestion: "Use -c <file> to point at the desired-state YAML",
				}
			}

			cfg, err := sqlconf.Load(configFile)
			if err != nil {
				return err
			}

			provider, err := sqlconf.New(cfg, root.Logger)
			if err != nil {
				return err
			}

			execErr := provider.Execute(cmd.Context())
			summary := provider.Report().Summary()

			if jsonOutput {
				report := struct {
					Changes []sqlconf.Change `json:"changes"`
					Summary sqlconf.Summary  `json:"summary"`
				}{provider.Report().Changes(), summary}

				enc := json.NewEncoder(root.Out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
			} else {
				for _, change := range provider.Report().Changes() {
					line := fmt.Sprintf("%-6s %-9s %s", change.Op, change.Resource, change.Name)
					if change.Error != "" {
						line += "  (" + change.Error + ")"
					}
					fmt.Fprintln(root.Out, line)
				}
				fmt.Fprintln(root.Out, summary.String())
			}

			if execErr != nil {
				return execErr
			}
			if summary.Failed > 0 {
				return cuerrors.UserError{
					Message:    fmt.Sprintf("%d resource(s) could not be reconciled", summary.Failed),
					Suggestion: "Inspect the error entries in the change report above",
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "c", "", "Desired-state YAML file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the change report as JSON")
	return cmd
}

func newSQLValidateCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a desired-state file without connecting",
		Long: `Check a desired-state file against the configuration schema and the
structural rules (port range, mutually exclusive access flags, privilege
targets). No server connection is made; ${VAR} references must still
resolve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return cuerrors.UserError{
					Message:    fmt.Sprintf("Failed to read %s", args[0]),
					Details:    err.Error(),
					Suggestion: "Check the file path and permissions",
					Err:        err,
				}
			}

			if err := sqlconf.ValidateDocument(data); err != nil {
				return err
			}
			if _, err := sqlconf.Parse(data); err != nil {
				return err
			}

			root.Logger.Info("%s is valid", args[0])
			return nil
		},
	}
	return cmd
}
