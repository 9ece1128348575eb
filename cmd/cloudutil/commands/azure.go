package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudutil/cloudutil/internal/fuzzy"
	"github.com/cloudutil/cloudutil/internal/providers"
)

// NewAzureCommand builds the `cloudutil azure` command group.
func NewAzureCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "azure",
		Short: "Azure Key Vault secret access",
	}

	cmd.AddCommand(newAzureSecretsCommand(root))
	return cmd
}

func newAzureSecretsCommand(root *Root) *cobra.Command {
	var (
		vault  string
		filter string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "List and fetch Key Vault secrets",
		Long: `Fetch a named secret directly, or list the vault's secrets, pick one or
more interactively with fzf, and print their values. Authentication uses
the default Azure credential chain (environment, managed identity,
Azure CLI).

Examples:
  cloudutil azure secrets --vault ops-vault
  cloudutil azure secrets --vault ops-vault --filter db
  cloudutil azure secrets --vault ops-vault --name db-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := providers.NewKeyVault(vault, root.Logger)
			if err != nil {
				return err
			}

			var selected []string
			if name != "" {
				selected = []string{name}
			} else {
				names, err := kv.ListSecrets(cmd.Context(), filter)
				if err != nil {
					return err
				}
				selected, err = fuzzy.NewSelector(root.Logger).Select(cmd.Context(), names, "secret")
				if err != nil {
					return err
				}
			}

			for _, secretName := range selected {
				buf, err := kv.GetSecret(cmd.Context(), secretName)
				if err != nil {
					return err
				}
				value, err := buf.Reveal()
				if err != nil {
					return err
				}
				fmt.Fprintf(root.Out, "%s = %s\n", secretName, value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&vault, "vault", "", "Key Vault name or full URL (required)")
	cmd.Flags().StringVar(&filter, "filter", "", "Case-insensitive name filter for listing")
	cmd.Flags().StringVar(&name, "name", "", "Fetch this secret directly, skipping selection")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}
