package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/fuzzy"
	"github.com/cloudutil/cloudutil/internal/providers"
)

// NewAWSCommand builds the `cloudutil aws` command group.
func NewAWSCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aws",
		Short: "AWS console login, STS decoding, and secret search",
	}

	cmd.AddCommand(
		newAWSLoginCommand(root),
		newAWSDecodeCommand(root),
		newAWSSSMCommand(root),
		newAWSSecretsCommand(root),
	)
	return cmd
}

// awsFlags adds the shared credential flags to a command.
func awsFlags(cmd *cobra.Command, opts *providers.AWSOptions) {
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVar(&opts.Region, "region", "", "AWS region override")
}

func newAWSLoginCommand(root *Root) *cobra.Command {
	var (
		awsOpts    providers.AWSOptions
		duration   time.Duration
		policyFile string
		noOpen     bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open the AWS console via a federated sign-in link",
		Long: `Exchange the current IAM user credentials for a federation token and
open a single-use console sign-in URL in the browser.

The session carries at most the intersection of the session policy and
the calling user's own permissions. Assumed-role credentials cannot call
GetFederationToken; use a long-lived IAM user.

Examples:
  cloudutil aws login --profile ops
  cloudutil aws login --duration 8h --policy-file readonly.json
  cloudutil aws login --no-open   # print the URL instead`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := providers.NewSTSService(cmd.Context(), awsOpts, root.Logger)
			if err != nil {
				return err
			}

			opts := providers.LoginOptions{Duration: duration}
			if policyFile != "" {
				policy, err := os.ReadFile(policyFile)
				if err != nil {
					return cuerrors.UserError{
						Message:    fmt.Sprintf("Failed to read policy file %s", policyFile),
						Details:    err.Error(),
						Suggestion: "Check the path passed to --policy-file",
						Err:        err,
					}
				}
				opts.Policy = string(policy)
			}

			loginURL, err := svc.ConsoleLoginURL(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(root.Out, loginURL)
			if noOpen {
				return nil
			}
			if err := browser.OpenURL(loginURL); err != nil {
				root.Logger.Warn("Could not open a browser: %v", err)
			}
			return nil
		},
	}

	awsFlags(cmd, &awsOpts)
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Session lifetime (15m to 36h)")
	cmd.Flags().StringVar(&policyFile, "policy-file", "", "Session policy JSON file")
	cmd.Flags().BoolVar(&noOpen, "no-open", false, "Print the URL without opening a browser")
	return cmd
}

func newAWSDecodeCommand(root *Root) *cobra.Command {
	var awsOpts providers.AWSOptions

	cmd := &cobra.Command{
		Use:   "decode <encoded-message>",
		Short: "Decode an STS authorization failure message",
		Long: `Decode the opaque "encoded authorization failure message" that AWS APIs
return on access denial, and pretty-print the policy evaluation inside.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := providers.NewSTSService(cmd.Context(), awsOpts, root.Logger)
			if err != nil {
				return err
			}

			decoded, err := svc.DecodeMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(root.Out, decoded)
			return nil
		},
	}

	awsFlags(cmd, &awsOpts)
	return cmd
}

func newAWSSSMCommand(root *Root) *cobra.Command {
	var (
		awsOpts providers.AWSOptions
		prefix  string
	)

	cmd := &cobra.Command{
		Use:   "ssm",
		Short: "Search SSM parameters and print selected values",
		Long: `List SSM Parameter Store parameters under a path prefix, pick one or
more interactively with fzf, and print their decrypted values.

Examples:
  cloudutil aws ssm --prefix /prod
  cloudutil aws ssm --prefix /prod/db --profile ops`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := providers.NewSSMStore(cmd.Context(), awsOpts, root.Logger)
			if err != nil {
				return err
			}

			names, err := store.ListParameters(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			selected, err := fuzzy.NewSelector(root.Logger).Select(cmd.Context(), names, "parameter")
			if err != nil {
				return err
			}

			for _, name := range selected {
				buf, err := store.GetParameter(cmd.Context(), name)
				if err != nil {
					return err
				}
				value, err := buf.Reveal()
				if err != nil {
					return err
				}
				fmt.Fprintf(root.Out, "%s = %s\n", name, value)
			}
			return nil
		},
	}

	awsFlags(cmd, &awsOpts)
	cmd.Flags().StringVar(&prefix, "prefix", "/", "Parameter path prefix")
	return cmd
}

func newAWSSecretsCommand(root *Root) *cobra.Command {
	var (
		awsOpts providers.AWSOptions
		filter  string
	)

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Search Secrets Manager and print selected values",
		Long: `List Secrets Manager secrets (optionally narrowed by a name filter),
pick one or more interactively with fzf, and print their values.

Examples:
  cloudutil aws secrets
  cloudutil aws secrets --filter prod --region eu-west-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := providers.NewSecretsStore(cmd.Context(), awsOpts, root.Logger)
			if err != nil {
				return err
			}

			names, err := store.ListSecrets(cmd.Context(), filter)
			if err != nil {
				return err
			}

			selected, err := fuzzy.NewSelector(root.Logger).Select(cmd.Context(), names, "secret")
			if err != nil {
				return err
			}

			for _, name := range selected {
				buf, err := store.GetSecret(cmd.Context(), name)
				if err != nil {
					return err
				}
				value, err := buf.Reveal()
				if err != nil {
					return err
				}
				fmt.Fprintf(root.Out, "%s = %s\n", name, value)
			}
			return nil
		},
	}

	awsFlags(cmd, &awsOpts)
	cmd.Flags().StringVar(&filter, "filter", "", "Server-side secret name filter")
	return cmd
}
