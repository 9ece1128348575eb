package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
	"github.com/cloudutil/cloudutil/internal/secure"
)

// KeyVaultClientAPI defines the interface for Azure Key Vault secret reads.
// This allows for mocking in tests.
type KeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// secretLister enumerates secret names. The SDK's pager type is awkward to
// mock, so listing goes through this function instead of the client
// interface; tests substitute a canned lister.
type secretLister func(ctx context.Context) ([]string, error)

// KeyVault reads secrets from one Azure Key Vault.
type KeyVault struct {
	client KeyVaultClientAPI
	list   secretLister
	logger *logging.Logger
	vault  string
}

// KeyVaultOption is a functional option for configuring the vault client.
type KeyVaultOption func(*KeyVault)

// WithKeyVaultClient sets a custom Key Vault client (for testing).
func WithKeyVaultClient(client KeyVaultClientAPI) KeyVaultOption {
	return func(k *KeyVault) {
		k.client = client
	}
}

// WithSecretLister sets a custom secret lister (for testing).
func WithSecretLister(list secretLister) KeyVaultOption {
	return func(k *KeyVault) {
		k.list = list
	}
}

// VaultURL renders the standard public-cloud vault URL for a vault name.
// A full https:// URL is passed through unchanged.
func VaultURL(vault string) string {
	if strings.HasPrefix(vault, "https://") {
		return vault
	}
	return fmt.Sprintf("https://%s.vault.azure.net/", vault)
}

// NewKeyVault creates a Key Vault reader authenticated through the default
// Azure credential chain (env, workload identity, managed identity, CLI).
func NewKeyVault(vault string, logger *logging.Logger, opts ...KeyVaultOption) (*KeyVault, error) {
	if vault == "" {
		return nil, cuerrors.ConfigError{
			Field:      "vault",
			Message:    "vault name is required",
			Suggestion: "Pass --vault with the Key Vault name or full URL",
		}
	}

	k := &KeyVault{logger: logger, vault: vault}

	for _, opt := range opts {
		opt(k)
	}

	if k.client == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build Azure credential: %w", err)
		}
		client, err := azsecrets.NewClient(VaultURL(vault), cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		k.client = client
		k.list = func(ctx context.Context) ([]string, error) {
			return listSecretNames(ctx, client)
		}
	}
	if k.list == nil {
		return nil, fmt.Errorf("no secret lister configured")
	}
	return k, nil
}

// listSecretNames walks the properties pager and collects secret names.
func listSecretNames(ctx context.Context, client *azsecrets.Client) ([]string, error) {
	var names []string

	pager := client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			if item.ID != nil {
				names = append(names, item.ID.Name())
			}
		}
	}
	return names, nil
}

// ListSecrets returns the vault's secret names, optionally narrowed by a
// case-insensitive substring filter.
func (k *KeyVault) ListSecrets(ctx context.Context, filter string) ([]string, error) {
	names, err := k.list(ctx)
	if err != nil {
		return nil, cuerrors.UserError{
			Message:    fmt.Sprintf("Failed to list secrets in vault %q", k.vault),
			Details:    err.Error(),
			Suggestion: keyVaultErrorSuggestion(err),
			Err:        err,
		}
	}

	if filter == "" {
		return names, nil
	}
	needle := strings.ToLower(filter)
	var filtered []string
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), needle) {
			filtered = append(filtered, name)
		}
	}
	return filtered, nil
}

// GetSecret fetches the current version of one secret inside a locked
// buffer.
func (k *KeyVault) GetSecret(ctx context.Context, name string) (*secure.Buffer, error) {
	k.logger.Debug("Fetching secret %s from vault %s", name, k.vault)

	resp, err := k.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, cuerrors.UserError{
				Message:    fmt.Sprintf("Secret not found: %s", name),
				Suggestion: "Check the secret name; disabled and deleted secrets cannot be read",
				Details:    err.Error(),
				Err:        err,
			}
		}
		return nil, cuerrors.UserError{
			Message:    fmt.Sprintf("Failed to get secret %q", name),
			Details:    err.Error(),
			Suggestion: keyVaultErrorSuggestion(err),
			Err:        err,
		}
	}

	if resp.Value == nil {
		return nil, fmt.Errorf("secret %q has no value", name)
	}
	return secure.NewBufferFromString(*resp.Value), nil
}

// keyVaultErrorSuggestion provides helpful suggestions based on Key Vault
// errors.
func keyVaultErrorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "forbidden"), strings.Contains(errStr, "accessdenied"):
		return "Check the vault's access policy or RBAC role assignment for secrets get/list"
	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "authentication"):
		return "Run 'az login' or configure AZURE_CLIENT_ID/AZURE_CLIENT_SECRET/AZURE_TENANT_ID"
	case strings.Contains(errStr, "no such host"), strings.Contains(errStr, "not found"):
		return "Check the vault name; the vault URL is https://<name>.vault.azure.net/"
	default:
		return "Check Azure credentials and Key Vault permissions"
	}
}
