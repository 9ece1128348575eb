package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
	"github.com/cloudutil/cloudutil/internal/secure"
)

// SecretsClientAPI defines the interface for AWS Secrets Manager operations.
// This allows for mocking in tests.
type SecretsClientAPI interface {
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsStore reads from AWS Secrets Manager.
type SecretsStore struct {
	client SecretsClientAPI
	logger *logging.Logger
}

// SecretsStoreOption is a functional option for configuring the store.
type SecretsStoreOption func(*SecretsStore)

// WithSecretsClient sets a custom Secrets Manager client (for testing).
func WithSecretsClient(client SecretsClientAPI) SecretsStoreOption {
	return func(s *SecretsStore) {
		s.client = client
	}
}

// NewSecretsStore creates a Secrets Manager reader for the given credentials.
func NewSecretsStore(ctx context.Context, awsOpts AWSOptions, logger *logging.Logger, opts ...SecretsStoreOption) (*SecretsStore, error) {
	s := &SecretsStore{logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := loadAWSConfig(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		s.client = secretsmanager.NewFromConfig(cfg)
	}
	return s, nil
}

// ListSecrets returns the names of all secrets, optionally narrowed by a
// server-side name filter, following pagination to the end.
func (s *SecretsStore) ListSecrets(ctx context.Context, filter string) ([]string, error) {
	input := &secretsmanager.ListSecretsInput{}
	if filter != "" {
		input.Filters = []types.Filter{
			{Key: types.FilterNameStringTypeName, Values: []string{filter}},
		}
	}

	var names []string
	for {
		out, err := s.client.ListSecrets(ctx, input)
		if err != nil {
			return nil, cuerrors.UserError{
				Message:    "Failed to list secrets",
				Details:    err.Error(),
				Suggestion: secretsErrorSuggestion(err),
				Err:        err,
			}
		}
		for _, entry := range out.SecretList {
			if entry.Name != nil {
				names = append(names, *entry.Name)
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	s.logger.Debug("Found %d secrets", len(names))
	return names, nil
}

// GetSecret fetches one secret's current value inside a locked buffer.
// Binary secrets are returned as their raw bytes.
func (s *SecretsStore) GetSecret(ctx context.Context, name string) (*secure.Buffer, error) {
	s.logger.Debug("Fetching secret %s", name)

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ResourceNotFoundException") {
			return nil, cuerrors.UserError{
				Message:    fmt.Sprintf("Secret not found: %s", name),
				Suggestion: "Check the secret name and that you have secretsmanager:GetSecretValue permission",
				Details:    err.Error(),
				Err:        err,
			}
		}
		return nil, cuerrors.UserError{
			Message:    "Failed to get secret value",
			Details:    err.Error(),
			Suggestion: secretsErrorSuggestion(err),
			Err:        err,
		}
	}

	switch {
	case out.SecretString != nil:
		return secure.NewBufferFromString(*out.SecretString), nil
	case out.SecretBinary != nil:
		return secure.NewBuffer(out.SecretBinary), nil
	default:
		return nil, fmt.Errorf("secret %q has no value", name)
	}
}

// secretsErrorSuggestion provides helpful suggestions based on Secrets
// Manager errors.
func secretsErrorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "accessdenied"):
		return "Check IAM permissions: secretsmanager:ListSecrets, secretsmanager:GetSecretValue, and kms:Decrypt"
	case strings.Contains(errStr, "resourcenotfound"):
		return "Verify the secret name or ARN. Deleted secrets stay listed during their recovery window"
	case strings.Contains(errStr, "decryptionfailure"):
		return "The KMS key for this secret may not exist or you lack kms:Decrypt permission"
	case strings.Contains(errStr, "region"):
		return "Check that you're using the correct AWS region where the secret is stored"
	default:
		return "Check AWS credentials, region, and IAM permissions for Secrets Manager"
	}
}
