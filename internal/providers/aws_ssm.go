package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
	"github.com/cloudutil/cloudutil/internal/secure"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations.
// This allows for mocking in tests.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMStore reads from AWS Systems Manager Parameter Store.
type SSMStore struct {
	client SSMClientAPI
	logger *logging.Logger
}

// SSMStoreOption is a functional option for configuring the store.
type SSMStoreOption func(*SSMStore)

// WithSSMClient sets a custom SSM client (for testing).
func WithSSMClient(client SSMClientAPI) SSMStoreOption {
	return func(s *SSMStore) {
		s.client = client
	}
}

// NewSSMStore creates a Parameter Store reader for the given credentials.
func NewSSMStore(ctx context.Context, awsOpts AWSOptions, logger *logging.Logger, opts ...SSMStoreOption) (*SSMStore, error) {
	s := &SSMStore{logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := loadAWSConfig(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		s.client = ssm.NewFromConfig(cfg)
	}
	return s, nil
}

// ListParameters returns the names of all parameters under the given path
// prefix, following pagination to the end.
func (s *SSMStore) ListParameters(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = "/"
	}

	var names []string
	var nextToken *string

	for {
		out, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:      aws.String(prefix),
			Recursive: aws.Bool(true),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, cuerrors.UserError{
				Message:    "Failed to list SSM parameters",
				Details:    err.Error(),
				Suggestion: ssmErrorSuggestion(err),
				Err:        err,
			}
		}
		for _, param := range out.Parameters {
			if param.Name != nil {
				names = append(names, *param.Name)
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	s.logger.Debug("Found %d parameters under %s", len(names), prefix)
	return names, nil
}

// GetParameter fetches one parameter value, decrypting SecureString
// parameters. The value is returned inside a locked buffer.
func (s *SSMStore) GetParameter(ctx context.Context, name string) (*secure.Buffer, error) {
	s.logger.Debug("Fetching parameter %s", logging.Secret(name))

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ParameterNotFound") {
			return nil, cuerrors.UserError{
				Message:    fmt.Sprintf("Parameter not found: %s", name),
				Suggestion: "Check that the parameter exists and you have ssm:GetParameter permission",
				Details:    err.Error(),
				Err:        err,
			}
		}
		return nil, cuerrors.UserError{
			Message:    "Failed to get parameter from SSM",
			Details:    err.Error(),
			Suggestion: ssmErrorSuggestion(err),
			Err:        err,
		}
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %q has no value", name)
	}
	return secure.NewBufferFromString(*out.Parameter.Value), nil
}

// ssmErrorSuggestion provides helpful suggestions based on SSM errors.
func ssmErrorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "accessdenied"):
		return "Check IAM permissions: ssm:GetParameter, ssm:GetParametersByPath, and kms:Decrypt (for SecureString)"
	case strings.Contains(errStr, "parameternotfound"):
		return "Verify the parameter name and path. SSM parameters are case-sensitive"
	case strings.Contains(errStr, "throttl"):
		return "Request was throttled. Retry after a short delay"
	case strings.Contains(errStr, "region"):
		return "Check that you're using the correct AWS region where the parameter is stored"
	default:
		return "Check AWS credentials, region, and IAM permissions for SSM Parameter Store"
	}
}
