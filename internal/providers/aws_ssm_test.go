package providers_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
	"github.com/cloudutil/cloudutil/internal/providers"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, false, true)
}

// fakeSSMClient is a func-field mock of the SSM client surface.
type fakeSSMClient struct {
	GetParameterFunc        func(ctx context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	GetParametersByPathFunc func(ctx context.Context, params *ssm.GetParametersByPathInput) (*ssm.GetParametersByPathOutput, error)
}

func (f *fakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.GetParameterFunc(ctx, params)
}

func (f *fakeSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	return f.GetParametersByPathFunc(ctx, params)
}

func TestSSMListParametersFollowsPagination(t *testing.T) {
	pages := map[string]*ssm.GetParametersByPathOutput{
		"": {
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("/app/db/host")},
				{Name: aws.String("/app/db/port")},
			},
			NextToken: aws.String("page2"),
		},
		"page2": {
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("/app/db/password")},
			},
		},
	}

	fake := &fakeSSMClient{
		GetParametersByPathFunc: func(_ context.Context, params *ssm.GetParametersByPathInput) (*ssm.GetParametersByPathOutput, error) {
			assert.Equal(t, "/app", aws.ToString(params.Path))
			assert.True(t, aws.ToBool(params.Recursive))
			return pages[aws.ToString(params.NextToken)], nil
		},
	}

	store, err := providers.NewSSMStore(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSSMClient(fake))
	require.NoError(t, err)

	names, err := store.ListParameters(context.Background(), "/app")
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/db/host", "/app/db/port", "/app/db/password"}, names)
}

func TestSSMListParametersDefaultsToRoot(t *testing.T) {
	fake := &fakeSSMClient{
		GetParametersByPathFunc: func(_ context.Context, params *ssm.GetParametersByPathInput) (*ssm.GetParametersByPathOutput, error) {
			assert.Equal(t, "/", aws.ToString(params.Path))
			return &ssm.GetParametersByPathOutput{}, nil
		},
	}

	store, err := providers.NewSSMStore(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSSMClient(fake))
	require.NoError(t, err)

	names, err := store.ListParameters(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSSMGetParameter(t *testing.T) {
	fake := &fakeSSMClient{
		GetParameterFunc: func(_ context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			assert.Equal(t, "/app/db/password", aws.ToString(params.Name))
			assert.True(t, aws.ToBool(params.WithDecryption))
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Value: aws.String("s3cret")},
			}, nil
		},
	}

	store, err := providers.NewSSMStore(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSSMClient(fake))
	require.NoError(t, err)

	buf, err := store.GetParameter(context.Background(), "/app/db/password")
	require.NoError(t, err)

	value, err := buf.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)
}

func TestSSMGetParameterDebugLogRedactsName(t *testing.T) {
	fake := &fakeSSMClient{
		GetParameterFunc: func(_ context.Context, _ *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Value: aws.String("s3cret")},
			}, nil
		},
	}

	var logBuf bytes.Buffer
	store, err := providers.NewSSMStore(context.Background(), providers.AWSOptions{},
		logging.NewWithWriter(&logBuf, true, true),
		providers.WithSSMClient(fake))
	require.NoError(t, err)

	_, err = store.GetParameter(context.Background(), "/app/db/password")
	require.NoError(t, err)

	// Parameter names often encode what they protect; debug output keeps
	// them out of terminals and scrollback.
	assert.Contains(t, logBuf.String(), "[REDACTED]")
	assert.NotContains(t, logBuf.String(), "/app/db/password")
}

func TestSSMGetParameterNotFound(t *testing.T) {
	fake := &fakeSSMClient{
		GetParameterFunc: func(_ context.Context, _ *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, fmt.Errorf("operation error SSM: GetParameter, ParameterNotFound")
		},
	}

	store, err := providers.NewSSMStore(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSSMClient(fake))
	require.NoError(t, err)

	_, err = store.GetParameter(context.Background(), "/missing")
	require.Error(t, err)

	var ue cuerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "not found")
	assert.Contains(t, ue.Suggestion, "ssm:GetParameter")
}
