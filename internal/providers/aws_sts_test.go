package providers_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/providers"
)

// fakeSTSClient is a func-field mock of the STS surface.
type fakeSTSClient struct {
	DecodeFunc   func(ctx context.Context, params *sts.DecodeAuthorizationMessageInput) (*sts.DecodeAuthorizationMessageOutput, error)
	FederateFunc func(ctx context.Context, params *sts.GetFederationTokenInput) (*sts.GetFederationTokenOutput, error)
}

func (f *fakeSTSClient) DecodeAuthorizationMessage(ctx context.Context, params *sts.DecodeAuthorizationMessageInput, _ ...func(*sts.Options)) (*sts.DecodeAuthorizationMessageOutput, error) {
	return f.DecodeFunc(ctx, params)
}

func (f *fakeSTSClient) GetFederationToken(ctx context.Context, params *sts.GetFederationTokenInput, _ ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error) {
	return f.FederateFunc(ctx, params)
}

// fakeHTTP serves canned responses for the federation endpoint.
type fakeHTTP struct {
	requests []*http.Request
	status   int
	body     string
	err      error
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func TestDecodeMessagePrettyPrints(t *testing.T) {
	fake := &fakeSTSClient{
		DecodeFunc: func(_ context.Context, params *sts.DecodeAuthorizationMessageInput) (*sts.DecodeAuthorizationMessageOutput, error) {
			assert.Equal(t, "encoded-blob", aws.ToString(params.EncodedMessage))
			return &sts.DecodeAuthorizationMessageOutput{
				DecodedMessage: aws.String(`{"allowed":false,"context":{"action":"s3:GetObject"}}`),
			}, nil
		},
	}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake))
	require.NoError(t, err)

	decoded, err := svc.DecodeMessage(context.Background(), "encoded-blob")
	require.NoError(t, err)
	assert.Contains(t, decoded, "\"allowed\": false")
	assert.Contains(t, decoded, "s3:GetObject")
}

func TestDecodeMessageFailure(t *testing.T) {
	fake := &fakeSTSClient{
		DecodeFunc: func(_ context.Context, _ *sts.DecodeAuthorizationMessageInput) (*sts.DecodeAuthorizationMessageOutput, error) {
			return nil, fmt.Errorf("InvalidAuthorizationMessageException")
		},
	}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake))
	require.NoError(t, err)

	_, err = svc.DecodeMessage(context.Background(), "garbage")
	require.Error(t, err)

	var ue cuerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "sts:DecodeAuthorizationMessage")
}

func federationToken() *sts.GetFederationTokenOutput {
	return &sts.GetFederationTokenOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIA-FED"),
			SecretAccessKey: aws.String("fed-secret"),
			SessionToken:    aws.String("fed-session"),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}
}

func TestConsoleLoginURL(t *testing.T) {
	var gotInput *sts.GetFederationTokenInput
	fake := &fakeSTSClient{
		FederateFunc: func(_ context.Context, params *sts.GetFederationTokenInput) (*sts.GetFederationTokenOutput, error) {
			gotInput = params
			return federationToken(), nil
		},
	}
	httpFake := &fakeHTTP{status: http.StatusOK, body: `{"SigninToken":"signin-token-xyz"}`}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake), providers.WithHTTPClient(httpFake))
	require.NoError(t, err)

	loginURL, err := svc.ConsoleLoginURL(context.Background(), providers.LoginOptions{})
	require.NoError(t, err)

	// Defaults applied to the federation request.
	assert.Equal(t, "cloudutil", aws.ToString(gotInput.Name))
	assert.Equal(t, int32(3600), aws.ToInt32(gotInput.DurationSeconds))
	assert.Contains(t, aws.ToString(gotInput.Policy), `"Effect":"Allow"`)

	// The signin-token exchange carried the federation credentials.
	require.Len(t, httpFake.requests, 1)
	exchange := httpFake.requests[0].URL
	assert.Equal(t, "signin.aws.amazon.com", exchange.Host)
	assert.Equal(t, "getSigninToken", exchange.Query().Get("Action"))
	assert.Contains(t, exchange.Query().Get("Session"), "AKIA-FED")

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	assert.Equal(t, "login", parsed.Query().Get("Action"))
	assert.Equal(t, "signin-token-xyz", parsed.Query().Get("SigninToken"))
	assert.Equal(t, "https://console.aws.amazon.com/", parsed.Query().Get("Destination"))
}

func TestConsoleLoginCustomPolicyAndDuration(t *testing.T) {
	var gotInput *sts.GetFederationTokenInput
	fake := &fakeSTSClient{
		FederateFunc: func(_ context.Context, params *sts.GetFederationTokenInput) (*sts.GetFederationTokenOutput, error) {
			gotInput = params
			return federationToken(), nil
		},
	}
	httpFake := &fakeHTTP{status: http.StatusOK, body: `{"SigninToken":"tok"}`}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake), providers.WithHTTPClient(httpFake))
	require.NoError(t, err)

	customPolicy := `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"s3:*","Resource":"*"}]}`
	_, err = svc.ConsoleLoginURL(context.Background(), providers.LoginOptions{
		SessionName: "audit",
		Duration:    4 * time.Hour,
		Policy:      customPolicy,
	})
	require.NoError(t, err)

	assert.Equal(t, "audit", aws.ToString(gotInput.Name))
	assert.Equal(t, int32(14400), aws.ToInt32(gotInput.DurationSeconds))
	assert.Equal(t, customPolicy, aws.ToString(gotInput.Policy))
}

func TestConsoleLoginFederationEndpointFailure(t *testing.T) {
	fake := &fakeSTSClient{
		FederateFunc: func(_ context.Context, _ *sts.GetFederationTokenInput) (*sts.GetFederationTokenOutput, error) {
			return federationToken(), nil
		},
	}
	httpFake := &fakeHTTP{status: http.StatusBadRequest, body: "invalid session"}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake), providers.WithHTTPClient(httpFake))
	require.NoError(t, err)

	_, err = svc.ConsoleLoginURL(context.Background(), providers.LoginOptions{})
	require.Error(t, err)

	var ue cuerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "HTTP 400")
}

func TestConsoleLoginFederationTokenDenied(t *testing.T) {
	fake := &fakeSTSClient{
		FederateFunc: func(_ context.Context, _ *sts.GetFederationTokenInput) (*sts.GetFederationTokenOutput, error) {
			return nil, fmt.Errorf("AccessDenied: not authorized to perform sts:GetFederationToken")
		},
	}

	svc, err := providers.NewSTSService(context.Background(), providers.AWSOptions{}, testLogger(),
		providers.WithSTSClient(fake), providers.WithHTTPClient(&fakeHTTP{}))
	require.NoError(t, err)

	_, err = svc.ConsoleLoginURL(context.Background(), providers.LoginOptions{})
	require.Error(t, err)

	var ue cuerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Suggestion, "sts:GetFederationToken")
}
