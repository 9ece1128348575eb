package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
	"github.com/cloudutil/cloudutil/internal/logging"
)

// federationEndpoint is the AWS sign-in service that exchanges federation
// credentials for a console signin token.
const federationEndpoint = "https://signin.aws.amazon.com/federation"

// consoleDestination is where a federated login lands by default.
const consoleDestination = "https://console.aws.amazon.com/"

// defaultSessionPolicy is applied when no policy file is given. Federation
// tokens carry at most the intersection of this policy and the calling
// user's own permissions.
const defaultSessionPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`

// STSClientAPI defines the interface for AWS STS operations.
// This allows for mocking in tests.
type STSClientAPI interface {
	DecodeAuthorizationMessage(ctx context.Context, params *sts.DecodeAuthorizationMessageInput, optFns ...func(*sts.Options)) (*sts.DecodeAuthorizationMessageOutput, error)
	GetFederationToken(ctx context.Context, params *sts.GetFederationTokenInput, optFns ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error)
}

// httpDoer is the slice of http.Client the console login needs; tests
// substitute a canned responder.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// STSService wraps STS authorization-message decoding and federated
// console sign-in.
type STSService struct {
	client STSClientAPI
	http   httpDoer
	logger *logging.Logger
}

// STSServiceOption is a functional option for configuring the service.
type STSServiceOption func(*STSService)

// WithSTSClient sets a custom STS client (for testing).
func WithSTSClient(client STSClientAPI) STSServiceOption {
	return func(s *STSService) {
		s.client = client
	}
}

// WithHTTPClient sets a custom HTTP client for the federation endpoint
// (for testing).
func WithHTTPClient(client httpDoer) STSServiceOption {
	return func(s *STSService) {
		s.http = client
	}
}

// NewSTSService creates an STS wrapper for the given credentials.
func NewSTSService(ctx context.Context, awsOpts AWSOptions, logger *logging.Logger, opts ...STSServiceOption) (*STSService, error) {
	s := &STSService{
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := loadAWSConfig(ctx, awsOpts)
		if err != nil {
			return nil, err
		}
		s.client = sts.NewFromConfig(cfg)
	}
	return s, nil
}

// DecodeMessage decodes an encoded authorization failure message and
// pretty-prints the embedded policy document.
func (s *STSService) DecodeMessage(ctx context.Context, encoded string) (string, error) {
	out, err := s.client.DecodeAuthorizationMessage(ctx, &sts.DecodeAuthorizationMessageInput{
		EncodedMessage: aws.String(encoded),
	})
	if err != nil {
		return "", cuerrors.UserError{
			Message:    "Failed to decode authorization message",
			Details:    err.Error(),
			Suggestion: "Check that the message is complete and you have sts:DecodeAuthorizationMessage permission",
			Err:        err,
		}
	}
	if out.DecodedMessage == nil {
		return "", fmt.Errorf("decode returned an empty message")
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(*out.DecodedMessage), "", "  "); err != nil {
		// Not JSON after all; return it verbatim.
		return *out.DecodedMessage, nil
	}
	return pretty.String(), nil
}

// LoginOptions controls a federated console sign-in.
type LoginOptions struct {
	// SessionName labels the federated session in CloudTrail.
	SessionName string
	// Duration is the session lifetime; the service accepts 15m to 36h.
	Duration time.Duration
	// Policy is the session policy JSON; empty means defaultSessionPolicy.
	Policy string
}

// ConsoleLoginURL builds a federated sign-in URL for the AWS console:
// a federation token from STS is exchanged for a signin token at the
// federation endpoint, and the result is a single-use login link.
func (s *STSService) ConsoleLoginURL(ctx context.Context, opts LoginOptions) (string, error) {
	if opts.SessionName == "" {
		opts.SessionName = "cloudutil"
	}
	if opts.Duration == 0 {
		opts.Duration = time.Hour
	}
	policy := opts.Policy
	if policy == "" {
		policy = defaultSessionPolicy
	}

	s.logger.Debug("Requesting federation token for session %q", opts.SessionName)

	token, err := s.client.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(opts.SessionName),
		DurationSeconds: aws.Int32(int32(opts.Duration.Seconds())),
		Policy:          aws.String(policy),
	})
	if err != nil {
		return "", cuerrors.UserError{
			Message:    "Failed to get federation token",
			Details:    err.Error(),
			Suggestion: stsErrorSuggestion(err),
			Err:        err,
		}
	}
	if token.Credentials == nil {
		return "", fmt.Errorf("federation token has no credentials")
	}

	signinToken, err := s.fetchSigninToken(ctx, token)
	if err != nil {
		return "", err
	}

	login := url.Values{}
	login.Set("Action", "login")
	login.Set("Issuer", "cloudutil")
	login.Set("Destination", consoleDestination)
	login.Set("SigninToken", signinToken)
	return federationEndpoint + "?" + login.Encode(), nil
}

// fetchSigninToken exchanges federation credentials for a signin token at
// the AWS federation endpoint.
func (s *STSService) fetchSigninToken(ctx context.Context, token *sts.GetFederationTokenOutput) (string, error) {
	session, err := json.Marshal(map[string]string{
		"sessionId":    aws.ToString(token.Credentials.AccessKeyId),
		"sessionKey":   aws.ToString(token.Credentials.SecretAccessKey),
		"sessionToken": aws.ToString(token.Credentials.SessionToken),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	query := url.Values{}
	query.Set("Action", "getSigninToken")
	query.Set("Session", string(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, federationEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build federation request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", cuerrors.UserError{
			Message:    "Failed to reach the AWS federation endpoint",
			Details:    err.Error(),
			Suggestion: "Check network connectivity to signin.aws.amazon.com",
			Err:        err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read federation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", cuerrors.UserError{
			Message:    fmt.Sprintf("Federation endpoint returned HTTP %d", resp.StatusCode),
			Details:    string(body),
			Suggestion: "The federation token may be malformed or expired; retry the login",
		}
	}

	var parsed struct {
		SigninToken string `json:"SigninToken"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse federation response: %w", err)
	}
	if parsed.SigninToken == "" {
		return "", fmt.Errorf("federation response has no signin token")
	}
	return parsed.SigninToken, nil
}

// stsErrorSuggestion provides helpful suggestions based on STS errors.
func stsErrorSuggestion(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "AccessDenied"):
		return "Check that your principal has sts:GetFederationToken permission"
	case strings.Contains(errStr, "cannot call GetFederationToken with session credentials"):
		return "Federated login requires long-lived IAM user credentials, not an assumed role"
	case strings.Contains(errStr, "DurationSeconds"):
		return "Session duration must be between 15 minutes and 36 hours"
	case strings.Contains(errStr, "MalformedPolicyDocument"):
		return "Check the session policy JSON passed via --policy-file"
	default:
		return "Check AWS credentials and IAM permissions for STS"
	}
}
