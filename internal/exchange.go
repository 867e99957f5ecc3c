package internal

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	// MaxExchangeAttempts caps the GetRoleCredentials attempts of one exchange.
	MaxExchangeAttempts = 3

	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// RetryableErrorCodes lists the only API error codes an exchange retries.
var RetryableErrorCodes = []string{"TooManyRequestsException"}

func isRetryableCode(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range RetryableErrorCodes {
		if c == code {
			return true
		}
	}
	return false
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ExchangeRequest carries everything GetRoleCredentials needs.
type ExchangeRequest struct {
	AccountID   string
	RoleName    string
	AccessToken string
}

// ExchangeOption configures an ExchangeClient.
type ExchangeOption func(*exchangeConfig)

type exchangeConfig struct {
	endpoint       string
	httpClient     sso.HTTPClient
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// WithEndpoint overrides the SSO portal endpoint. Only https URLs are accepted.
func WithEndpoint(endpoint string) ExchangeOption {
	return func(c *exchangeConfig) { c.endpoint = endpoint }
}

// WithHTTPClient sets the transport used for the exchange.
func WithHTTPClient(client sso.HTTPClient) ExchangeOption {
	return func(c *exchangeConfig) { c.httpClient = client }
}

// WithBackoff sets the exponential backoff bounds between retried attempts.
func WithBackoff(initial, max time.Duration) ExchangeOption {
	return func(c *exchangeConfig) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// ExchangeClient trades an SSO access token for role credentials.
// It keeps no state between calls; the cache builds a new one for every refresh.
type ExchangeClient struct {
	client   *sso.Client
	http     *countingHTTPClient
	region   string
	endpoint string
	logger   *logrus.Entry
}

// NewExchangeClient builds an SSO portal client for region with the allow-list retry policy.
func NewExchangeClient(region string, opts ...ExchangeOption) (*ExchangeClient, error) {
	if region == "" {
		return nil, errors.New("sso region is required")
	}

	cfg := exchangeConfig{
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.endpoint != "" {
		u, err := url.Parse(cfg.endpoint)
		if err != nil {
			return nil, errors.WrapIf(err, "invalid sso endpoint")
		}
		if u.Scheme != "https" {
			return nil, errors.NewWithDetails("sso endpoint must use https", "endpoint", cfg.endpoint)
		}
	}

	var next sso.HTTPClient = cfg.httpClient
	if next == nil {
		next = awshttp.NewBuildableClient()
	}
	counter := &countingHTTPClient{next: next}

	options := sso.Options{
		Region:     region,
		HTTPClient: counter,
		Retryer:    newExchangeRetryer(cfg.initialBackoff, cfg.maxBackoff),
	}
	if cfg.endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.endpoint)
	}

	return &ExchangeClient{
		client:   sso.New(options),
		http:     counter,
		region:   region,
		endpoint: cfg.endpoint,
		logger:   NewLogger("sso/exchange-client").WithField("region", region),
	}, nil
}

// Exchange calls GetRoleCredentials. Throttling is retried up to
// MaxExchangeAttempts times, every other failure is returned immediately.
func (c *ExchangeClient) Exchange(ctx context.Context, req ExchangeRequest) (Credentials, error) {
	logger := c.logger.WithFields(logrus.Fields{
		"account": req.AccountID,
		"role":    req.RoleName,
	})
	logger.Debug("Requesting role credentials")

	start := c.http.count()
	out, err := c.client.GetRoleCredentials(ctx, &sso.GetRoleCredentialsInput{
		AccountId:   aws.String(req.AccountID),
		RoleName:    aws.String(req.RoleName),
		AccessToken: aws.String(req.AccessToken),
	})
	attempts := c.http.count() - start

	if err != nil {
		exErr := &ExchangeError{Attempts: attempts, Code: errorCode(err), Err: err}
		logger.WithFields(logrus.Fields{
			"attempts": attempts,
			"code":     exErr.Code,
		}).Error("Role credential exchange failed")
		return Credentials{}, exErr
	}

	rc := out.RoleCredentials
	if rc == nil || aws.ToString(rc.AccessKeyId) == "" || aws.ToString(rc.SecretAccessKey) == "" || rc.Expiration == 0 {
		return Credentials{}, &ExchangeError{
			Attempts: attempts,
			Err:      errors.New("response did not contain complete role credentials"),
		}
	}

	creds := Credentials{
		AccessKeyID:     aws.ToString(rc.AccessKeyId),
		SecretAccessKey: aws.ToString(rc.SecretAccessKey),
		SessionToken:    aws.ToString(rc.SessionToken),
		Expires:         time.UnixMilli(rc.Expiration).UTC(),
	}
	logger.WithFields(logrus.Fields{
		"accessKeyId": creds.AccessKeyID,
		"attempts":    attempts,
		"expires":     creds.Expires.Format(time.RFC3339),
	}).Debug("Retrieved role credentials")

	return creds, nil
}

func newExchangeRetryer(initial, max time.Duration) aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = MaxExchangeAttempts
		o.Retryables = []retry.IsErrorRetryable{
			retry.IsErrorRetryableFunc(func(err error) aws.Ternary {
				return aws.BoolTernary(isRetryableCode(errorCode(err)))
			}),
		}
		o.RateLimiter = ratelimit.None
		o.Backoff = newBackoffDelayer(initial, max)
	})
}

// backoffDelayer adapts an exponential backoff to the SDK retryer.
type backoffDelayer struct {
	mu sync.Mutex
	b  *backoff.ExponentialBackOff
}

func newBackoffDelayer(initial, max time.Duration) *backoffDelayer {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return &backoffDelayer{b: b}
}

func (d *backoffDelayer) BackoffDelay(attempt int, err error) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if attempt <= 1 {
		d.b.Reset()
	}
	next := d.b.NextBackOff()
	if next == backoff.Stop {
		return 0, errors.WrapIf(err, "retry backoff exhausted")
	}
	return next, nil
}

type countingHTTPClient struct {
	next sso.HTTPClient
	n    atomic.Int64
}

func (c *countingHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.n.Add(1)
	return c.next.Do(req)
}

func (c *countingHTTPClient) count() int {
	return int(c.n.Load())
}
