package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CacheState is the lifecycle position of a CredentialCache.
type CacheState int

const (
	StateEmpty CacheState = iota
	StateValid
	StateExpired
	StateRefreshing
	StateFailed
)

func (s CacheState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// TokenLoader loads the cached SSO token for a cache key.
type TokenLoader interface {
	Load(key string) (CachedToken, error)
}

// Exchanger trades a token for role credentials.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (Credentials, error)
}

// ExchangerFactory builds the exchanger used by a single refresh.
type ExchangerFactory func(region string) (Exchanger, error)

// DefaultExchangerFactory returns a factory building a fresh ExchangeClient per refresh.
func DefaultExchangerFactory(opts ...ExchangeOption) ExchangerFactory {
	return func(region string) (Exchanger, error) {
		return NewExchangeClient(region, opts...)
	}
}

// Option configures a CredentialCache.
type Option func(*CredentialCache)

// WithTokenStore replaces the token loader (defaults to a TokenStore under ~/.aws).
func WithTokenStore(store TokenLoader) Option {
	return func(c *CredentialCache) { c.store = store }
}

// WithExchangerFactory replaces how refreshes build their exchanger.
func WithExchangerFactory(f ExchangerFactory) Option {
	return func(c *CredentialCache) { c.newExchanger = f }
}

// WithClock sets the time source used for every expiry decision.
func WithClock(now func() time.Time) Option {
	return func(c *CredentialCache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *CredentialCache) { c.logger = logger }
}

// WithExpiryWindow treats credentials as expired window before their actual expiry.
// The window never exceeds half of a snapshot's lifetime.
func WithExpiryWindow(window time.Duration) Option {
	return func(c *CredentialCache) { c.expiryWindow = window }
}

// CredentialCache hands out SSO role credentials for one profile, refreshing
// them lazily when they expire. Concurrent callers share a single refresh.
type CredentialCache struct {
	profile      Profile
	store        TokenLoader
	newExchanger ExchangerFactory
	now          func() time.Time
	expiryWindow time.Duration
	logger       *logrus.Entry

	group      singleflight.Group
	refreshing atomic.Bool

	mu             sync.RWMutex
	creds          Credentials
	refreshAt      time.Time
	tokenExpiresAt time.Time
	lastErr        error
}

var _ aws.CredentialsProvider = (*CredentialCache)(nil)

// NewCredentialCache returns an empty cache bound to profile.
func NewCredentialCache(profile Profile, opts ...Option) *CredentialCache {
	c := &CredentialCache{
		profile: profile,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NewLogger("sso/credential-cache")
	}
	c.logger = c.logger.WithField("profile", profile.Name)
	if c.store == nil {
		c.store = NewTokenStore(DefaultProfileDir())
	}
	if c.newExchanger == nil {
		c.newExchanger = DefaultExchangerFactory()
	}
	c.logger.Info("Reading sso credentials for profile")
	return c
}

// Profile returns the profile the cache is bound to.
func (c *CredentialCache) Profile() Profile {
	return c.profile
}

// GetCredentials returns unexpired credentials, refreshing them first if needed.
// It never returns an expired snapshot: if the refresh fails the error is returned.
func (c *CredentialCache) GetCredentials(ctx context.Context) (Credentials, error) {
	if creds, ok := c.valid(); ok {
		return creds, nil
	}

	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		// another flight may have finished while this caller was queued
		if creds, ok := c.valid(); ok {
			return creds, nil
		}
		c.refreshing.Store(true)
		defer c.refreshing.Store(false)
		return c.reload(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

// Retrieve implements aws.CredentialsProvider.
func (c *CredentialCache) Retrieve(ctx context.Context) (aws.Credentials, error) {
	creds, err := c.GetCredentials(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	return aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Source:          "SSOCredentialCache",
		CanExpire:       true,
		Expires:         creds.Expires,
	}, nil
}

// State reports where the cache is in its lifecycle.
func (c *CredentialCache) State() CacheState {
	if c.refreshing.Load() {
		return StateRefreshing
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.lastErr != nil:
		return StateFailed
	case c.creds.Empty():
		return StateEmpty
	case !c.now().Before(c.refreshAt):
		return StateExpired
	}
	return StateValid
}

// TokenExpiresAt returns the expiry of the token used by the last refresh attempt.
// It is tracked separately from the credentials' own expiry.
func (c *CredentialCache) TokenExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenExpiresAt
}

// LastError returns the error of the last refresh, nil after a success.
func (c *CredentialCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *CredentialCache) valid() (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds.Empty() || !c.now().Before(c.refreshAt) {
		return Credentials{}, false
	}
	return c.creds, true
}

// refreshDeadline is when a snapshot stops being handed out. The expiry window
// is capped at half of the lifetime left at issue.
func (c *CredentialCache) refreshDeadline(creds Credentials, issued time.Time) time.Time {
	window := c.expiryWindow
	if half := creds.Expires.Sub(issued) / 2; window > half {
		window = half
	}
	return creds.Expires.Add(-window)
}

// reload runs one full refresh cycle. Only the single flight calls it.
func (c *CredentialCache) reload(ctx context.Context) (Credentials, error) {
	creds, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		return Credentials{}, err
	}
	c.creds = creds
	c.refreshAt = c.refreshDeadline(creds, c.now())
	c.lastErr = nil
	return creds, nil
}

func (c *CredentialCache) fetch(ctx context.Context) (Credentials, error) {
	key := c.profile.CacheKey()
	token, err := c.store.Load(key)
	if err != nil {
		return Credentials{}, err
	}

	c.mu.Lock()
	c.tokenExpiresAt = token.ExpiresAt
	c.mu.Unlock()

	if token.Expired(c.now()) {
		c.logger.WithField("expiresAt", token.ExpiresAt.Format(time.RFC3339)).Error(SessionExpiredMessage)
		return Credentials{}, &TokenError{Kind: ErrTokenExpired, Path: tokenPath(c.store, key), ExpiresAt: token.ExpiresAt}
	}

	exchanger, err := c.newExchanger(c.profile.Region)
	if err != nil {
		return Credentials{}, &ExchangeError{Err: errors.WrapIf(err, "failed to build sso client")}
	}

	c.logger.WithField("region", c.profile.Region).Debug("Exchanging sso token for role credentials")
	creds, err := exchanger.Exchange(ctx, ExchangeRequest{
		AccountID:   c.profile.AccountID,
		RoleName:    c.profile.RoleName,
		AccessToken: token.AccessToken,
	})
	if err != nil {
		if !errors.Is(err, ErrExchangeFailed) {
			err = &ExchangeError{Attempts: 1, Code: errorCode(err), Err: err}
		}
		return Credentials{}, err
	}

	if creds.Expired(c.now()) {
		return Credentials{}, &ExchangeError{
			Attempts: 1,
			Err:      errors.NewWithDetails("sso returned credentials that are already expired", "expires", creds.Expires),
		}
	}

	c.logger.WithField("expires", creds.Expires.Format(time.RFC3339)).Info("Refreshed sso role credentials")
	return creds, nil
}

func tokenPath(store TokenLoader, key string) string {
	if s, ok := store.(interface{ Path(string) string }); ok {
		return s.Path(key)
	}
	return key
}
