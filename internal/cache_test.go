package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfile = Profile{
	Name:      "dev",
	StartURL:  testStartURL,
	AccountID: "123456789012",
	RoleName:  "ReadOnly",
	Region:    "us-east-1",
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	loads atomic.Int32
	token CachedToken
	err   error
}

func (s *fakeStore) Load(key string) (CachedToken, error) {
	s.loads.Add(1)
	return s.token, s.err
}

type fakeExchanger struct {
	calls   atomic.Int32
	builds  atomic.Int32
	delay   time.Duration
	release chan struct{}

	mu    sync.Mutex
	creds Credentials
	err   error
	req   ExchangeRequest
}

func (e *fakeExchanger) factory(region string) (Exchanger, error) {
	e.builds.Add(1)
	return e, nil
}

func (e *fakeExchanger) Exchange(ctx context.Context, req ExchangeRequest) (Credentials, error) {
	e.calls.Add(1)
	if e.release != nil {
		<-e.release
	}
	time.Sleep(e.delay)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req = req
	return e.creds, e.err
}

func (e *fakeExchanger) set(creds Credentials, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creds, e.err = creds, err
}

type cacheFixture struct {
	clock     *fakeClock
	store     *fakeStore
	exchanger *fakeExchanger
	cache     *CredentialCache
}

func newCacheFixture(t *testing.T, opts ...Option) *cacheFixture {
	t.Helper()
	f := &cacheFixture{
		clock:     newFakeClock(),
		store:     &fakeStore{},
		exchanger: &fakeExchanger{},
	}
	f.store.token = CachedToken{AccessToken: "tok-123", ExpiresAt: f.clock.Now().Add(8 * time.Hour)}
	f.exchanger.creds = f.creds("AKIA1", time.Hour)

	opts = append([]Option{
		WithTokenStore(f.store),
		WithExchangerFactory(f.exchanger.factory),
		WithClock(f.clock.Now),
	}, opts...)
	f.cache = NewCredentialCache(testProfile, opts...)
	return f
}

func (f *cacheFixture) creds(keyID string, ttl time.Duration) Credentials {
	return Credentials{
		AccessKeyID:     keyID,
		SecretAccessKey: "secret-" + keyID,
		SessionToken:    "session-" + keyID,
		Expires:         f.clock.Now().Add(ttl),
	}
}

func TestGetCredentialsMissingTokenFile(t *testing.T) {
	f := newCacheFixture(t, WithTokenStore(NewTokenStore(t.TempDir())))

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenUnavailable))
	assert.EqualValues(t, 0, f.exchanger.calls.Load())
	assert.Equal(t, StateFailed, f.cache.State())
}

func TestGetCredentialsEmptyToken(t *testing.T) {
	dir := t.TempDir()
	writeToken(t, dir, testStartURL, `{"accessToken":"","expiresAt":"2030-01-01T00:00:00Z"}`)
	f := newCacheFixture(t, WithTokenStore(NewTokenStore(dir)))

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
	assert.EqualValues(t, 0, f.exchanger.calls.Load())
}

func TestGetCredentialsExpiredTokenSkipsExchange(t *testing.T) {
	f := newCacheFixture(t)
	f.store.token.ExpiresAt = f.clock.Now().Add(-time.Minute)

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.True(t, IsSessionError(err))
	assert.EqualValues(t, 0, f.exchanger.calls.Load())
	assert.EqualValues(t, 0, f.exchanger.builds.Load())
	assert.Equal(t, f.store.token.ExpiresAt, f.cache.TokenExpiresAt())
}

func TestGetCredentialsSuccessThenFastPath(t *testing.T) {
	f := newCacheFixture(t)
	assert.Equal(t, StateEmpty, f.cache.State())

	first, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.exchanger.creds, first)
	assert.Equal(t, ExchangeRequest{
		AccountID:   "123456789012",
		RoleName:    "ReadOnly",
		AccessToken: "tok-123",
	}, f.exchanger.req)
	assert.Equal(t, StateValid, f.cache.State())

	for i := 0; i < 5; i++ {
		again, err := f.cache.GetCredentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.EqualValues(t, 1, f.store.loads.Load())
	assert.EqualValues(t, 1, f.exchanger.calls.Load())
	assert.EqualValues(t, 1, f.exchanger.builds.Load())
}

func TestGetCredentialsRefreshesAfterExpiry(t *testing.T) {
	f := newCacheFixture(t)

	first, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	assert.Equal(t, StateExpired, f.cache.State())
	f.exchanger.set(f.creds("AKIA2", time.Hour), nil)

	second, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "AKIA2", second.AccessKeyID)
	assert.True(t, second.Expires.After(f.clock.Now()))
	assert.EqualValues(t, 2, f.exchanger.calls.Load())
	assert.EqualValues(t, 2, f.exchanger.builds.Load())
}

func TestGetCredentialsNeverReturnsStale(t *testing.T) {
	f := newCacheFixture(t)
	_, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	f.exchanger.set(Credentials{}, &ExchangeError{Attempts: 1, Code: "UnauthorizedException", Err: errors.New("denied")})

	for i := 0; i < 3; i++ {
		creds, err := f.cache.GetCredentials(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrExchangeFailed))
		assert.Equal(t, Credentials{}, creds)
	}
	// every call after a failure retries the whole cycle
	assert.EqualValues(t, 4, f.exchanger.calls.Load())
	assert.Equal(t, StateFailed, f.cache.State())

	f.exchanger.set(f.creds("AKIA3", time.Hour), nil)
	creds, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA3", creds.AccessKeyID)
	assert.Equal(t, StateValid, f.cache.State())
	assert.NoError(t, f.cache.LastError())
}

func TestGetCredentialsWrapsPlainExchangerErrors(t *testing.T) {
	f := newCacheFixture(t)
	f.exchanger.set(Credentials{}, errors.New("connection reset"))

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
	assert.Equal(t, ExchangeFailedMessage, Remediation(err))
}

func TestGetCredentialsRejectsExpiredResponse(t *testing.T) {
	f := newCacheFixture(t)
	f.exchanger.set(f.creds("AKIA1", -time.Second), nil)

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestGetCredentialsSingleFlight(t *testing.T) {
	f := newCacheFixture(t)
	_, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)
	require.Equal(t, StateExpired, f.cache.State())
	f.exchanger.set(f.creds("AKIA2", time.Hour), nil)
	f.exchanger.delay = 50 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Credentials, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.cache.GetCredentials(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, f.exchanger.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "AKIA2", results[i].AccessKeyID)
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, StateValid, f.cache.State())
}

func TestGetCredentialsSingleFlightSharesFailure(t *testing.T) {
	f := newCacheFixture(t)
	f.exchanger.delay = 100 * time.Millisecond
	f.exchanger.set(Credentials{}, &ExchangeError{Attempts: 3, Code: "TooManyRequestsException", Err: errors.New("throttled")})

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.cache.GetCredentials(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.exchanger.calls.Load())
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrExchangeTransient))
		assert.Same(t, errs[0], err)
	}
}

func TestGetCredentialsWaiterCancellation(t *testing.T) {
	f := newCacheFixture(t)
	f.exchanger.release = make(chan struct{})

	leaderDone := make(chan error, 1)
	go func() {
		_, err := f.cache.GetCredentials(context.Background())
		leaderDone <- err
	}()
	require.Eventually(t, func() bool { return f.exchanger.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateRefreshing, f.cache.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.cache.GetCredentials(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.exchanger.release)
	require.NoError(t, <-leaderDone)
	assert.EqualValues(t, 1, f.exchanger.calls.Load())
	assert.Equal(t, StateValid, f.cache.State())
}

func TestGetCredentialsExpiryWindow(t *testing.T) {
	f := newCacheFixture(t, WithExpiryWindow(5*time.Minute))

	_, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)

	f.clock.Advance(54 * time.Minute)
	_, err = f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.exchanger.calls.Load())

	f.clock.Advance(2 * time.Minute)
	f.exchanger.set(f.creds("AKIA2", time.Hour), nil)
	_, err = f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.exchanger.calls.Load())
}

func TestGetCredentialsExpiryWindowLongerThanLifetime(t *testing.T) {
	f := newCacheFixture(t, WithExpiryWindow(2*time.Hour))

	first, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA1", first.AccessKeyID)

	f.clock.Advance(10 * time.Minute)
	again, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.EqualValues(t, 1, f.exchanger.calls.Load())

	f.clock.Advance(21 * time.Minute)
	assert.Equal(t, StateExpired, f.cache.State())
	f.exchanger.set(f.creds("AKIA2", time.Hour), nil)
	second, err := f.cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA2", second.AccessKeyID)
	assert.EqualValues(t, 2, f.exchanger.calls.Load())
}

func TestGetCredentialsExchangerBuildFailure(t *testing.T) {
	f := newCacheFixture(t, WithExchangerFactory(func(region string) (Exchanger, error) {
		return nil, errors.New("missing region")
	}))

	_, err := f.cache.GetCredentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExchangeFailed))
	assert.Contains(t, err.Error(), "before any attempt")
	assert.Contains(t, err.Error(), "missing region")
	assert.NotContains(t, err.Error(), "0 attempt")
	assert.EqualValues(t, 0, f.exchanger.calls.Load())
}

func TestRetrieve(t *testing.T) {
	f := newCacheFixture(t)

	creds, err := f.cache.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA1", creds.AccessKeyID)
	assert.Equal(t, "secret-AKIA1", creds.SecretAccessKey)
	assert.Equal(t, "session-AKIA1", creds.SessionToken)
	assert.True(t, creds.CanExpire)
	assert.Equal(t, f.exchanger.creds.Expires, creds.Expires)
}

func TestCredentialCacheAsSDKProvider(t *testing.T) {
	f := newCacheFixture(t)
	provider := aws.NewCredentialsCache(f.cache)

	for i := 0; i < 3; i++ {
		creds, err := provider.Retrieve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AKIA1", creds.AccessKeyID)
		assert.Equal(t, "SSOCredentialCache", creds.Source)
	}
	assert.EqualValues(t, 1, f.exchanger.calls.Load())
}

func TestGetCredentialsAgainstPortal(t *testing.T) {
	dir := t.TempDir()
	writeToken(t, dir, testStartURL, `{"accessToken":"tok-123","expiresAt":"2099-01-01T00:00:00Z"}`)
	portal := newFakePortal(t)
	portal.failWith(2, 429, "TooManyRequestsException")

	cache := NewCredentialCache(testProfile,
		WithTokenStore(NewTokenStore(dir)),
		WithExchangerFactory(DefaultExchangerFactory(
			WithEndpoint(portal.srv.URL),
			WithHTTPClient(portal.srv.Client()),
			WithBackoff(time.Millisecond, 5*time.Millisecond),
		)),
		WithClock(func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }),
	)

	creds, err := cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	assert.EqualValues(t, 3, portal.hits.Load())

	_, err = cache.GetCredentials(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, portal.hits.Load())
}
