package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"
)

// tokenTimeLayouts are the expiresAt formats written by the AWS CLI v2 and v1.
var tokenTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05UTC",
}

// TokenCachePath returns <profileDir>/sso/cache/<sha1-hex(key)>.json.
func TokenCachePath(profileDir, key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(profileDir, "sso", "cache", hex.EncodeToString(sum[:])+".json")
}

// DefaultProfileDir returns ~/.aws
func DefaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".aws")
}

// TokenStore reads SSO access tokens cached by `aws sso login`. It never writes.
type TokenStore struct {
	dir    string
	logger *logrus.Entry
}

// NewTokenStore returns a store rooted at profileDir (usually ~/.aws).
func NewTokenStore(profileDir string) *TokenStore {
	if profileDir == "" {
		profileDir = DefaultProfileDir()
	}
	return &TokenStore{
		dir:    profileDir,
		logger: NewLogger("sso/token-store"),
	}
}

// Path returns the cache file location for key.
func (s *TokenStore) Path(key string) string {
	return TokenCachePath(s.dir, key)
}

type tokenFile struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

// Load reads and validates the token cached for key. The returned token has
// passed the shape checks only; whether it is expired is left to the caller.
func (s *TokenStore) Load(key string) (CachedToken, error) {
	path := s.Path(key)
	logger := s.logger.WithField("path", path)
	logger.Debug("Loading sso token")

	b, err := os.ReadFile(path)
	if err != nil {
		logger.WithField("error", err.Error()).Info("Unable to open sso token file")
		return CachedToken{}, &TokenError{Kind: ErrTokenUnavailable, Path: path, Err: err}
	}

	var doc tokenFile
	if err := json.Unmarshal(b, &doc); err != nil {
		logger.WithField("error", err.Error()).Error("Failed to parse sso token file")
		return CachedToken{}, &TokenError{Kind: ErrTokenParse, Path: path, Err: err}
	}

	expiresAt, expErr := parseTokenTime(doc.ExpiresAt)
	if doc.AccessToken == "" || expErr != nil {
		logger.WithFields(logrus.Fields{
			"emptyToken":       doc.AccessToken == "",
			"invalidExpiresAt": expErr != nil,
		}).Error(SessionExpiredMessage)

		cause := errors.New("accessToken is empty")
		if expErr != nil {
			cause = expErr
		}
		return CachedToken{}, &TokenError{Kind: ErrTokenInvalid, Path: path, Err: cause}
	}

	return CachedToken{AccessToken: doc.AccessToken, ExpiresAt: expiresAt}, nil
}

func parseTokenTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("expiresAt is missing")
	}
	for _, layout := range tokenTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("expiresAt %q is not an ISO-8601 timestamp", s)
}
