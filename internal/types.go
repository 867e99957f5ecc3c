package internal

import "time"

// Credentials is a short-lived role credential snapshot issued by the SSO portal.
// A snapshot is never modified after it is built; a refresh replaces it.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
}

// Empty reports whether the snapshot was never issued or is missing key material.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" || c.SecretAccessKey == ""
}

// Expired reports whether the snapshot is empty or its expiry is not after now.
func (c Credentials) Expired(now time.Time) bool {
	return c.Empty() || !now.Before(c.Expires)
}

// CachedToken is the access token written to the SSO cache by `aws sso login`.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the token itself is no longer usable for an exchange.
func (t CachedToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Profile is the SSO configuration a cache is bound to
type Profile struct {
	Name        string
	StartURL    string
	SessionName string // set when the profile references an [sso-session] section
	AccountID   string
	RoleName    string
	Region      string
}

// CacheKey returns the string hashed into the token cache filename.
// Profiles using an sso-session section are keyed by the session name, legacy
// profiles by the start URL.
func (p Profile) CacheKey() string {
	if p.SessionName != "" {
		return p.SessionName
	}
	return p.StartURL
}
