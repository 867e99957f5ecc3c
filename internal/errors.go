package internal

import (
	"fmt"
	"time"

	"emperror.dev/errors"
)

const (
	ErrTokenUnavailable  = errors.Sentinel("sso token cache file not found or unreadable")
	ErrTokenInvalid      = errors.Sentinel("sso token is empty or has no valid expiration")
	ErrTokenExpired      = errors.Sentinel("sso token has expired")
	ErrTokenParse        = errors.Sentinel("sso token cache file is malformed")
	ErrExchangeTransient = errors.Sentinel("sso credential exchange throttled")
	ErrExchangeFailed    = errors.Sentinel("sso credential exchange failed")
	ErrProfileNotSSO     = errors.Sentinel("profile is not configured for sso")
)

// SessionExpiredMessage is reported for every local token problem; the fix is the same in all cases.
const SessionExpiredMessage = "The SSO session associated with this profile has expired or is otherwise invalid. " +
	"To refresh this SSO session run aws sso login with the corresponding profile."

// ExchangeFailedMessage is reported when the SSO portal rejects or fails the exchange.
const ExchangeFailedMessage = "The SSO service rejected or failed the credential exchange. " +
	"Check the profile's sso_account_id, sso_role_name, sso_region and network access."

// TokenError describes why the cached SSO token could not be used.
type TokenError struct {
	Kind      error
	Path      string
	ExpiresAt time.Time
	Err       error
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Path)
	if !e.ExpiresAt.IsZero() {
		msg += fmt.Sprintf(" (expired at %s)", e.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool { return target == e.Kind }

// ExchangeError is the terminal failure of a GetRoleCredentials call.
type ExchangeError struct {
	Attempts int    // 0 when the client could not be built
	Code     string // API error code, empty for transport failures
	Err      error
}

func (e *ExchangeError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("%s before any attempt: %v", ErrExchangeFailed, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s after %d attempt(s) (%s): %v", ErrExchangeFailed, e.Attempts, e.Code, e.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrExchangeFailed, e.Attempts, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

func (e *ExchangeError) Is(target error) bool {
	switch target {
	case ErrExchangeFailed:
		return true
	case ErrExchangeTransient:
		return isRetryableCode(e.Code)
	}
	return false
}

// IsSessionError reports whether err means the local SSO session must be renewed.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrTokenUnavailable) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenParse)
}

// Remediation returns the user facing hint for a failed credential fetch.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case IsSessionError(err):
		return SessionExpiredMessage
	case errors.Is(err, ErrExchangeFailed):
		return ExchangeFailedMessage
	case errors.Is(err, ErrProfileNotSSO):
		return "Add sso_start_url, sso_region, sso_account_id and sso_role_name (or sso_session) to the profile."
	}
	return ""
}
