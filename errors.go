package authcore

import "errors"

var (
	// ErrMissingCredentials is an exported constant or variable used by the authentication engine.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is an exported constant or variable used by the authentication engine.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrPersonNotFound is an exported constant or variable used by the authentication engine.
	ErrPersonNotFound = errors.New("person not found")
	// ErrOverrideNotFound is an exported constant or variable used by the authentication engine.
	ErrOverrideNotFound = errors.New("override record not found")
	// ErrDirectoryUnavailable is an exported constant or variable used by the authentication engine.
	ErrDirectoryUnavailable = errors.New("person directory unavailable")
	// ErrUpstreamUnavailable is an exported constant or variable used by the authentication engine.
	ErrUpstreamUnavailable = errors.New("upstream auth service unavailable")
	// ErrMfaUnavailable is an exported constant or variable used by the authentication engine.
	ErrMfaUnavailable = errors.New("no verified mfa destination")
	// ErrNotificationFailed is an exported constant or variable used by the authentication engine.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrRequestRateLimited is an exported constant or variable used by the authentication engine.
	ErrRequestRateLimited = errors.New("request rate limited")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrResetUnavailable is an exported constant or variable used by the authentication engine.
	ErrResetUnavailable = errors.New("password reset not configured")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("token backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// MfaFlowError signals a recoverable MFA challenge failure: the submitted code
// was wrong but the challenge token is still live, so the caller may re-prompt
// against the same token.
type MfaFlowError struct {
	Reason string
}

func (e *MfaFlowError) Error() string {
	return "mfa flow: " + e.Reason
}

// LoginFlowError signals an unrecoverable failure for the current challenge
// token: the login must be restarted. Reason is one of "invalid", "expired",
// or "locked".
type LoginFlowError struct {
	Reason string
}

func (e *LoginFlowError) Error() string {
	return "login flow: " + e.Reason
}

// CredentialsExpiredError is returned by [Engine.Authenticate] when the secret
// was correct but the credential has expired. ChangeToken authorizes the
// change-password flow that must complete before a session can be issued.
type CredentialsExpiredError struct {
	ChangeToken string
}

func (e *CredentialsExpiredError) Error() string {
	return "credentials expired"
}

// ReasonCode maps any error surfaced by the engine to the short
// machine-readable code the presentation layer translates to copy. Unknown
// errors map to "error".
func ReasonCode(err error) string {
	var mfaErr *MfaFlowError
	var loginErr *LoginFlowError
	var expiredErr *CredentialsExpiredError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &mfaErr):
		return mfaErr.Reason
	case errors.As(err, &loginErr):
		return loginErr.Reason
	case errors.As(err, &expiredErr):
		return "changepassword"
	case errors.Is(err, ErrMissingCredentials):
		return "missing"
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, ErrMfaUnavailable):
		return "mfaunavailable"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "deliusdown"
	case errors.Is(err, ErrNotificationFailed):
		return "sendfailure"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrPersonNotFound):
		return "invalid"
	case errors.Is(err, ErrRequestRateLimited):
		return "ratelimited"
	default:
		return "error"
	}
}
