package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginLocked         = "login_locked"
	auditEventLoginUnavailable    = "login_upstream_unavailable"
	auditEventMfaRequired         = "mfa_required"
	auditEventMfaSuccess          = "mfa_success"
	auditEventMfaFailure          = "mfa_failure"
	auditEventMfaLocked           = "mfa_locked"
	auditEventMfaResend           = "mfa_resend"
	auditEventTokenCreated        = "token_created"
	auditEventTokenConsumed       = "token_consumed"
	auditEventResetRequest        = "password_reset_request"
	auditEventResetConfirm        = "password_reset_confirm"
	auditEventVerificationRequest = "verification_request"
	auditEventVerificationConfirm = "verification_confirm"
	auditEventAccountLocked       = "account_locked"
	auditEventAccountUnlocked     = "account_unlocked"
	auditEventEmailBackfill       = "email_backfill"
	auditEventRateLimited         = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by authcore APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrMissingCredentials AuditErrorCode = "missing_credentials"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrCredentialsExpired AuditErrorCode = "credentials_expired"
	auditErrMfaUnavailable     AuditErrorCode = "mfa_unavailable"
	auditErrMfaInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMfaExpired         AuditErrorCode = "mfa_expired"
	auditErrMfaLocked          AuditErrorCode = "mfa_locked"
	auditErrTokenInvalid       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "expired_token"
	auditErrSendFailure        AuditErrorCode = "send_failure"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	source AuthSource,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  username,
		ClientID:  clientIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if source != SourceNone && source != "" {
		event.Source = string(source)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var mfaErr *MfaFlowError
	if errors.As(err, &mfaErr) {
		switch mfaErr.Reason {
		case "expired":
			return auditErrMfaExpired
		case "locked":
			return auditErrMfaLocked
		default:
			return auditErrMfaInvalid
		}
	}
	var loginErr *LoginFlowError
	if errors.As(err, &loginErr) {
		switch loginErr.Reason {
		case "expired":
			return auditErrTokenExpired
		case "locked":
			return auditErrAccountLocked
		default:
			return auditErrTokenInvalid
		}
	}
	var expiredErr *CredentialsExpiredError
	if errors.As(err, &expiredErr) {
		return auditErrCredentialsExpired
	}

	switch {
	case errors.Is(err, ErrMissingCredentials):
		return auditErrMissingCredentials
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrPersonNotFound),
		errors.Is(err, ErrOverrideNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrMfaUnavailable):
		return auditErrMfaUnavailable
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrNotificationFailed):
		return auditErrSendFailure
	case errors.Is(err, ErrRequestRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrDirectoryUnavailable),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrResetUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
