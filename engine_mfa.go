package authcore

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/mojdigital/authcore/internal"
	"go.uber.org/zap"
)

// needsMfa composes the client-level policy with the role-level requirement.
// "none" opts the client out entirely, "all" always challenges, and
// "untrusted" challenges only principals holding a configured MFA role.
func (e *Engine) needsMfa(ctx context.Context, principal Principal) bool {
	mode := e.config.Mfa.DefaultPolicy
	if clientID := clientIDFromContext(ctx); clientID != "" {
		if configured, ok := e.config.Mfa.ClientPolicies[clientID]; ok {
			mode = configured
		}
	}

	switch mode {
	case MfaPolicyNone:
		return false
	case MfaPolicyAll:
		return true
	default:
		return e.hasMfaRole(principal)
	}
}

func (e *Engine) hasMfaRole(principal Principal) bool {
	for _, authority := range principal.Authorities() {
		for _, required := range e.config.Mfa.RequiredRoles {
			if authority == required {
				return true
			}
		}
	}
	return false
}

// CreateMfaChallenge issues a fresh MFA challenge for the user, replacing any
// earlier one, and delivers the code. The returned destination is masked for
// display; the plaintext code never leaves the notifier path.
func (e *Engine) CreateMfaChallenge(ctx context.Context, username string) (*MfaChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	id, err := e.resolver.Resolve(ctx, username, SourceNone)
	if err != nil {
		return nil, err
	}

	challenge, err := e.issueMfaChallenge(ctx, id.principal, id.override, "")
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

// ConfirmMfa validates a submitted code against the challenge token.
//
// The lock state is checked before the code so that once the wrong-code
// lockout has fired, every further submission on this challenge answers
// "locked", including one with the correct code. The token itself survives
// the lockout and disappears only when its expiry retention lapses.
func (e *Engine) ConfirmMfa(ctx context.Context, mfaToken, code string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.tokens.Get(ctx, TokenMfa, mfaToken)
	if err != nil {
		return nil, e.mfaTokenError(ctx, err, "")
	}

	id, err := e.resolver.Resolve(ctx, record.Username, SourceNone)
	if err != nil {
		return nil, err
	}

	if !id.principal.AccountNonLocked() {
		e.metricInc(MetricMfaLocked)
		e.emitAudit(ctx, auditEventMfaLocked, false, record.Username, id.source, ErrAccountLocked, nil)
		return nil, &LoginFlowError{Reason: "locked"}
	}

	submitted := internal.HashCode(code)
	if subtle.ConstantTimeCompare(submitted[:], record.CodeHash[:]) != 1 {
		exceeded, err := e.tokens.RecordFailure(ctx, TokenMfa, mfaToken, e.config.Mfa.MaxAttempts)
		if err != nil {
			return nil, e.mfaTokenError(ctx, err, record.Username)
		}

		if exceeded {
			if lockErr := e.locker.Lock(ctx, record.Username); lockErr != nil {
				return nil, lockErr
			}
			e.metricInc(MetricMfaLocked)
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventMfaLocked, false, record.Username, id.source, ErrAccountLocked, nil)
			return nil, &LoginFlowError{Reason: "locked"}
		}

		e.metricInc(MetricMfaFailure)
		e.emitAudit(ctx, auditEventMfaFailure, false, record.Username, id.source, ErrInvalidCredentials, nil)
		return nil, &MfaFlowError{Reason: "invalid"}
	}

	if _, err := e.tokens.Consume(ctx, TokenMfa, mfaToken); err != nil {
		return nil, e.mapTokenError(err)
	}

	e.metricInc(MetricMfaSuccess)
	return e.finalizeLogin(ctx, id.principal, auditEventMfaSuccess)
}

// ResendMfaCode replaces the code under the same token id with a freshly
// generated one and delivers it, optionally through a different channel. The
// wrong-code attempt counter carries over; a resend never buys extra tries.
func (e *Engine) ResendMfaCode(ctx context.Context, mfaToken string, channel MfaChannel) (*MfaChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.tokens.Get(ctx, TokenMfa, mfaToken)
	if err != nil {
		return nil, e.mfaTokenError(ctx, err, "")
	}

	if err := e.throttle.Check(ctx, "mfaresend", record.Username); err != nil {
		e.metricInc(MetricRequestRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, record.Username, SourceNone, err, nil)
		return nil, err
	}

	id, err := e.resolver.Resolve(ctx, record.Username, SourceNone)
	if err != nil {
		return nil, err
	}

	destination, resolvedChannel, err := e.mfaDestination(id.override, channel)
	if err != nil {
		e.metricInc(MetricMfaUnavailable)
		return nil, err
	}

	code, err := internal.NumericCode(e.config.Mfa.CodeLength)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.ReplaceCode(ctx, TokenMfa, mfaToken, internal.HashCode(code)); err != nil {
		return nil, e.mfaTokenError(ctx, err, record.Username)
	}

	if err := e.sendCode(ctx, resolvedChannel, destination, code); err != nil {
		return nil, err
	}

	e.metricInc(MetricMfaResend)
	e.emitAudit(ctx, auditEventMfaResend, true, record.Username, id.source, nil, func() map[string]string {
		return map[string]string{"channel": string(resolvedChannel)}
	})

	return &MfaChallenge{
		Token:       mfaToken,
		Code:        code,
		Channel:     resolvedChannel,
		Destination: maskDestination(resolvedChannel, destination),
	}, nil
}

// issueMfaChallenge creates the MFA token, generates and delivers the code,
// and returns the challenge with a masked destination.
func (e *Engine) issueMfaChallenge(ctx context.Context, principal Principal, override *OverrideRecord, channel MfaChannel) (*MfaChallenge, error) {
	destination, resolvedChannel, err := e.mfaDestination(override, channel)
	if err != nil {
		e.metricInc(MetricMfaUnavailable)
		e.emitAudit(ctx, auditEventMfaFailure, false, principal.Username(), principal.Source(), err, nil)
		return nil, err
	}

	code, err := internal.NumericCode(e.config.Mfa.CodeLength)
	if err != nil {
		return nil, err
	}

	record := &tokenRecord{
		Username:    principal.Username(),
		CodeHash:    internal.HashCode(code),
		Channel:     string(resolvedChannel),
		Destination: destination,
	}

	token, err := e.tokens.Create(ctx, TokenMfa, record, e.config.Mfa.ChallengeTTL)
	if err != nil {
		return nil, e.mapTokenError(err)
	}
	e.metricInc(MetricTokenCreated)

	if err := e.sendCode(ctx, resolvedChannel, destination, code); err != nil {
		return nil, err
	}

	return &MfaChallenge{
		Token:       token,
		Code:        code,
		Channel:     resolvedChannel,
		Destination: maskDestination(resolvedChannel, destination),
	}, nil
}

// mfaDestination selects a verified contact method: the requested channel if
// given, otherwise the user's stored preference, otherwise any verified
// method in email, text, secondary-email order.
func (e *Engine) mfaDestination(override *OverrideRecord, channel MfaChannel) (string, MfaChannel, error) {
	if override == nil {
		return "", "", ErrMfaUnavailable
	}

	if channel == "" {
		channel = preferredChannel(override.MfaPreference)
	}

	if destination, ok := verifiedDestination(override, channel); ok {
		return destination, channel, nil
	}

	for _, fallback := range []MfaChannel{ChannelEmail, ChannelText, ChannelSecondaryEmail} {
		if fallback == channel {
			continue
		}
		if destination, ok := verifiedDestination(override, fallback); ok {
			return destination, fallback, nil
		}
	}

	return "", "", ErrMfaUnavailable
}

func preferredChannel(preference MfaPreference) MfaChannel {
	switch preference {
	case MfaPreferenceText:
		return ChannelText
	case MfaPreferenceSecondaryEmail:
		return ChannelSecondaryEmail
	default:
		return ChannelEmail
	}
}

func verifiedDestination(override *OverrideRecord, channel MfaChannel) (string, bool) {
	switch channel {
	case ChannelEmail:
		if override.VerifiedEmail && override.Email != "" {
			return override.Email, true
		}
	case ChannelText:
		if override.MobileVerified && override.Mobile != "" {
			return override.Mobile, true
		}
	case ChannelSecondaryEmail:
		if override.SecondaryEmailVerified && override.SecondaryEmail != "" {
			return override.SecondaryEmail, true
		}
	}
	return "", false
}

func maskDestination(channel MfaChannel, destination string) string {
	if channel == ChannelText {
		return MaskPhone(destination)
	}
	return MaskEmail(destination)
}

func (e *Engine) sendCode(ctx context.Context, channel MfaChannel, destination, code string) error {
	if e.notifier == nil {
		return ErrNotificationFailed
	}
	if err := e.notifier.Send(ctx, channel, destination, code); err != nil {
		e.logger.Warn("code delivery failed", zap.Error(err))
		return ErrNotificationFailed
	}
	return nil
}

// mfaTokenError maps store errors on the MFA flow to the terminal
// LoginFlowError reasons.
func (e *Engine) mfaTokenError(ctx context.Context, err error, username string) error {
	switch {
	case errors.Is(err, errTokenNotFound):
		e.metricInc(MetricMfaFailure)
		e.emitAudit(ctx, auditEventMfaFailure, false, username, SourceNone, ErrTokenInvalid, nil)
		return &LoginFlowError{Reason: "invalid"}
	case errors.Is(err, errTokenIsExpired):
		e.metricInc(MetricTokenExpired)
		e.emitAudit(ctx, auditEventMfaFailure, false, username, SourceNone, ErrTokenExpired, nil)
		return &LoginFlowError{Reason: "expired"}
	case errors.Is(err, errTokenBackend):
		return ErrStoreUnavailable
	default:
		return err
	}
}
