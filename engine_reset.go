package authcore

import (
	"context"
	"strings"
)

// PasswordReset is returned by [Engine.RequestPasswordReset]: the RESET token
// for the confirm step and the masked address the link was delivered to.
type PasswordReset struct {
	Token       string
	Destination string
}

// RequestPasswordReset starts the out-of-band reset flow: it throttles the
// request, issues a RESET token (replacing any earlier one), and delivers it
// to the account's email address.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) (*PasswordReset, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.credentials == nil {
		return nil, ErrResetUnavailable
	}
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrMissingCredentials
	}

	if err := e.throttle.Check(ctx, "reset", username); err != nil {
		e.metricInc(MetricRequestRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, username, SourceNone, err, nil)
		return nil, err
	}

	id, err := e.resolver.Resolve(ctx, username, SourceNone)
	if err != nil {
		return nil, err
	}

	destination := resetDestination(id)
	if destination == "" {
		return nil, ErrNotificationFailed
	}

	token, err := e.tokens.Create(ctx, TokenReset, &tokenRecord{Username: username}, e.config.Token.Lifetime(TokenReset))
	if err != nil {
		return nil, e.mapTokenError(err)
	}
	e.metricInc(MetricTokenCreated)

	if err := e.sendCode(ctx, ChannelEmail, destination, token); err != nil {
		return nil, err
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequest, true, username, id.source, nil, nil)

	return &PasswordReset{
		Token:       token,
		Destination: MaskEmail(destination),
	}, nil
}

// ConfirmPasswordReset completes the flow: it validates the RESET token,
// enforces password policy, writes the new hash, consumes the token, zeroes
// the retry counter, and clears the lock flag. This is the out-of-band
// unlock path: a locked-out user who proves mailbox ownership gets back in.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return e.confirmNewPassword(ctx, TokenReset, token, newPassword)
}

// ConfirmPasswordChange completes the expired-credentials flow started by
// [CredentialsExpiredError], using the CHANGE token it carried.
func (e *Engine) ConfirmPasswordChange(ctx context.Context, token, newPassword string) error {
	return e.confirmNewPassword(ctx, TokenChange, token, newPassword)
}

func (e *Engine) confirmNewPassword(ctx context.Context, tokenType TokenType, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.credentials == nil {
		return ErrResetUnavailable
	}

	record, err := e.tokens.Get(ctx, tokenType, token)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return e.mapTokenError(err)
	}

	if err := e.checkPasswordPolicy(record.Username, newPassword); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetConfirm, false, record.Username, SourceNone, err, nil)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.credentials.UpdatePassword(ctx, record.Username, hash); err != nil {
		return err
	}

	if _, err := e.tokens.Consume(ctx, tokenType, token); err != nil {
		return e.mapTokenError(err)
	}
	e.metricInc(MetricTokenConsumed)

	if err := e.retries.Reset(ctx, record.Username); err != nil {
		return err
	}
	if err := e.locker.Unlock(ctx, record.Username); err != nil {
		return err
	}

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventResetConfirm, true, record.Username, SourceNone, nil, nil)
	return nil
}

func (e *Engine) checkPasswordPolicy(username, newPassword string) error {
	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	if strings.EqualFold(newPassword, username) {
		return ErrPasswordPolicy
	}
	return nil
}

// resetDestination prefers the verified override address, falling back to
// whatever the master source reports.
func resetDestination(id *resolvedIdentity) string {
	if id.override != nil && id.override.Email != "" {
		return id.override.Email
	}
	if id.person != nil {
		return id.person.Email
	}
	return ""
}
