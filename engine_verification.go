package authcore

import (
	"context"
	"errors"
)

// VerificationRequest is returned by [Engine.RequestVerification].
type VerificationRequest struct {
	Token       string
	Channel     MfaChannel
	Destination string
}

// verificationTokenType maps a contact channel to the token type that
// confirms it: VERIFIED for the primary email, SECONDARY for the secondary
// email, CONFIRM for the mobile number.
func verificationTokenType(channel MfaChannel) (TokenType, error) {
	switch channel {
	case ChannelEmail:
		return TokenVerified, nil
	case ChannelSecondaryEmail:
		return TokenSecondary, nil
	case ChannelText:
		return TokenConfirm, nil
	default:
		return "", errors.New("unsupported verification channel")
	}
}

// RequestVerification issues a verification token for one of the user's
// stored contact methods and delivers it there. The stored address itself is
// the target: verification proves possession of what is already on record.
func (e *Engine) RequestVerification(ctx context.Context, username string, channel MfaChannel) (*VerificationRequest, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrMissingCredentials
	}

	tokenType, err := verificationTokenType(channel)
	if err != nil {
		return nil, err
	}

	if err := e.throttle.Check(ctx, "verify", username); err != nil {
		e.metricInc(MetricRequestRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, username, SourceNone, err, nil)
		return nil, err
	}

	id, err := e.resolver.Resolve(ctx, username, SourceNone)
	if err != nil {
		return nil, err
	}

	destination := contactDestination(id, channel)
	if destination == "" {
		return nil, ErrNotificationFailed
	}

	token, err := e.tokens.Create(ctx, tokenType, &tokenRecord{Username: username, Channel: string(channel)}, e.config.Token.Lifetime(tokenType))
	if err != nil {
		return nil, e.mapTokenError(err)
	}
	e.metricInc(MetricTokenCreated)

	if err := e.sendCode(ctx, channel, destination, token); err != nil {
		return nil, err
	}

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, username, id.source, nil, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})

	return &VerificationRequest{
		Token:       token,
		Channel:     channel,
		Destination: maskDestination(channel, destination),
	}, nil
}

// ConfirmVerification consumes a verification token and flips the matching
// verified flag on the override record, creating the row if the user has
// never logged in.
func (e *Engine) ConfirmVerification(ctx context.Context, tokenType TokenType, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	switch tokenType {
	case TokenVerified, TokenSecondary, TokenConfirm:
	default:
		return errors.New("unsupported verification token type")
	}

	record, err := e.tokens.Consume(ctx, tokenType, token)
	if err != nil {
		return e.mapTokenError(err)
	}
	e.metricInc(MetricTokenConsumed)

	override, err := e.overrides.Find(ctx, record.Username)
	if err != nil {
		if !errors.Is(err, ErrOverrideNotFound) {
			return err
		}
		override = &OverrideRecord{Username: record.Username, Enabled: true}
	}

	switch tokenType {
	case TokenVerified:
		override.VerifiedEmail = true
	case TokenSecondary:
		override.SecondaryEmailVerified = true
	case TokenConfirm:
		override.MobileVerified = true
	}

	if err := e.overrides.Upsert(ctx, override); err != nil {
		return err
	}

	e.metricInc(MetricVerificationConfirm)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, record.Username, SourceNone, nil, func() map[string]string {
		return map[string]string{"token_type": string(tokenType)}
	})
	return nil
}

// contactDestination returns the stored, possibly unverified, address for
// the channel. Override values win over source-system values.
func contactDestination(id *resolvedIdentity, channel MfaChannel) string {
	switch channel {
	case ChannelEmail:
		if id.override != nil && id.override.Email != "" {
			return id.override.Email
		}
		if id.person != nil {
			return id.person.Email
		}
	case ChannelSecondaryEmail:
		if id.override != nil {
			return id.override.SecondaryEmail
		}
	case ChannelText:
		if id.override != nil && id.override.Mobile != "" {
			return id.override.Mobile
		}
		if id.person != nil {
			return id.person.Mobile
		}
	}
	return ""
}
