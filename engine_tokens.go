package authcore

import (
	"context"
	"errors"
	"time"
)

// CreateToken issues a typed single-use token for the user, replacing any
// live token of the same type. The TTL comes from Config.Token.
func (e *Engine) CreateToken(ctx context.Context, username string, tokenType TokenType) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	username = NormalizeUsername(username)
	if username == "" {
		return "", ErrMissingCredentials
	}

	token, err := e.tokens.Create(ctx, tokenType, &tokenRecord{Username: username}, e.config.Token.Lifetime(tokenType))
	if err != nil {
		return "", e.mapTokenError(err)
	}

	e.metricInc(MetricTokenCreated)
	e.emitAudit(ctx, auditEventTokenCreated, true, username, SourceNone, nil, func() map[string]string {
		return map[string]string{"token_type": string(tokenType)}
	})
	return token, nil
}

// CheckToken reports validity without consuming: nil for a live token,
// [ErrTokenExpired] for one past expiry but still within the retention
// window, [ErrTokenInvalid] for one that does not exist. Safe to call
// repeatedly, e.g. to render a resend page.
func (e *Engine) CheckToken(ctx context.Context, tokenType TokenType, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrTokenInvalid
	}
	if err := e.tokens.Check(ctx, tokenType, token); err != nil {
		if errors.Is(err, errTokenIsExpired) {
			e.metricInc(MetricTokenExpired)
		}
		return e.mapTokenError(err)
	}
	return nil
}

// GetToken is the non-consuming read of the owning user and expiry, used
// after a successful CheckToken to avoid re-deciding validity.
func (e *Engine) GetToken(ctx context.Context, tokenType TokenType, token string) (*TokenRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.tokens.Get(ctx, tokenType, token)
	if err != nil && !errors.Is(err, errTokenIsExpired) {
		return nil, e.mapTokenError(err)
	}

	return &TokenRecord{
		Token:    token,
		Type:     tokenType,
		Username: record.Username,
		Expiry:   time.Unix(record.ExpiresAt, 0),
	}, nil
}

// ConsumeToken deletes the token. Consuming an already-absent token is not
// an error, so flows may call this defensively after use.
func (e *Engine) ConsumeToken(ctx context.Context, tokenType TokenType, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	record, err := e.tokens.Consume(ctx, tokenType, token)
	if err != nil {
		if errors.Is(err, errTokenNotFound) || errors.Is(err, errTokenIsExpired) {
			return nil
		}
		return e.mapTokenError(err)
	}

	e.metricInc(MetricTokenConsumed)
	e.emitAudit(ctx, auditEventTokenConsumed, true, record.Username, SourceNone, nil, func() map[string]string {
		return map[string]string{"token_type": string(tokenType)}
	})
	return nil
}
