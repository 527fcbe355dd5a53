package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mojdigital/authcore/jwt"
	"github.com/mojdigital/authcore/password"
	"go.uber.org/zap"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	directories map[AuthSource]PersonDirectory
	overrides   OverrideStore
	remote      RemoteAuthenticator
	credentials CredentialStore
	notifier    Notifier
	locker      AccountLocker
	resolver    *identityResolver
	tokens      *tokenStore
	retries     *retryTracker
	throttle    *requestLimiter
	hasher      password.Hasher
	jwtManager  *jwt.Manager
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *zap.Logger
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate runs one login attempt against the fallback source order.
// The result is either a fully authenticated principal (with a session token
// when issuance is configured) or the MFA-challenge branch; every failure
// mode is a sentinel or typed error carrying a [ReasonCode].
func (e *Engine) Authenticate(ctx context.Context, username, secret string) (*AuthResult, error) {
	return e.AuthenticateWithSource(ctx, username, secret, SourceNone)
}

// AuthenticateWithSource is [Engine.Authenticate] with an explicitly claimed
// source, used for delegated and federated logins.
func (e *Engine) AuthenticateWithSource(ctx context.Context, username, secret string, source AuthSource) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	// Blank credentials are rejected before any lookup so a wildcard value
	// can never reach a directory query.
	if NormalizeUsername(username) == "" || secret == "" {
		e.metricInc(MetricLoginMissingCredentials)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", source, ErrMissingCredentials, nil)
		return nil, ErrMissingCredentials
	}

	id, err := e.resolver.Resolve(ctx, username, source)
	if err != nil {
		if errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, ErrUpstreamUnavailable) {
			e.metricInc(MetricUpstreamUnavailable)
			e.emitAudit(ctx, auditEventLoginUnavailable, false, NormalizeUsername(username), source, err, nil)
			return nil, ErrUpstreamUnavailable
		}
		if errors.Is(err, ErrPersonNotFound) {
			// Unknown users share the mismatch path to avoid an
			// enumeration signal; they still count against the retry
			// budget for the attempted name.
			return nil, e.registerFailure(ctx, NormalizeUsername(username), source)
		}
		return nil, err
	}

	principal := id.principal

	ok, err := e.verifyCredential(ctx, id, secret)
	if err != nil {
		if errors.Is(err, errNoVerifiableCredential) {
			// Answer looks like a mismatch, but nothing was actually
			// checked, so the retry budget is untouched.
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, principal.Username(), id.source, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		e.metricInc(MetricUpstreamUnavailable)
		e.emitAudit(ctx, auditEventLoginUnavailable, false, principal.Username(), id.source, err, nil)
		return nil, err
	}
	if !ok {
		return nil, e.registerFailure(ctx, principal.Username(), id.source)
	}

	// Administrative lock and disable are checked independently of the
	// counter and never increment it.
	if !principal.AccountNonLocked() {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, principal.Username(), id.source, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	if !principal.Enabled() {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.Username(), id.source, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	override, err := e.recordLoginSuccess(ctx, id)
	if err != nil {
		return nil, err
	}

	if !principal.CredentialsNonExpired() {
		changeToken, err := e.tokens.Create(ctx, TokenChange, &tokenRecord{Username: principal.Username()}, e.config.Token.Lifetime(TokenChange))
		if err != nil {
			return nil, e.mapTokenError(err)
		}
		e.metricInc(MetricTokenCreated)
		return nil, &CredentialsExpiredError{ChangeToken: changeToken}
	}

	if e.needsMfa(ctx, principal) {
		challenge, err := e.issueMfaChallenge(ctx, principal, override, "")
		if err != nil {
			return nil, err
		}

		e.metricInc(MetricMfaRequired)
		e.emitAudit(ctx, auditEventMfaRequired, true, principal.Username(), id.source, nil, func() map[string]string {
			return map[string]string{"channel": string(challenge.Channel)}
		})

		return &AuthResult{
			Principal:       principal,
			MFARequired:     true,
			MFAToken:        challenge.Token,
			MFAChannel:      challenge.Channel,
			CodeDestination: challenge.Destination,
		}, nil
	}

	return e.finalizeLogin(ctx, principal, auditEventLoginSuccess)
}

// UnlockAccount is the administrative unlock path: it clears the lock flag
// and zeroes the retry counter so the next failure starts a fresh budget.
func (e *Engine) UnlockAccount(ctx context.Context, username string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	username = NormalizeUsername(username)
	if username == "" {
		return ErrMissingCredentials
	}

	if err := e.locker.Unlock(ctx, username); err != nil {
		return err
	}
	if err := e.retries.Reset(ctx, username); err != nil {
		return err
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, username, SourceNone, nil, nil)
	return nil
}

// verifyCredential applies the source-specific strategy. A false return is a
// plain mismatch; a non-nil error is an upstream outage, never a mismatch.
// errNoVerifiableCredential marks a source that carries no secret this
// engine can check (federated identities, or delius without a remote
// authenticator). The caller answers a generic failure but never charges
// the retry budget for it.
var errNoVerifiableCredential = errors.New("no verifiable credential for source")

func (e *Engine) verifyCredential(ctx context.Context, id *resolvedIdentity, secret string) (bool, error) {
	switch p := id.principal.(type) {
	case *LocalPrincipal:
		return e.verifyHash(p.PasswordHash(), secret)
	case *NomisPrincipal:
		return e.verifyHash(p.PasswordHash(), secret)
	case *DeliusPrincipal:
		if e.remote == nil {
			return false, errNoVerifiableCredential
		}
		ok, err := e.remote.Authenticate(ctx, id.principal.Username(), secret)
		if err != nil {
			if errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, ErrUpstreamUnavailable) {
				return false, ErrUpstreamUnavailable
			}
			return false, err
		}
		return ok, nil
	default:
		return false, errNoVerifiableCredential
	}
}

func (e *Engine) verifyHash(hash, secret string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	verifier, err := password.Detect(hash)
	if err != nil {
		e.logger.Warn("unparseable stored credential hash", zap.Error(err))
		return false, nil
	}
	ok, err := verifier.Verify(secret, hash)
	if err != nil {
		e.logger.Warn("credential verification error", zap.Error(err))
		return false, nil
	}
	return ok, nil
}

// registerFailure increments the retry counter and, at the threshold, locks
// the account. The counter itself never raises the lock; the engine composes
// the tracker and the lock collaborator.
func (e *Engine) registerFailure(ctx context.Context, username string, source AuthSource) error {
	count, locked, err := e.retries.Increment(ctx, username)
	if err != nil {
		return err
	}

	if locked {
		if lockErr := e.locker.Lock(ctx, username); lockErr != nil {
			return lockErr
		}
		e.metricInc(MetricLoginLocked)
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, username, source, ErrAccountLocked, func() map[string]string {
			return map[string]string{"attempts": strconv.Itoa(count)}
		})
		return ErrAccountLocked
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, username, source, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"attempts": strconv.Itoa(count)}
	})
	return ErrInvalidCredentials
}

// recordLoginSuccess is the reset-and-record step: the counter write always
// happens, the override row is created on first login, and the one-time
// email backfill runs only while no override row existed.
func (e *Engine) recordLoginSuccess(ctx context.Context, id *resolvedIdentity) (*OverrideRecord, error) {
	username := id.principal.Username()

	if err := e.retries.Reset(ctx, username); err != nil {
		return nil, err
	}

	override := id.override
	firstLogin := override == nil
	if firstLogin {
		override = &OverrideRecord{
			Username: username,
			Enabled:  true,
		}
	}
	override.LastLoggedIn = time.Now()

	if firstLogin && id.source != SourceLocal {
		if email, ok := e.backfillEmail(id.person); ok {
			override.Email = email
			override.VerifiedEmail = true
			e.metricInc(MetricEmailBackfill)
			e.emitAudit(ctx, auditEventEmailBackfill, true, username, id.source, nil, nil)
		}
	}

	if err := e.overrides.Upsert(ctx, override); err != nil {
		return nil, err
	}

	return override, nil
}

// backfillEmail returns the source's candidate address when exactly one
// exists and it sits on an approved domain. Ambiguity is resolved by doing
// nothing; the account simply stays unverified. The count gate runs before
// the domain check, so a second candidate blocks the backfill even when
// only one of the two is on an approved domain.
func (e *Engine) backfillEmail(person *PersonRecord) (string, bool) {
	candidates := person.CandidateEmails
	if len(candidates) == 0 && person.Email != "" {
		candidates = []string{person.Email}
	}

	if len(candidates) != 1 {
		return "", false
	}
	if !e.approvedDomain(candidates[0]) {
		return "", false
	}
	return candidates[0], true
}

func (e *Engine) approvedDomain(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, approved := range e.config.EmailBackfill.ApprovedDomains {
		if domain == strings.ToLower(approved) {
			return true
		}
	}
	return false
}

// finalizeLogin issues the session token when configured and emits the
// terminal success signals for the flow.
func (e *Engine) finalizeLogin(ctx context.Context, principal Principal, auditEvent string) (*AuthResult, error) {
	result := &AuthResult{Principal: principal}

	if e.jwtManager != nil {
		token, err := e.jwtManager.CreateSession(principal.Username(), string(principal.Source()), principal.Authorities())
		if err != nil {
			return nil, err
		}
		result.SessionToken = token
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEvent, true, principal.Username(), principal.Source(), nil, nil)
	return result, nil
}

// mapTokenError converts internal store errors to the public sentinels.
func (e *Engine) mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errTokenNotFound):
		return ErrTokenInvalid
	case errors.Is(err, errTokenIsExpired):
		return ErrTokenExpired
	case errors.Is(err, errTokenBackend):
		return ErrStoreUnavailable
	default:
		return err
	}
}
