package internaldefs

import (
	authcore "github.com/mojdigital/authcore"
)

// CounterDef defines a public type used by authcore APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authcore APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Login attempts answered with the locked state."},
	{ID: authcore.MetricLoginMissingCredentials, Name: "authcore_login_missing_credentials_total", Help: "Login attempts rejected for blank credentials."},
	{ID: authcore.MetricUpstreamUnavailable, Name: "authcore_upstream_unavailable_total", Help: "Login attempts aborted by a source-system outage."},
	{ID: authcore.MetricMfaRequired, Name: "authcore_mfa_required_total", Help: "Login flows requiring an MFA challenge."},
	{ID: authcore.MetricMfaSuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA confirmations."},
	{ID: authcore.MetricMfaFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA confirmations."},
	{ID: authcore.MetricMfaLocked, Name: "authcore_mfa_locked_total", Help: "MFA challenges answered with the locked state."},
	{ID: authcore.MetricMfaResend, Name: "authcore_mfa_resend_total", Help: "MFA code resend operations."},
	{ID: authcore.MetricMfaUnavailable, Name: "authcore_mfa_unavailable_total", Help: "MFA challenges refused for lack of a verified destination."},
	{ID: authcore.MetricTokenCreated, Name: "authcore_token_created_total", Help: "Created tokens."},
	{ID: authcore.MetricTokenConsumed, Name: "authcore_token_consumed_total", Help: "Consumed tokens."},
	{ID: authcore.MetricTokenExpired, Name: "authcore_token_expired_total", Help: "Token checks answered as expired."},
	{ID: authcore.MetricResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authcore.MetricResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authcore.MetricVerificationRequest, Name: "authcore_verification_request_total", Help: "Contact verification requests."},
	{ID: authcore.MetricVerificationConfirm, Name: "authcore_verification_confirm_total", Help: "Contact verification confirmations."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Account lock operations."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Account unlock operations."},
	{ID: authcore.MetricEmailBackfill, Name: "authcore_email_backfill_total", Help: "First-login email backfill writes."},
	{ID: authcore.MetricRequestRateLimited, Name: "authcore_request_rate_limited_total", Help: "Requests denied by the fixed-window throttle."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
