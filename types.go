package authcore

import (
	"context"
	"time"
)

// AuthSource identifies the backend system that owns a principal's master
// record.
type AuthSource string

const (
	// SourceLocal is an exported constant or variable used by the authentication engine.
	SourceLocal AuthSource = "local"
	// SourceNomis is an exported constant or variable used by the authentication engine.
	SourceNomis AuthSource = "nomis"
	// SourceDelius is an exported constant or variable used by the authentication engine.
	SourceDelius AuthSource = "delius"
	// SourceAzureAD is an exported constant or variable used by the authentication engine.
	SourceAzureAD AuthSource = "azuread"
	// SourceNone is an exported constant or variable used by the authentication engine.
	SourceNone AuthSource = "none"
)

// TokenType scopes a stored token to the single follow-up action it
// authorizes. At most one live token exists per (username, type) pair.
type TokenType string

const (
	// TokenReset is an exported constant or variable used by the authentication engine.
	TokenReset TokenType = "RESET"
	// TokenChange is an exported constant or variable used by the authentication engine.
	TokenChange TokenType = "CHANGE"
	// TokenMfa is an exported constant or variable used by the authentication engine.
	TokenMfa TokenType = "MFA"
	// TokenAccount is an exported constant or variable used by the authentication engine.
	TokenAccount TokenType = "ACCOUNT"
	// TokenVerified is an exported constant or variable used by the authentication engine.
	TokenVerified TokenType = "VERIFIED"
	// TokenSecondary is an exported constant or variable used by the authentication engine.
	TokenSecondary TokenType = "SECONDARY"
	// TokenConfirm is an exported constant or variable used by the authentication engine.
	TokenConfirm TokenType = "CONFIRM"
)

// MfaPreference is the user's configured second-factor delivery preference,
// stored on the override record.
type MfaPreference string

const (
	// MfaPreferenceEmail is an exported constant or variable used by the authentication engine.
	MfaPreferenceEmail MfaPreference = "EMAIL"
	// MfaPreferenceText is an exported constant or variable used by the authentication engine.
	MfaPreferenceText MfaPreference = "TEXT"
	// MfaPreferenceSecondaryEmail is an exported constant or variable used by the authentication engine.
	MfaPreferenceSecondaryEmail MfaPreference = "SECONDARY_EMAIL"
)

// MfaChannel names the delivery channel a one-time code is sent through.
type MfaChannel string

const (
	// ChannelEmail is an exported constant or variable used by the authentication engine.
	ChannelEmail MfaChannel = "email"
	// ChannelText is an exported constant or variable used by the authentication engine.
	ChannelText MfaChannel = "text"
	// ChannelSecondaryEmail is an exported constant or variable used by the authentication engine.
	ChannelSecondaryEmail MfaChannel = "secondaryemail"
)

// MfaPolicyMode is a client-level MFA policy: "none" opts the client out,
// "untrusted" honors the role-based requirement, "all" always requires a
// second factor.
type MfaPolicyMode string

const (
	// MfaPolicyNone is an exported constant or variable used by the authentication engine.
	MfaPolicyNone MfaPolicyMode = "none"
	// MfaPolicyUntrusted is an exported constant or variable used by the authentication engine.
	MfaPolicyUntrusted MfaPolicyMode = "untrusted"
	// MfaPolicyAll is an exported constant or variable used by the authentication engine.
	MfaPolicyAll MfaPolicyMode = "all"
)

// PersonRecord is the per-source view of a user returned by a
// [PersonDirectory]. Only the local directory populates PasswordHash;
// CandidateEmails is consulted once, for the first-login email backfill.
type PersonRecord struct {
	Username              string
	DisplayName           string
	Email                 string
	CandidateEmails       []string
	Mobile                string
	Roles                 []string
	Enabled               bool
	AccountNonLocked      bool
	CredentialsNonExpired bool
	PasswordHash          string
}

// Principal is the read-only, per-request view of an authenticated (or
// authenticating) user. One concrete variant exists per [AuthSource]; the
// identity resolver is the only component that constructs them.
type Principal interface {
	Username() string
	DisplayName() string
	Source() AuthSource
	Authorities() []string
	Enabled() bool
	AccountNonLocked() bool
	CredentialsNonExpired() bool
}

type basePrincipal struct {
	username              string
	displayName           string
	authorities           []string
	enabled               bool
	accountNonLocked      bool
	credentialsNonExpired bool
}

func (p basePrincipal) Username() string            { return p.username }
func (p basePrincipal) DisplayName() string         { return p.displayName }
func (p basePrincipal) Authorities() []string       { return p.authorities }
func (p basePrincipal) Enabled() bool               { return p.enabled }
func (p basePrincipal) AccountNonLocked() bool      { return p.accountNonLocked }
func (p basePrincipal) CredentialsNonExpired() bool { return p.credentialsNonExpired }

// LocalPrincipal is the [Principal] variant for locally-mastered accounts.
// It is the only variant carrying a persisted password hash.
type LocalPrincipal struct {
	basePrincipal
	passwordHash string
}

// Source describes the source operation and its observable behavior.
func (p *LocalPrincipal) Source() AuthSource { return SourceLocal }

// PasswordHash returns the stored credential hash for local verification.
func (p *LocalPrincipal) PasswordHash() string { return p.passwordHash }

// NomisPrincipal is the [Principal] variant for nomis-mastered accounts.
type NomisPrincipal struct {
	basePrincipal
	passwordHash string
}

// Source describes the source operation and its observable behavior.
func (p *NomisPrincipal) Source() AuthSource { return SourceNomis }

// PasswordHash returns the legacy nomis credential hash, verified by the
// deprecated salted-SHA1-compatible verifier.
func (p *NomisPrincipal) PasswordHash() string { return p.passwordHash }

// DeliusPrincipal is the [Principal] variant for delius-mastered accounts.
// Delius holds no local secret; verification delegates to the remote
// directory.
type DeliusPrincipal struct {
	basePrincipal
}

// Source describes the source operation and its observable behavior.
func (p *DeliusPrincipal) Source() AuthSource { return SourceDelius }

// AzurePrincipal is the [Principal] variant for azuread-federated accounts.
// Azure accounts carry no verifiable secret here; they are resolved only for
// federated logins where the identity assertion arrives out of band.
type AzurePrincipal struct {
	basePrincipal
}

// Source describes the source operation and its observable behavior.
func (p *AzurePrincipal) Source() AuthSource { return SourceAzureAD }

// OverrideRecord is the locally-owned record of lock state, verified contact
// methods, and MFA preference layered onto whichever source supplies the base
// identity. It is keyed by username and created lazily on first successful
// login.
type OverrideRecord struct {
	Username               string
	Locked                 bool
	Enabled                bool
	Email                  string
	VerifiedEmail          bool
	SecondaryEmail         string
	SecondaryEmailVerified bool
	Mobile                 string
	MobileVerified         bool
	MfaPreference          MfaPreference
	LastLoggedIn           time.Time
}

// TokenRecord is the non-consuming read view of a stored token, returned by
// [Engine.GetToken] once a check has already succeeded.
type TokenRecord struct {
	Token    string
	Type     TokenType
	Username string
	Expiry   time.Time
}

// AuthResult is returned by [Engine.Authenticate] and [Engine.ConfirmMfa].
// Exactly one of the two branches is populated: a fully authenticated
// principal (with a session token when session issuance is configured), or
// the MFA-challenge branch carrying the challenge token and the masked
// destination the one-time code was sent to.
type AuthResult struct {
	Principal    Principal
	SessionToken string

	MFARequired     bool
	MFAToken        string
	MFAChannel      MfaChannel
	CodeDestination string
}

// MfaChallenge is returned by [Engine.CreateMfaChallenge]. Code is the
// plaintext one-time code for delivery; only its hash is persisted.
type MfaChallenge struct {
	Token       string
	Code        string
	Channel     MfaChannel
	Destination string
}

// PersonDirectory is the per-source person lookup collaborator. Lookup
// returns [ErrPersonNotFound] when the source does not recognize the
// username, and wraps [ErrDirectoryUnavailable] when the source system is
// unreachable; the engine never counts an outage against the retry budget.
type PersonDirectory interface {
	Lookup(ctx context.Context, username string) (*PersonRecord, error)
}

// RemoteAuthenticator verifies a secret against a delegated source (delius).
// Errors wrapping [ErrDirectoryUnavailable] signal an upstream outage.
type RemoteAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// OverrideStore persists the [OverrideRecord] rows this engine overlays but
// does not exclusively own. Find returns [ErrOverrideNotFound] when no row
// exists. SetLocked must create the row if absent and must be atomic with
// respect to concurrent reads of the locked flag.
type OverrideStore interface {
	Find(ctx context.Context, username string) (*OverrideRecord, error)
	Upsert(ctx context.Context, record *OverrideRecord) error
	SetLocked(ctx context.Context, username string, locked bool) error
}

// CredentialStore writes new local credential hashes, used by the
// password-reset and change flows. Optional: when absent those flows are
// disabled.
type CredentialStore interface {
	UpdatePassword(ctx context.Context, username, newHash string) error
}

// Notifier delivers one-time codes and verification links. Implementations
// own templating and transport; the engine only supplies the channel, the
// unmasked destination, and the code.
type Notifier interface {
	Send(ctx context.Context, channel MfaChannel, destination, code string) error
}

// AccountLocker persists the locked flag on whichever store owns the
// principal's source. The default implementation writes the override record;
// callers supply their own when a source (e.g. nomis) needs a remote write
// as well.
type AccountLocker interface {
	Lock(ctx context.Context, username string) error
	Unlock(ctx context.Context, username string) error
}

type overrideLocker struct {
	overrides OverrideStore
}

func (l overrideLocker) Lock(ctx context.Context, username string) error {
	return l.overrides.SetLocked(ctx, username, true)
}

func (l overrideLocker) Unlock(ctx context.Context, username string) error {
	return l.overrides.SetLocked(ctx, username, false)
}
