package authcore

import (
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Lockout       LockoutConfig
	Mfa           MfaConfig
	Token         TokenConfig
	Session       SessionConfig
	Password      PasswordConfig
	EmailBackfill EmailBackfillConfig
	Throttle      ThrottleConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by authcore APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	// Threshold is the number of consecutive failed login attempts that
	// lock the account. The MFA wrong-code threshold is a separate knob
	// (Mfa.MaxAttempts).
	Threshold int
	// CounterTTL bounds how long a partial failure count survives with no
	// further attempts. 0 keeps counters until reset.
	CounterTTL time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MfaConfig defines a public type used by authcore APIs.
//
// MfaConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MfaConfig struct {
	// RequiredRoles lists the authorities whose holders must complete a
	// second factor regardless of client policy (unless the client opts
	// out with MfaPolicyNone).
	RequiredRoles []string
	// ClientPolicies maps an OAuth client id to its MFA policy mode.
	// Clients not listed use DefaultPolicy.
	ClientPolicies map[string]MfaPolicyMode
	DefaultPolicy  MfaPolicyMode
	CodeLength     int
	ChallengeTTL   time.Duration
	// MaxAttempts is the number of consecutive wrong codes that locks the
	// account. Independent of Lockout.Threshold.
	MaxAttempts int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authcore APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// TTL overrides the default lifetime per token type. Types not listed
	// use the defaults from defaultConfig.
	TTL map[TokenType]time.Duration
	// ExpiredRetention is how long an expired token row is kept so that
	// "expired" stays distinguishable from "invalid" (absent).
	ExpiredRetention time.Duration
}

// Lifetime returns the configured TTL for a token type, falling back to a
// conservative default for unknown types.
func (c TokenConfig) Lifetime(tokenType TokenType) time.Duration {
	if ttl, ok := c.TTL[tokenType]; ok && ttl > 0 {
		return ttl
	}
	return time.Hour
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	// Enabled turns on signed session-token issuance after a fully
	// authenticated login. When false, AuthResult carries only the
	// Principal and the caller finalizes the session itself.
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "hs256" or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	// Scheme selects the hasher for newly written local credentials:
	// "bcrypt" (default) or "argon2id". Verification always detects the
	// scheme from the stored hash, including the deprecated salted-SHA1
	// format kept for backward compatibility.
	Scheme     string
	BcryptCost int

	Argon2Memory      uint32 // in KB
	Argon2Time        uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	MinLength int
}

// EmailBackfillConfig defines a public type used by authcore APIs.
//
// EmailBackfillConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailBackfillConfig struct {
	// ApprovedDomains lists the email domains eligible for the one-time
	// pre-verified backfill on first login from a non-local source.
	ApprovedDomains []string
}

// ThrottleConfig defines a public type used by authcore APIs.
//
// ThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThrottleConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold:  3,
			CounterTTL: 0,
		},
		Mfa: MfaConfig{
			DefaultPolicy: MfaPolicyUntrusted,
			CodeLength:    6,
			ChallengeTTL:  20 * time.Minute,
			MaxAttempts:   3,
		},
		Token: TokenConfig{
			TTL: map[TokenType]time.Duration{
				TokenReset:     24 * time.Hour,
				TokenChange:    20 * time.Minute,
				TokenMfa:       20 * time.Minute,
				TokenAccount:   7 * 24 * time.Hour,
				TokenVerified:  24 * time.Hour,
				TokenSecondary: 24 * time.Hour,
				TokenConfirm:   24 * time.Hour,
			},
			ExpiredRetention: 24 * time.Hour,
		},
		Session: SessionConfig{
			Enabled:       false,
			TTL:           time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Scheme:            "bcrypt",
			BcryptCost:        10,
			Argon2Memory:      65536,
			Argon2Time:        3,
			Argon2Parallelism: 2,
			Argon2SaltLength:  16,
			Argon2KeyLength:   32,
			MinLength:         9,
		},
		EmailBackfill: EmailBackfillConfig{
			ApprovedDomains: []string{"justice.gov.uk"},
		},
		Throttle: ThrottleConfig{
			Enabled:     true,
			MaxRequests: 5,
			Window:      10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg

	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)

	if cfg.Mfa.RequiredRoles != nil {
		out.Mfa.RequiredRoles = append([]string(nil), cfg.Mfa.RequiredRoles...)
	}
	if cfg.Mfa.ClientPolicies != nil {
		out.Mfa.ClientPolicies = make(map[string]MfaPolicyMode, len(cfg.Mfa.ClientPolicies))
		for client, mode := range cfg.Mfa.ClientPolicies {
			out.Mfa.ClientPolicies[client] = mode
		}
	}
	if cfg.Token.TTL != nil {
		out.Token.TTL = make(map[TokenType]time.Duration, len(cfg.Token.TTL))
		for tokenType, ttl := range cfg.Token.TTL {
			out.Token.TTL[tokenType] = ttl
		}
	}
	if cfg.EmailBackfill.ApprovedDomains != nil {
		out.EmailBackfill.ApprovedDomains = append([]string(nil), cfg.EmailBackfill.ApprovedDomains...)
	}

	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}

	if c.Mfa.CodeLength < 4 || c.Mfa.CodeLength > 10 {
		return errors.New("Mfa CodeLength must be between 4 and 10")
	}
	if c.Mfa.MaxAttempts < 1 {
		return errors.New("Mfa MaxAttempts must be >= 1")
	}
	if c.Mfa.ChallengeTTL <= 0 {
		return errors.New("Mfa ChallengeTTL must be > 0")
	}
	switch c.Mfa.DefaultPolicy {
	case MfaPolicyNone, MfaPolicyUntrusted, MfaPolicyAll:
	default:
		return errors.New("unsupported Mfa DefaultPolicy")
	}
	for client, mode := range c.Mfa.ClientPolicies {
		switch mode {
		case MfaPolicyNone, MfaPolicyUntrusted, MfaPolicyAll:
		default:
			return errors.New("unsupported Mfa policy for client " + client)
		}
	}

	if c.Token.ExpiredRetention < 0 {
		return errors.New("Token ExpiredRetention must be >= 0")
	}
	for tokenType, ttl := range c.Token.TTL {
		if ttl <= 0 {
			return errors.New("Token TTL must be > 0 for type " + string(tokenType))
		}
	}

	if c.Session.Enabled {
		if c.Session.TTL <= 0 {
			return errors.New("Session TTL must be > 0")
		}
		if c.Session.SigningMethod != "hs256" && c.Session.SigningMethod != "ed25519" {
			return errors.New("unsupported Session signing method")
		}
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("Session signing requires a private key")
		}
	}

	switch c.Password.Scheme {
	case "bcrypt", "argon2id":
	default:
		return errors.New("unsupported Password Scheme")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	if c.Throttle.Enabled {
		if c.Throttle.MaxRequests < 1 {
			return errors.New("Throttle MaxRequests must be >= 1")
		}
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0")
		}
	}

	return nil
}
