package authcore

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"code too short", func(c *Config) { c.Mfa.CodeLength = 3 }},
		{"code too long", func(c *Config) { c.Mfa.CodeLength = 11 }},
		{"zero mfa attempts", func(c *Config) { c.Mfa.MaxAttempts = 0 }},
		{"zero challenge ttl", func(c *Config) { c.Mfa.ChallengeTTL = 0 }},
		{"unknown default policy", func(c *Config) { c.Mfa.DefaultPolicy = "sometimes" }},
		{"unknown client policy", func(c *Config) {
			c.Mfa.ClientPolicies = map[string]MfaPolicyMode{"web": "sometimes"}
		}},
		{"negative retention", func(c *Config) { c.Token.ExpiredRetention = -time.Hour }},
		{"zero token ttl", func(c *Config) { c.Token.TTL[TokenReset] = 0 }},
		{"session without key", func(c *Config) {
			c.Session.Enabled = true
			c.Session.PrivateKey = nil
		}},
		{"unknown signing method", func(c *Config) {
			c.Session.Enabled = true
			c.Session.PrivateKey = []byte("k")
			c.Session.SigningMethod = "rs256"
		}},
		{"unknown password scheme", func(c *Config) { c.Password.Scheme = "md5" }},
		{"zero password length", func(c *Config) { c.Password.MinLength = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTokenLifetimeFallback(t *testing.T) {
	cfg := TokenConfig{TTL: map[TokenType]time.Duration{TokenReset: 2 * time.Hour}}

	if got := cfg.Lifetime(TokenReset); got != 2*time.Hour {
		t.Fatalf("expected configured lifetime, got %v", got)
	}
	if got := cfg.Lifetime(TokenType("OTHER")); got != time.Hour {
		t.Fatalf("expected default lifetime, got %v", got)
	}
}

func TestCloneConfigIsolatesMutableFields(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.PrivateKey = []byte("secret")
	cfg.Mfa.RequiredRoles = []string{"ROLE_MFA"}
	cfg.Mfa.ClientPolicies = map[string]MfaPolicyMode{"web": MfaPolicyAll}

	cloned := cloneConfig(cfg)

	cfg.Session.PrivateKey[0] = 'X'
	cfg.Mfa.RequiredRoles[0] = "CHANGED"
	cfg.Mfa.ClientPolicies["web"] = MfaPolicyNone
	cfg.Token.TTL[TokenReset] = time.Minute
	cfg.EmailBackfill.ApprovedDomains[0] = "evil.example"

	if cloned.Session.PrivateKey[0] == 'X' {
		t.Fatal("expected private key to be copied")
	}
	if cloned.Mfa.RequiredRoles[0] != "ROLE_MFA" {
		t.Fatal("expected required roles to be copied")
	}
	if cloned.Mfa.ClientPolicies["web"] != MfaPolicyAll {
		t.Fatal("expected client policies to be copied")
	}
	if cloned.Token.TTL[TokenReset] != 24*time.Hour {
		t.Fatal("expected token TTL map to be copied")
	}
	if cloned.EmailBackfill.ApprovedDomains[0] != "justice.gov.uk" {
		t.Fatal("expected approved domains to be copied")
	}
}

func TestBuilderRequiresCoreCollaborators(t *testing.T) {
	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	if _, err := New().WithConfig(engineTestConfig()).Build(); err == nil {
		t.Fatal("expected an error without a redis client")
	}
	if _, err := New().WithConfig(engineTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected an error without a directory")
	}
	if _, err := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithDirectory(SourceLocal, newMemoryDirectory()).
		Build(); err == nil {
		t.Fatal("expected an error without an override store")
	}
	if _, err := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithDirectory(SourceDelius, newMemoryDirectory()).
		WithOverrideStore(newMemoryOverrideStore()).
		Build(); err == nil {
		t.Fatal("expected an error for delius without a remote authenticator")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	builder := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithDirectory(SourceLocal, newMemoryDirectory()).
		WithOverrideStore(newMemoryOverrideStore())

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected an error on a second Build")
	}
}
