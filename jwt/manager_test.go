package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func newHS256Manager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret"),
		Issuer:        "authcore-test",
		Audience:      "test-clients",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestSessionRoundTripHS256(t *testing.T) {
	m := newHS256Manager(t)

	token, err := m.CreateSession("ALICE", "local", []string{"ROLE_USER"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	claims, err := m.ParseSession(token)
	if err != nil {
		t.Fatalf("ParseSession failed: %v", err)
	}
	if claims.Subject != "ALICE" {
		t.Fatalf("expected subject ALICE, got %s", claims.Subject)
	}
	if claims.Source != "local" {
		t.Fatalf("expected source local, got %s", claims.Source)
	}
	if len(claims.Authorities) != 1 || claims.Authorities[0] != "ROLE_USER" {
		t.Fatalf("unexpected authorities: %v", claims.Authorities)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
	if claims.Issuer != "authcore-test" {
		t.Fatalf("expected configured issuer, got %s", claims.Issuer)
	}
}

func TestSessionRoundTripEd25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateSession("BOB", "nomis", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	claims, err := m.ParseSession(token)
	if err != nil {
		t.Fatalf("ParseSession failed: %v", err)
	}
	if claims.Subject != "BOB" || claims.Source != "nomis" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseSessionRejectsWrongKey(t *testing.T) {
	m := newHS256Manager(t)

	other, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("a-different-secret"),
		Issuer:        "authcore-test",
		Audience:      "test-clients",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateSession("ALICE", "local", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := other.ParseSession(token); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestParseSessionRejectsExpiredToken(t *testing.T) {
	m, err := NewManager(Config{
		TTL:           time.Nanosecond,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateSession("ALICE", "local", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected expiry rejection")
	}
}

func TestParseSessionEnforcesIssuerAndAudience(t *testing.T) {
	issuing := newHS256Manager(t)

	strictOther, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-signing-secret"),
		Issuer:        "someone-else",
		Audience:      "test-clients",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := issuing.CreateSession("ALICE", "local", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := strictOther.ParseSession(token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"hs256 without key", Config{TTL: time.Hour, SigningMethod: MethodHS256}},
		{"unknown method", Config{TTL: time.Hour, SigningMethod: "rs256", PrivateKey: []byte("k")}},
		{"ed25519 bad key", Config{TTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: []byte("short")}},
		{"excessive leeway", Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
