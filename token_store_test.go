package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mojdigital/authcore/internal"
)

func newTestTokenStore(t *testing.T) *tokenStore {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	return newTokenStore(rdb, TokenConfig{ExpiredRetention: 24 * time.Hour})
}

func TestTokenStoreCreateAndGet(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	record, err := store.Get(ctx, TokenReset, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Username != "ALICE" {
		t.Fatalf("expected username ALICE, got %s", record.Username)
	}
	if record.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", record.Attempts)
	}
}

func TestTokenStoreCreateReplacesPreviousToken(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, time.Hour)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, time.Hour)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if err := store.Check(ctx, TokenReset, first); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected first token to be gone, got %v", err)
	}
	if err := store.Check(ctx, TokenReset, second); err != nil {
		t.Fatalf("expected second token to be valid, got %v", err)
	}
}

func TestTokenStoreCreateKeepsTokensOfOtherTypes(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	reset, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, time.Hour)
	if err != nil {
		t.Fatalf("Create RESET failed: %v", err)
	}
	if _, err := store.Create(ctx, TokenChange, &tokenRecord{Username: "ALICE"}, time.Hour); err != nil {
		t.Fatalf("Create CHANGE failed: %v", err)
	}

	if err := store.Check(ctx, TokenReset, reset); err != nil {
		t.Fatalf("expected RESET token to survive a CHANGE issue, got %v", err)
	}
}

func TestTokenStoreExpiredDistinctFromInvalid(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, -2*time.Second)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Check(ctx, TokenReset, token); !errors.Is(err, errTokenIsExpired) {
		t.Fatalf("expected errTokenIsExpired, got %v", err)
	}
	if err := store.Check(ctx, TokenReset, "no-such-token"); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected errTokenNotFound, got %v", err)
	}

	record, err := store.Get(ctx, TokenReset, token)
	if !errors.Is(err, errTokenIsExpired) {
		t.Fatalf("expected errTokenIsExpired from Get, got %v", err)
	}
	if record == nil || record.Username != "ALICE" {
		t.Fatal("expected expired row to still carry its record")
	}
}

func TestTokenStoreConsumeRemovesToken(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	record, err := store.Consume(ctx, TokenReset, token)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.Username != "ALICE" {
		t.Fatalf("expected consumed record for ALICE, got %s", record.Username)
	}

	if _, err := store.Consume(ctx, TokenReset, token); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected errTokenNotFound on second consume, got %v", err)
	}
}

func TestTokenStoreConsumeRemovesExpiredRow(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenReset, &tokenRecord{Username: "ALICE"}, -2*time.Second)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Consume(ctx, TokenReset, token); !errors.Is(err, errTokenIsExpired) {
		t.Fatalf("expected errTokenIsExpired, got %v", err)
	}
	if err := store.Check(ctx, TokenReset, token); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected expired row to be gone after consume, got %v", err)
	}
}

func TestTokenStoreRecordFailureKeepsTokenAtThreshold(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenMfa, &tokenRecord{Username: "ALICE", CodeHash: internal.HashCode("123456")}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		exceeded, err := store.RecordFailure(ctx, TokenMfa, token, 3)
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", attempt, err)
		}
		if exceeded != (attempt == 3) {
			t.Fatalf("attempt %d: exceeded = %v", attempt, exceeded)
		}
	}

	// The row must survive the lockout so later submissions can still be
	// answered with the locked state instead of an invalid-token error.
	record, err := store.Get(ctx, TokenMfa, token)
	if err != nil {
		t.Fatalf("Get after lockout failed: %v", err)
	}
	if record.Attempts != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", record.Attempts)
	}
}

func TestTokenStoreReplaceCodeKeepsAttemptCount(t *testing.T) {
	store := newTestTokenStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, TokenMfa, &tokenRecord{Username: "ALICE", CodeHash: internal.HashCode("111111")}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.RecordFailure(ctx, TokenMfa, token, 3); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	fresh := internal.HashCode("222222")
	if err := store.ReplaceCode(ctx, TokenMfa, token, fresh); err != nil {
		t.Fatalf("ReplaceCode failed: %v", err)
	}

	record, err := store.Get(ctx, TokenMfa, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.CodeHash != fresh {
		t.Fatal("expected code hash to be replaced")
	}
	if record.Attempts != 1 {
		t.Fatalf("expected attempt count to carry over, got %d", record.Attempts)
	}
}

func TestTokenRecordEncodeDecodeRoundTrip(t *testing.T) {
	original := &tokenRecord{
		Username:    "ALICE",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Attempts:    2,
		CodeHash:    internal.HashCode("987654"),
		Channel:     string(ChannelText),
		Destination: "07700900321",
	}

	encoded, err := encodeTokenRecord(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeTokenRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if *decoded != *original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}
