package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	block  chan struct{}
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestAuditDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess})
	}
	d.Close()

	if got := len(sink.all()); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", d.Dropped())
	}
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker is parked on the first event; the buffer holds one more.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	}
	close(sink.block)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}
	if got := uint64(len(sink.all())) + d.Dropped(); got != 10 {
		t.Fatalf("expected delivered+dropped = 10, got %d", got)
	}
}

func TestAuditDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &recordingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}

	// The engine tolerates the nil dispatcher.
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected 0 drops from nil dispatcher")
	}
}

func TestAuditDispatcherEmitAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess})

	if got := len(sink.all()); got != 0 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventMfaSuccess, Username: "ALICE"})

	select {
	case event := <-sink.Events():
		if event.Username != "ALICE" {
			t.Fatalf("expected ALICE, got %s", event.Username)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLoginFailure,
		Username:  "ALICE",
		Success:   false,
		Error:     "invalid",
	})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess, Username: "BOB", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if first.EventType != auditEventLoginFailure || first.Username != "ALICE" {
		t.Fatalf("unexpected event: %+v", first)
	}
}

func TestEngineEmitsLoginAuditEvents(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	sink := &recordingSink{}
	local := newMemoryDirectory()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(SourceLocal, local).
		WithOverrideStore(newMemoryOverrideStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	local.add(&PersonRecord{
		Username:              "ALICE",
		Enabled:               true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		PasswordHash:          hashPassword(t, "correct-password-123"),
	})

	ctx := WithClientIP(context.Background(), "10.0.0.1")
	if _, err := engine.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Authenticate(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	engine.Close()

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != auditEventLoginFailure || events[0].Success {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].IP != "10.0.0.1" {
		t.Fatalf("expected client IP on the event, got %q", events[0].IP)
	}
	if events[1].EventType != auditEventLoginSuccess || !events[1].Success {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}
