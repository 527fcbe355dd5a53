package authcore

import (
	"context"
	"sync/atomic"
)

// auditDispatcher decouples the authentication hot path from sink latency.
// Login, challenge, and token events flow through a buffered channel to a
// single worker goroutine; on Close the worker drains whatever is still
// buffered before returning. A nil dispatcher (audit disabled) accepts
// every call as a no-op.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	events chan AuditEvent
	quit   chan struct{}
	idle   chan struct{}

	drops   atomic.Uint64
	closing atomic.Bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}

	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		events:     make(chan AuditEvent, buffer),
		quit:       make(chan struct{}),
		idle:       make(chan struct{}),
	}
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer close(d.idle)

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain forwards everything still buffered at shutdown. New sends are
// already rejected by the closing flag, so the channel only shrinks here.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.drops.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	if !d.closing.CompareAndSwap(false, true) {
		return
	}
	close(d.quit)
	<-d.idle
}

// Dropped describes the dropped operation and its observable behavior.
//
// Dropped may return an error when input validation, dependency calls, or security checks fail.
// Dropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.drops.Load()
}
