package clienttable

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wasmbed/wasmbed/internal/protocol"
)

func envelope(id uint32) protocol.ServerEnvelope {
	return protocol.ServerEnvelope{
		Version:   protocol.V0,
		MessageID: protocol.MessageID(id),
		Message:   protocol.HeartbeatAck{},
	}
}

// Per-session FIFO (§8.8): envelopes sent in order must be received in the
// same order, with none dropped.
func TestOutboundPreservesOrder(t *testing.T) {
	o := NewOutbound()
	for i := uint32(0); i < 5; i++ {
		if err := o.Send(envelope(i)); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	for i := uint32(0); i < 5; i++ {
		got, ok := o.Recv()
		if !ok {
			t.Fatalf("Recv() ok = false at index %d", i)
		}
		if got.MessageID != protocol.MessageID(i) {
			t.Fatalf("Recv() = %+v, want message ID %d", got, i)
		}
	}
}

func TestOutboundRecvBlocksUntilSend(t *testing.T) {
	o := NewOutbound()
	done := make(chan protocol.ServerEnvelope, 1)

	go func() {
		env, ok := o.Recv()
		if !ok {
			return
		}
		done <- env
	}()

	select {
	case <-done:
		t.Fatalf("Recv returned before any Send")
	case <-time.After(20 * time.Millisecond):
	}

	if err := o.Send(envelope(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-done:
		if env.MessageID != 1 {
			t.Fatalf("Recv() = %+v, want message ID 1", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv never returned after Send")
	}
}

// Close must let any already-queued envelopes drain before Recv starts
// reporting closed, which is what lets a writer flush pending outbound
// traffic during graceful shutdown.
func TestOutboundCloseDrainsQueueBeforeReportingClosed(t *testing.T) {
	o := NewOutbound()
	if err := o.Send(envelope(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := o.Send(envelope(2)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	o.Close()

	env, ok := o.Recv()
	if !ok || env.MessageID != 1 {
		t.Fatalf("Recv() = (%+v, %v), want (id=1, true)", env, ok)
	}
	env, ok = o.Recv()
	if !ok || env.MessageID != 2 {
		t.Fatalf("Recv() = (%+v, %v), want (id=2, true)", env, ok)
	}
	_, ok = o.Recv()
	if ok {
		t.Fatalf("Recv() ok = true after queue drained and sender closed")
	}
}

func TestOutboundSendAfterCloseFails(t *testing.T) {
	o := NewOutbound()
	o.Close()
	err := o.Send(envelope(1))
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send after Close error = %v, want ErrSendFailed", err)
	}
}

func TestOutboundCloseUnblocksWaitingRecv(t *testing.T) {
	o := NewOutbound()
	var wg sync.WaitGroup
	wg.Add(1)

	resultCh := make(chan bool, 1)
	go func() {
		defer wg.Done()
		_, ok := o.Recv()
		resultCh <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	o.Close()

	select {
	case ok := <-resultCh:
		if ok {
			t.Fatalf("Recv() ok = true on empty, closed queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv never unblocked after Close")
	}
	wg.Wait()
}

func TestOutboundCloseIsIdempotent(t *testing.T) {
	o := NewOutbound()
	o.Close()
	o.Close() // must not panic or double-broadcast into a bad state
	_, ok := o.Recv()
	if ok {
		t.Fatalf("Recv() ok = true on empty, closed queue")
	}
}
