package clienttable

import (
	"errors"
	"sync"

	"github.com/wasmbed/wasmbed/internal/protocol"
)

// ErrSendFailed is returned by Outbound.Send once the sender has been
// closed: the session that owned it is tearing down or the process is
// shutting down, and there is no writer left to drain the queue.
var ErrSendFailed = errors.New("clienttable: outbound sender closed")

// Outbound is a one-way, unbounded, lossless, in-order queue of server
// envelopes from any producer to a session's writer half. It is the
// OutboundSender of the design: unbounded because the current protocol
// (heartbeats only) never produces sustained backpressure; a bounded
// variant is the natural next step once larger payload classes are added
// (see DESIGN.md).
type Outbound struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []protocol.ServerEnvelope
	closed bool
}

// NewOutbound returns a ready-to-use Outbound sender.
func NewOutbound() *Outbound {
	o := &Outbound{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Send enqueues env for delivery. It never blocks: the backing queue grows
// as needed. It fails with ErrSendFailed once Close has been called.
func (o *Outbound) Send(env protocol.ServerEnvelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrSendFailed
	}
	o.queue = append(o.queue, env)
	o.cond.Signal()
	return nil
}

// Close signals writer shutdown: no further Send calls succeed, and any
// goroutine blocked in Recv with an empty queue is released. Already
// queued envelopes remain available to Recv until drained, which is what
// lets graceful shutdown flush queued outbound messages before the writer
// exits.
func (o *Outbound) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		o.cond.Broadcast()
	}
}

// Recv blocks until an envelope is available or the queue is both closed
// and empty, in which case it returns (zero, false).
func (o *Outbound) Recv() (protocol.ServerEnvelope, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.queue) == 0 {
		return protocol.ServerEnvelope{}, false
	}
	env := o.queue[0]
	o.queue = o.queue[1:]
	return env, true
}
