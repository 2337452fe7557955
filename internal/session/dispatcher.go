package session

import (
	"context"
	"errors"

	"github.com/wasmbed/wasmbed/internal/clienttable"
	"github.com/wasmbed/wasmbed/internal/protocol"
)

// AuthorizationResult is returned by an OnConnect callback.
type AuthorizationResult int

const (
	// Unauthorized refuses the session; it never enters Live, and
	// OnDisconnect never fires for it.
	Unauthorized AuthorizationResult = iota
	// Authorized admits the session into Live.
	Authorized
)

// OnConnect is invoked after the TLS handshake completes and the peer
// identity has been extracted, before the session enters Live. Side
// effects (such as marking a device Connected in the registry) are
// permitted and are synchronous with respect to this call.
type OnConnect func(ctx context.Context, identity protocol.PeerIdentity) AuthorizationResult

// OnDisconnect is invoked exactly once per session that successfully
// transitioned out of Live, whether due to a clean close, a transport
// error, a protocol error, or shutdown.
type OnDisconnect func(ctx context.Context, identity protocol.PeerIdentity)

// OnMessage is invoked once per inbound envelope, in the order the reader
// received them. The reader does not read the next frame until this call
// returns: that is the back-pressure mechanism described in the design.
type OnMessage func(ctx context.Context, msgCtx *MessageContext)

// ErrPeerGone is returned by MessageContext.Reply when the session that
// produced the inbound message has already terminated.
var ErrPeerGone = errors.New("session: peer gone")

// MessageContext carries a decoded inbound message together with a reply
// capability scoped to the session it arrived on.
type MessageContext struct {
	identity protocol.PeerIdentity
	envelope protocol.ClientEnvelope
	sender   *clienttable.Outbound
}

// Identity returns the sending device's PeerIdentity.
func (m *MessageContext) Identity() protocol.PeerIdentity {
	return m.identity
}

// Message returns the decoded inbound ClientMessage.
func (m *MessageContext) Message() protocol.ClientMessage {
	return m.envelope.Message
}

// Reply enqueues an outbound envelope whose version and message ID match
// the inbound envelope this context was built from, correlating the reply
// with the request that prompted it. Reply may be called any number of
// times, including zero.
func (m *MessageContext) Reply(message protocol.ServerMessage) error {
	err := m.sender.Send(protocol.ServerEnvelope{
		Version:   m.envelope.Version,
		MessageID: m.envelope.MessageID,
		Message:   message,
	})
	if err != nil {
		return ErrPeerGone
	}
	return nil
}
