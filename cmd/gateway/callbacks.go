package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/registry"
	"github.com/wasmbed/wasmbed/internal/session"
)

// onConnect implements spec.md's open question the way it resolves it:
// authorization is synchronous with the registry lookup (an unknown device
// must be refused before it ever reaches Live), while the subsequent status
// mutation marking it Connected is fire-and-forget, logged on failure
// rather than blocking admission.
func onConnect(ctx context.Context, reg registry.DeviceRegistry, gateway registry.GatewayReference, identity protocol.PeerIdentity) session.AuthorizationResult {
	rec, err := reg.FindByPublicKey(ctx, []byte(identity))
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			log.Printf("gateway: peer %s not enrolled, refusing", identity)
		} else {
			log.Printf("gateway: registry lookup for %s failed: %v", identity, err)
		}
		return session.Unauthorized
	}

	patch := registry.NewStatusPatch().MarkConnected(gateway, time.Now())
	if err := reg.ApplyStatusPatch(ctx, rec.Name, patch); err != nil {
		log.Printf("gateway: mark %s connected: %v", rec.Name, err)
	}
	return session.Authorized
}

// onDisconnect marks the device Disconnected. Unlike onConnect, the
// outcome of this mutation has no observable effect on the session that
// just ended, so a failure is logged and swallowed rather than retried
// here; the registry's own reconciliation loop is expected to notice a
// stale Connected phase if this write is lost.
func onDisconnect(ctx context.Context, reg registry.DeviceRegistry, identity protocol.PeerIdentity) {
	rec, err := reg.FindByPublicKey(ctx, []byte(identity))
	if err != nil {
		log.Printf("gateway: lookup %s on disconnect: %v", identity, err)
		return
	}
	patch := registry.NewStatusPatch().MarkDisconnected()
	if err := reg.ApplyStatusPatch(ctx, rec.Name, patch); err != nil {
		log.Printf("gateway: mark %s disconnected: %v", rec.Name, err)
	}
}

// onMessage handles every inbound envelope. The only ClientMessage variant
// this build exchanges is Heartbeat: reply with a correlated HeartbeatAck
// and stamp the device's last-heartbeat timestamp. Reserved-tag payloads
// never reach here; the codec rejects them before the dispatcher is
// invoked, terminating the session as a protocol error.
func onMessage(ctx context.Context, reg registry.DeviceRegistry, msgCtx *session.MessageContext) {
	switch msgCtx.Message().(type) {
	case protocol.Heartbeat:
		if err := msgCtx.Reply(protocol.HeartbeatAck{}); err != nil {
			log.Printf("gateway: reply to %s: %v", msgCtx.Identity(), err)
		}

		rec, err := reg.FindByPublicKey(ctx, []byte(msgCtx.Identity()))
		if err != nil {
			log.Printf("gateway: lookup %s on heartbeat: %v", msgCtx.Identity(), err)
			return
		}
		patch := registry.NewStatusPatch().UpdateHeartbeat(time.Now())
		if err := reg.ApplyStatusPatch(ctx, rec.Name, patch); err != nil {
			log.Printf("gateway: update heartbeat for %s: %v", rec.Name, err)
		}
	default:
		log.Printf("gateway: unhandled message type %T from %s", msgCtx.Message(), msgCtx.Identity())
	}
}
