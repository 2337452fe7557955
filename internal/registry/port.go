// Package registry defines the DeviceRegistry port: the boundary between the
// gateway's session core and whatever actually stores fleet state (an
// in-memory map for tests, a Kubernetes custom resource in production). The
// core depends only on this interface.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DevicePhase mirrors the device lifecycle phase carried in its status.
type DevicePhase string

const (
	// PhasePending is the initial phase: known to the registry but never
	// seen a live connection.
	PhasePending DevicePhase = "Pending"
	// PhaseConnected is set while a session for this device is Live.
	PhaseConnected DevicePhase = "Connected"
	// PhaseDisconnected is set once a previously Live session ends.
	PhaseDisconnected DevicePhase = "Disconnected"
)

// GatewayReference identifies the gateway instance (a Pod, in production) a
// device is currently connected to.
type GatewayReference struct {
	Namespace string
	Name      string
}

// DeviceRecord is a point-in-time snapshot of a device's registry entry.
type DeviceRecord struct {
	// Name is the registry's identifier for the device (a Kubernetes
	// resource name in the k8sregistry adapter).
	Name string
	// PublicKey is the DER-encoded SubjectPublicKeyInfo presented by the
	// device during mTLS; it is the same byte sequence as
	// protocol.PeerIdentity.
	PublicKey []byte

	Phase          DevicePhase
	Gateway        *GatewayReference
	ConnectedSince *time.Time
	LastHeartbeat  *time.Time
}

// ErrDeviceNotFound is returned by FindByPublicKey when no record matches.
var ErrDeviceNotFound = errors.New("registry: device not found")

// ErrTransient is the sentinel errors.Is target for TransientError: a
// failure the caller may retry (a dropped connection to the backing store),
// as opposed to one that won't resolve on retry (a malformed patch).
var ErrTransient = errors.New("registry: transient failure")

// TransientError wraps an underlying error from the backing store that is
// plausibly retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("registry: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is reports ErrTransient as a match so callers can use errors.Is(err,
// registry.ErrTransient) without caring about the wrapped cause.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// DeviceRegistry is the fleet state boundary the gateway's session
// callbacks (OnConnect/OnDisconnect/heartbeat handling) are written against.
type DeviceRegistry interface {
	// FindByPublicKey looks up the device whose enrolled public key matches
	// publicKey. It returns ErrDeviceNotFound if none does.
	FindByPublicKey(ctx context.Context, publicKey []byte) (*DeviceRecord, error)

	// ApplyStatusPatch applies patch to the named device's status. Fields
	// the patch did not set are left untouched.
	ApplyStatusPatch(ctx context.Context, name string, patch StatusPatch) error
}

// StatusPatch is a builder for a partial status update. Phase is either
// unset ("leave unchanged") or set to a value. Each nullable field (gateway,
// connected-since, last-heartbeat) is represented as Option<Option<T>>: the
// zero value (field unset) means "leave unchanged", while a set field
// carries either a value or an explicit "clear this" (nil). The builder methods are the only way to set
// a field, which keeps "unchanged" and "explicitly cleared" from being
// confused with each other the way a single nullable struct field would.
type StatusPatch struct {
	phase *DevicePhase

	gatewaySet bool
	gateway    *GatewayReference

	connectedSet   bool
	connectedSince *time.Time

	heartbeatSet  bool
	lastHeartbeat *time.Time
}

// NewStatusPatch returns an empty patch: applying it changes nothing.
func NewStatusPatch() StatusPatch {
	return StatusPatch{}
}

// Phase sets the target phase.
func (p StatusPatch) Phase(phase DevicePhase) StatusPatch {
	p.phase = &phase
	return p
}

// Gateway sets the gateway reference, or clears it if gateway is nil.
func (p StatusPatch) Gateway(gateway *GatewayReference) StatusPatch {
	p.gatewaySet = true
	p.gateway = gateway
	return p
}

// ConnectedSince sets the connection-established timestamp, or clears it if
// since is nil.
func (p StatusPatch) ConnectedSince(since *time.Time) StatusPatch {
	p.connectedSet = true
	p.connectedSince = since
	return p
}

// LastHeartbeat sets the last-heartbeat timestamp, or clears it if at is
// nil.
func (p StatusPatch) LastHeartbeat(at *time.Time) StatusPatch {
	p.heartbeatSet = true
	p.lastHeartbeat = at
	return p
}

// MarkConnected composes the patch OnConnect applies on authorization:
// phase Connected, gateway set, connected-since stamped now.
func (p StatusPatch) MarkConnected(gateway GatewayReference, now time.Time) StatusPatch {
	return p.Phase(PhaseConnected).Gateway(&gateway).ConnectedSince(&now)
}

// MarkDisconnected composes the patch OnDisconnect applies: phase
// Disconnected, gateway and connected-since both explicitly cleared.
func (p StatusPatch) MarkDisconnected() StatusPatch {
	return p.Phase(PhaseDisconnected).Gateway(nil).ConnectedSince(nil)
}

// UpdateHeartbeat composes the patch a received Heartbeat applies.
func (p StatusPatch) UpdateHeartbeat(now time.Time) StatusPatch {
	return p.LastHeartbeat(&now)
}

// ApplyTo mutates rec in place according to the fields this patch set,
// leaving every unset field untouched. Used by in-memory adapters that
// store DeviceRecord values directly rather than serializing a merge patch.
func (p StatusPatch) ApplyTo(rec *DeviceRecord) {
	if p.phase != nil {
		rec.Phase = *p.phase
	}
	if p.gatewaySet {
		rec.Gateway = p.gateway
	}
	if p.connectedSet {
		rec.ConnectedSince = p.connectedSince
	}
	if p.heartbeatSet {
		rec.LastHeartbeat = p.lastHeartbeat
	}
}

// MergePatchDoc renders this patch as a JSON merge-patch document keyed the
// way the Device custom resource's status subresource expects: only fields
// this patch set appear at all, and an explicitly cleared field appears with
// a JSON null rather than being omitted.
func (p StatusPatch) MergePatchDoc() map[string]interface{} {
	doc := map[string]interface{}{}

	if p.phase != nil {
		doc["phase"] = string(*p.phase)
	}
	if p.gatewaySet {
		if p.gateway != nil {
			doc["gateway"] = map[string]interface{}{
				"namespace": p.gateway.Namespace,
				"name":      p.gateway.Name,
			}
		} else {
			doc["gateway"] = nil
		}
	}
	if p.connectedSet {
		doc["connectedSince"] = formatTimePtr(p.connectedSince)
	}
	if p.heartbeatSet {
		doc["lastHeartbeat"] = formatTimePtr(p.lastHeartbeat)
	}

	return doc
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
