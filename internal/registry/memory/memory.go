// Package memory is the in-memory DeviceRegistry adapter used by tests and
// by local development without a Kubernetes control plane, in the same
// spirit as the static-mapping resolver it is grounded on.
package memory

import (
	"context"
	"sync"

	"github.com/wasmbed/wasmbed/internal/registry"
)

// Registry is a DeviceRegistry backed by a plain map, guarded by a
// sync.RWMutex the same way the client table and the static backend
// resolver are: reads never block each other, writes take the full lock.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*registry.DeviceRecord
	byKey  map[string]string // base64-free raw-key string -> name
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*registry.DeviceRecord),
		byKey:  make(map[string]string),
	}
}

// Seed registers rec for lookup, as if it had already been enrolled. Tests
// use this to populate the registry before exercising gateway behavior;
// production code never calls it, since devices arrive in the registry
// through the enrollment path this adapter does not model.
func (r *Registry) Seed(rec registry.DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seeded := rec
	r.byName[rec.Name] = &seeded
	r.byKey[string(rec.PublicKey)] = rec.Name
}

// FindByPublicKey implements registry.DeviceRegistry.
func (r *Registry) FindByPublicKey(ctx context.Context, publicKey []byte) (*registry.DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byKey[string(publicKey)]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}
	rec, ok := r.byName[name]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}
	out := *rec
	return &out, nil
}

// ApplyStatusPatch implements registry.DeviceRegistry.
func (r *Registry) ApplyStatusPatch(ctx context.Context, name string, patch registry.StatusPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok {
		return registry.ErrDeviceNotFound
	}
	patch.ApplyTo(rec)
	return nil
}

// Get returns the current record for name, for test assertions.
func (r *Registry) Get(name string) (registry.DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	if !ok {
		return registry.DeviceRecord{}, false
	}
	return *rec, true
}
