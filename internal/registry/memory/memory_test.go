package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wasmbed/wasmbed/internal/registry"
)

func TestFindByPublicKeyNotFound(t *testing.T) {
	r := New()
	_, err := r.FindByPublicKey(context.Background(), []byte{1, 2, 3})
	if !errors.Is(err, registry.ErrDeviceNotFound) {
		t.Fatalf("FindByPublicKey error = %v, want ErrDeviceNotFound", err)
	}
}

func TestFindByPublicKeyAfterSeed(t *testing.T) {
	r := New()
	r.Seed(registry.DeviceRecord{
		Name:      "device-1",
		PublicKey: []byte{1, 2, 3},
		Phase:     registry.PhasePending,
	})

	rec, err := r.FindByPublicKey(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("FindByPublicKey: %v", err)
	}
	if rec.Name != "device-1" || rec.Phase != registry.PhasePending {
		t.Fatalf("FindByPublicKey = %+v, want name device-1 phase Pending", rec)
	}
}

func TestApplyStatusPatchMarkConnected(t *testing.T) {
	r := New()
	r.Seed(registry.DeviceRecord{Name: "device-1", PublicKey: []byte{1}, Phase: registry.PhasePending})

	now := time.Now()
	gw := registry.GatewayReference{Namespace: "wasmbed", Name: "gateway-0"}
	patch := registry.NewStatusPatch().MarkConnected(gw, now)

	if err := r.ApplyStatusPatch(context.Background(), "device-1", patch); err != nil {
		t.Fatalf("ApplyStatusPatch: %v", err)
	}

	rec, ok := r.Get("device-1")
	if !ok {
		t.Fatalf("Get(device-1) not found after patch")
	}
	if rec.Phase != registry.PhaseConnected {
		t.Fatalf("Phase = %v, want Connected", rec.Phase)
	}
	if rec.Gateway == nil || *rec.Gateway != gw {
		t.Fatalf("Gateway = %+v, want %+v", rec.Gateway, gw)
	}
	if rec.ConnectedSince == nil || !rec.ConnectedSince.Equal(now) {
		t.Fatalf("ConnectedSince = %v, want %v", rec.ConnectedSince, now)
	}
	// LastHeartbeat was never set by this patch, so it must be untouched.
	if rec.LastHeartbeat != nil {
		t.Fatalf("LastHeartbeat = %v, want nil (untouched)", rec.LastHeartbeat)
	}
}

func TestApplyStatusPatchMarkDisconnectedClearsGateway(t *testing.T) {
	r := New()
	gw := registry.GatewayReference{Namespace: "wasmbed", Name: "gateway-0"}
	since := time.Now()
	r.Seed(registry.DeviceRecord{
		Name:           "device-1",
		PublicKey:      []byte{1},
		Phase:          registry.PhaseConnected,
		Gateway:        &gw,
		ConnectedSince: &since,
	})

	patch := registry.NewStatusPatch().MarkDisconnected()
	if err := r.ApplyStatusPatch(context.Background(), "device-1", patch); err != nil {
		t.Fatalf("ApplyStatusPatch: %v", err)
	}

	rec, _ := r.Get("device-1")
	if rec.Phase != registry.PhaseDisconnected {
		t.Fatalf("Phase = %v, want Disconnected", rec.Phase)
	}
	if rec.Gateway != nil {
		t.Fatalf("Gateway = %+v, want nil after MarkDisconnected", rec.Gateway)
	}
	if rec.ConnectedSince != nil {
		t.Fatalf("ConnectedSince = %v, want nil after MarkDisconnected", rec.ConnectedSince)
	}
}

// An unset field in a patch must never clobber an existing value: this is
// the entire point of the Option<Option<T>> design.
func TestApplyStatusPatchLeavesUnsetFieldsAlone(t *testing.T) {
	r := New()
	gw := registry.GatewayReference{Namespace: "wasmbed", Name: "gateway-0"}
	since := time.Now().Add(-time.Hour)
	r.Seed(registry.DeviceRecord{
		Name:           "device-1",
		PublicKey:      []byte{1},
		Phase:          registry.PhaseConnected,
		Gateway:        &gw,
		ConnectedSince: &since,
	})

	now := time.Now()
	patch := registry.NewStatusPatch().UpdateHeartbeat(now)
	if err := r.ApplyStatusPatch(context.Background(), "device-1", patch); err != nil {
		t.Fatalf("ApplyStatusPatch: %v", err)
	}

	rec, _ := r.Get("device-1")
	if rec.Phase != registry.PhaseConnected {
		t.Fatalf("Phase = %v, want untouched Connected", rec.Phase)
	}
	if rec.Gateway == nil || *rec.Gateway != gw {
		t.Fatalf("Gateway = %+v, want untouched %+v", rec.Gateway, gw)
	}
	if rec.LastHeartbeat == nil || !rec.LastHeartbeat.Equal(now) {
		t.Fatalf("LastHeartbeat = %v, want %v", rec.LastHeartbeat, now)
	}
}

func TestApplyStatusPatchUnknownDevice(t *testing.T) {
	r := New()
	err := r.ApplyStatusPatch(context.Background(), "missing", registry.NewStatusPatch())
	if !errors.Is(err, registry.ErrDeviceNotFound) {
		t.Fatalf("ApplyStatusPatch error = %v, want ErrDeviceNotFound", err)
	}
}

func TestMergePatchDocOnlyIncludesSetFields(t *testing.T) {
	patch := registry.NewStatusPatch().UpdateHeartbeat(time.Unix(0, 0))
	doc := patch.MergePatchDoc()
	if len(doc) != 1 {
		t.Fatalf("MergePatchDoc() = %v, want exactly one field", doc)
	}
	if _, ok := doc["lastHeartbeat"]; !ok {
		t.Fatalf("MergePatchDoc() = %v, want lastHeartbeat key", doc)
	}
}

func TestMergePatchDocMarkDisconnectedNullsGateway(t *testing.T) {
	patch := registry.NewStatusPatch().MarkDisconnected()
	doc := patch.MergePatchDoc()
	if gw, ok := doc["gateway"]; !ok || gw != nil {
		t.Fatalf("MergePatchDoc()[gateway] = (%v, present=%v), want explicit nil", gw, ok)
	}
	if doc["phase"] != string(registry.PhaseDisconnected) {
		t.Fatalf("MergePatchDoc()[phase] = %v, want Disconnected", doc["phase"])
	}
}
