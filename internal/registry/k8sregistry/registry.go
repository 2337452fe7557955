package k8sregistry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/rest"

	"github.com/wasmbed/wasmbed/internal/registry"
)

// Registry implements registry.DeviceRegistry against the Kubernetes API
// server, scoped to a single namespace the way the gateway's own Pod is.
type Registry struct {
	client    rest.Interface
	namespace string
}

// NewForConfig builds a Registry from cfg, the same rest.Config a gateway
// running in-cluster obtains from rest.InClusterConfig. It clones cfg
// rather than mutating the caller's copy.
func NewForConfig(cfg *rest.Config, namespace string) (*Registry, error) {
	restCfg := *cfg
	restCfg.GroupVersion = &SchemeGroupVersion
	restCfg.APIPath = "/apis"
	restCfg.NegotiatedSerializer = serializer.NewCodecFactory(buildScheme()).WithoutConversion()
	if restCfg.UserAgent == "" {
		restCfg.UserAgent = rest.DefaultKubernetesUserAgent()
	}

	client, err := rest.RESTClientFor(&restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8sregistry: build rest client: %w", err)
	}
	return &Registry{client: client, namespace: namespace}, nil
}

// FindByPublicKey implements registry.DeviceRegistry.
func (r *Registry) FindByPublicKey(ctx context.Context, publicKey []byte) (*registry.DeviceRecord, error) {
	encoded := base64.StdEncoding.EncodeToString(publicKey)

	var list DeviceList
	err := r.client.Get().
		Namespace(r.namespace).
		Resource("devices").
		Param("fieldSelector", "spec.publicKey="+encoded).
		Do(ctx).
		Into(&list)
	if err != nil {
		return nil, &registry.TransientError{Err: err}
	}
	if len(list.Items) == 0 {
		return nil, registry.ErrDeviceNotFound
	}

	return deviceToRecord(&list.Items[0])
}

// ApplyStatusPatch implements registry.DeviceRegistry by sending patch as a
// JSON merge patch against the device's status subresource, mirroring the
// original controller's Patch::Merge against patch_status.
func (r *Registry) ApplyStatusPatch(ctx context.Context, name string, patch registry.StatusPatch) error {
	doc := map[string]interface{}{"status": patch.MergePatchDoc()}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("k8sregistry: marshal status patch: %w", err)
	}

	err = r.client.Patch(types.MergePatchType).
		Namespace(r.namespace).
		Resource("devices").
		Name(name).
		SubResource("status").
		Body(body).
		Do(ctx).
		Error()
	if err != nil {
		if apierrors.IsNotFound(err) {
			return registry.ErrDeviceNotFound
		}
		return &registry.TransientError{Err: err}
	}
	return nil
}

func deviceToRecord(d *Device) (*registry.DeviceRecord, error) {
	pubKey, err := base64.StdEncoding.DecodeString(d.Spec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("k8sregistry: decode public key of %s: %w", d.Name, err)
	}

	rec := &registry.DeviceRecord{
		Name:      d.Name,
		PublicKey: pubKey,
		Phase:     registry.DevicePhase(d.Status.Phase),
	}
	if d.Status.Gateway != nil {
		rec.Gateway = &registry.GatewayReference{
			Namespace: d.Status.Gateway.Namespace,
			Name:      d.Status.Gateway.Name,
		}
	}
	if t, ok := parseTimestamp(d.Status.ConnectedSince); ok {
		rec.ConnectedSince = &t
	}
	if t, ok := parseTimestamp(d.Status.LastHeartbeat); ok {
		rec.LastHeartbeat = &t
	}
	return rec, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
