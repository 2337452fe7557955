// Package k8sregistry is the production registry.DeviceRegistry adapter:
// devices are represented as wasmbed.github.io/v0 Device custom resources,
// the same group/version/kind the original controller used, read and
// patched through a hand-built REST client rather than a generated
// clientset (no code-generator is wired into this module).
package k8sregistry

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	groupName = "wasmbed.github.io"
	version   = "v0"
)

// SchemeGroupVersion is the Device custom resource's group/version.
var SchemeGroupVersion = schema.GroupVersion{Group: groupName, Version: version}

// GatewayReferenceWire is the wire shape of a gateway reference inside a
// Device's status, namespace and name rather than a typed object reference.
type GatewayReferenceWire struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// DeviceSpec carries the device's enrolled public key, base64-encoded so it
// can be used as a field-selector value the same way the original
// controller indexed spec.publicKey.
type DeviceSpec struct {
	PublicKey string `json:"publicKey"`
}

// DeviceStatusWire is the on-the-wire JSON shape of a Device's status
// subresource. Fields are strings/pointers rather than native time.Time so
// the zero value round-trips as "absent" through omitempty exactly the way
// the Rust CRD's Option<DateTime<Utc>> fields do.
type DeviceStatusWire struct {
	Phase          string                `json:"phase,omitempty"`
	Gateway        *GatewayReferenceWire `json:"gateway,omitempty"`
	ConnectedSince string                `json:"connectedSince,omitempty"`
	LastHeartbeat  string                `json:"lastHeartbeat,omitempty"`
}

// Device is the custom resource this adapter reads and patches.
type Device struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DeviceSpec       `json:"spec"`
	Status DeviceStatusWire `json:"status,omitempty"`
}

// DeviceList is the List kind client-go's REST client decodes list/watch
// responses into.
type DeviceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []Device `json:"items"`
}

// DeepCopyObject implements runtime.Object. There is no generated
// deepcopy for this type (no code-generator is wired into this module), so
// it is written by hand; the only reference field status carries is the
// gateway pointer.
func (d *Device) DeepCopyObject() runtime.Object {
	if d == nil {
		return nil
	}
	out := new(Device)
	*out = *d
	out.ObjectMeta = *d.ObjectMeta.DeepCopy()
	if d.Status.Gateway != nil {
		gw := *d.Status.Gateway
		out.Status.Gateway = &gw
	}
	return out
}

// DeepCopyObject implements runtime.Object for DeviceList.
func (l *DeviceList) DeepCopyObject() runtime.Object {
	if l == nil {
		return nil
	}
	out := new(DeviceList)
	*out = *l
	out.ListMeta = l.ListMeta
	if l.Items != nil {
		out.Items = make([]Device, len(l.Items))
		for i := range l.Items {
			out.Items[i] = *l.Items[i].DeepCopyObject().(*Device)
		}
	}
	return out
}

// addToScheme registers Device and DeviceList with a runtime.Scheme so the
// REST client's negotiated serializer can decode them.
func addToScheme(s *runtime.Scheme) error {
	s.AddKnownTypes(SchemeGroupVersion, &Device{}, &DeviceList{})
	metav1.AddToGroupVersion(s, SchemeGroupVersion)
	return nil
}

func buildScheme() *runtime.Scheme {
	s := runtime.NewScheme()
	_ = addToScheme(s)
	return s
}
