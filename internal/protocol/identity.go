package protocol

import "encoding/base64"

// PeerIdentity is the DER-encoded X.509 SubjectPublicKeyInfo extracted from
// the certificate a peer presented during the mTLS handshake. It is the
// sole authentication claim in the system: two peers are the same device
// if and only if their SPKI bytes are identical.
type PeerIdentity []byte

// Equal reports whether id and other carry the same SPKI bytes.
func (id PeerIdentity) Equal(other PeerIdentity) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// String returns the URL-safe, unpadded base64 textual form used for
// logging and registry lookups.
func (id PeerIdentity) String() string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// Key returns a comparable, hashable representation of id suitable for use
// as a map key (PeerIdentity itself is a slice and cannot be used as one).
func (id PeerIdentity) Key() string {
	return string(id)
}

// ParsePeerIdentity decodes the URL-safe, unpadded base64 textual form back
// into raw SPKI bytes.
func ParsePeerIdentity(s string) (PeerIdentity, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return PeerIdentity(b), nil
}
