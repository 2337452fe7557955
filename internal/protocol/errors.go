// Package protocol implements the wire envelope and payload union shared by
// the gateway and the device client: a deterministic, versioned CBOR
// encoding with explicit small-integer tags, as described in the wire
// framing section of the design.
package protocol

import "errors"

// Decode error kinds. Decode never panics and never silently accepts a
// malformed or forward-incompatible value; it returns one of these.
var (
	// ErrMalformedEncoding covers anything the CBOR layer itself rejects:
	// truncated input, indefinite-length sequences, wrong major types.
	ErrMalformedEncoding = errors.New("protocol: malformed encoding")

	// ErrUnknownTag is returned for a payload tag this version of the
	// codec has never heard of (as opposed to one it recognizes but has
	// reserved for a future extension; see ErrReservedTag).
	ErrUnknownTag = errors.New("protocol: unknown payload tag")

	// ErrReservedTag is returned for a tag number assigned to the pod
	// management extension (CreatePod/DeletePod) that this build does not
	// implement. Kept distinct from ErrUnknownTag so callers can tell
	// "not yet supported" apart from "not a valid message at all".
	ErrReservedTag = errors.New("protocol: reserved payload tag")

	// ErrUnknownVersion is returned when the envelope version is not V0.
	ErrUnknownVersion = errors.New("protocol: unknown version")

	// ErrUnexpectedLength is returned when a definite-length array has the
	// wrong number of elements for its recognized tag.
	ErrUnexpectedLength = errors.New("protocol: unexpected array length")
)
