package protocol

import "github.com/fxamacker/cbor/v2"

// encMode produces the deterministic, canonical encoding the wire format
// requires: definite-length arrays, preferred (shortest) integer widths, no
// float/bignum ambiguity. It is the one place encoding options are chosen
// so every Marshal call in this package agrees byte-for-byte.
var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// decMode rejects indefinite-length sequences outright, as the wire format
// requires: a CBOR encoder that emits indefinite-length arrays is either
// buggy or hostile, and accepting one would break the array-length checks
// every decode routine below relies on.
var decMode = func() cbor.DecMode {
	opts := cbor.DecOptions{
		IndefLength: cbor.IndefLengthForbidden,
	}
	m, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// decodeArray decodes data as a CBOR array and returns its elements as raw,
// individually-decodable messages. It is the common first step for every
// definite-length-array type in this package (Envelope, payload variants).
func decodeArray(data []byte) ([]cbor.RawMessage, error) {
	var raw []cbor.RawMessage
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformedEncoding
	}
	return raw, nil
}

func decodeElement[T any](raw cbor.RawMessage) (T, error) {
	var v T
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return v, ErrMalformedEncoding
	}
	return v, nil
}
