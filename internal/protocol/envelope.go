package protocol

import "github.com/fxamacker/cbor/v2"

// ClientEnvelope is the outer container for a device-to-gateway message:
// version, correlation ID, and payload, in that order, encoded as a
// definite-length array of exactly three elements.
type ClientEnvelope struct {
	Version   Version
	MessageID MessageID
	Message   ClientMessage
}

// MarshalCBOR implements cbor.Marshaler, producing `[version, message_id, payload]`.
func (e ClientEnvelope) MarshalCBOR() ([]byte, error) {
	payload, err := marshalClientMessage(e.Message)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal([]interface{}{
		uint8(e.Version),
		uint32(e.MessageID),
		payload,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *ClientEnvelope) UnmarshalCBOR(data []byte) error {
	raw, err := decodeArray(data)
	if err != nil {
		return err
	}
	if len(raw) != 3 {
		return ErrUnexpectedLength
	}

	versionNum, err := decodeElement[uint64](raw[0])
	if err != nil {
		return err
	}
	if versionNum > 0xff {
		return ErrUnknownVersion
	}
	version, ok := versionFromU8(uint8(versionNum))
	if !ok {
		return ErrUnknownVersion
	}

	id, err := decodeElement[uint32](raw[1])
	if err != nil {
		return err
	}

	msg, err := unmarshalClientMessage(raw[2])
	if err != nil {
		return err
	}

	e.Version = version
	e.MessageID = MessageID(id)
	e.Message = msg
	return nil
}

// ServerEnvelope is the outer container for a gateway-to-device message.
// Shape and encoding rules mirror ClientEnvelope exactly; only the payload
// union differs.
type ServerEnvelope struct {
	Version   Version
	MessageID MessageID
	Message   ServerMessage
}

// MarshalCBOR implements cbor.Marshaler.
func (e ServerEnvelope) MarshalCBOR() ([]byte, error) {
	payload, err := marshalServerMessage(e.Message)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal([]interface{}{
		uint8(e.Version),
		uint32(e.MessageID),
		payload,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (e *ServerEnvelope) UnmarshalCBOR(data []byte) error {
	raw, err := decodeArray(data)
	if err != nil {
		return err
	}
	if len(raw) != 3 {
		return ErrUnexpectedLength
	}

	versionNum, err := decodeElement[uint64](raw[0])
	if err != nil {
		return err
	}
	if versionNum > 0xff {
		return ErrUnknownVersion
	}
	version, ok := versionFromU8(uint8(versionNum))
	if !ok {
		return ErrUnknownVersion
	}

	id, err := decodeElement[uint32](raw[1])
	if err != nil {
		return err
	}

	msg, err := unmarshalServerMessage(raw[2])
	if err != nil {
		return err
	}

	e.Version = version
	e.MessageID = MessageID(id)
	e.Message = msg
	return nil
}

// Encode marshals a ClientEnvelope using this package's canonical CBOR mode.
func Encode(e ClientEnvelope) ([]byte, error) {
	return e.MarshalCBOR()
}

// Decode unmarshals a ClientEnvelope.
func Decode(data []byte) (ClientEnvelope, error) {
	var e ClientEnvelope
	err := e.UnmarshalCBOR(data)
	return e, err
}

// EncodeServer marshals a ServerEnvelope.
func EncodeServer(e ServerEnvelope) ([]byte, error) {
	return e.MarshalCBOR()
}

// DecodeServer unmarshals a ServerEnvelope.
func DecodeServer(data []byte) (ServerEnvelope, error) {
	var e ServerEnvelope
	err := e.UnmarshalCBOR(data)
	return e, err
}

var (
	_ cbor.Marshaler   = ClientEnvelope{}
	_ cbor.Unmarshaler = (*ClientEnvelope)(nil)
	_ cbor.Marshaler   = ServerEnvelope{}
	_ cbor.Unmarshaler = (*ServerEnvelope)(nil)
)
