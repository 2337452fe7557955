package protocol

import "github.com/fxamacker/cbor/v2"

// ClientMessage is the device-to-gateway payload union. Heartbeat is the
// only variant this build exchanges; tags 2 and 3 are reserved for the pod
// lifecycle extension (CreatePodResponse, DeletePodResponse) and decode as
// ErrReservedTag rather than being silently accepted or folded into
// ErrUnknownTag.
type ClientMessage interface {
	clientMessageTag() uint8
}

// Heartbeat carries no fields; it is the device's liveness signal.
type Heartbeat struct{}

func (Heartbeat) clientMessageTag() uint8 { return clientTagHeartbeat }

const (
	clientTagHeartbeat          uint8 = 0
	clientTagCreatePodResponse  uint8 = 2
	clientTagDeletePodResponse  uint8 = 3
)

func marshalClientMessage(msg ClientMessage) (cbor.RawMessage, error) {
	switch m := msg.(type) {
	case Heartbeat:
		return encMode.Marshal([]interface{}{m.clientMessageTag()})
	default:
		return nil, ErrUnknownTag
	}
}

func unmarshalClientMessage(data cbor.RawMessage) (ClientMessage, error) {
	raw, err := decodeArray(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrMalformedEncoding
	}
	tagNum, err := decodeElement[uint64](raw[0])
	if err != nil {
		return nil, err
	}
	if tagNum > 0xff {
		return nil, ErrUnknownTag
	}
	switch tag := uint8(tagNum); tag {
	case clientTagHeartbeat:
		if len(raw) != 1 {
			return nil, ErrUnexpectedLength
		}
		return Heartbeat{}, nil
	case clientTagCreatePodResponse, clientTagDeletePodResponse:
		return nil, ErrReservedTag
	default:
		return nil, ErrUnknownTag
	}
}

// ServerMessage is the gateway-to-device payload union. HeartbeatAck is the
// only variant this build exchanges; tags 2 and 3 are reserved for the pod
// lifecycle extension (CreatePodRequest, DeletePodRequest).
type ServerMessage interface {
	serverMessageTag() uint8
}

// HeartbeatAck acknowledges a Heartbeat, correlated by message ID.
type HeartbeatAck struct{}

func (HeartbeatAck) serverMessageTag() uint8 { return serverTagHeartbeatAck }

const (
	serverTagHeartbeatAck      uint8 = 1
	serverTagCreatePodRequest  uint8 = 2
	serverTagDeletePodRequest  uint8 = 3
)

func marshalServerMessage(msg ServerMessage) (cbor.RawMessage, error) {
	switch m := msg.(type) {
	case HeartbeatAck:
		return encMode.Marshal([]interface{}{m.serverMessageTag()})
	default:
		return nil, ErrUnknownTag
	}
}

func unmarshalServerMessage(data cbor.RawMessage) (ServerMessage, error) {
	raw, err := decodeArray(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrMalformedEncoding
	}
	tagNum, err := decodeElement[uint64](raw[0])
	if err != nil {
		return nil, err
	}
	if tagNum > 0xff {
		return nil, ErrUnknownTag
	}
	switch tag := uint8(tagNum); tag {
	case serverTagHeartbeatAck:
		if len(raw) != 1 {
			return nil, ErrUnexpectedLength
		}
		return HeartbeatAck{}, nil
	case serverTagCreatePodRequest, serverTagDeletePodRequest:
		return nil, ErrReservedTag
	default:
		return nil, ErrUnknownTag
	}
}
