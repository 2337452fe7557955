// Package deviceclient is the device-side counterpart to the gateway's
// session core: one TCP connection, one TLS session, one pre-allocated
// outbound buffer, one pre-allocated inbound buffer, no dynamic allocation
// on the hot path. It is grounded on the original firmware's
// wasmbed-protocol-client, which holds exactly one TlsConnection over one
// static-lifetime buffer pair; Go has no no_std story, so "no allocation"
// here means "buffers allocated once at construction, reused on every
// call", not literally zero heap activity.
package deviceclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/wasmbed/wasmbed/internal/framing"
	"github.com/wasmbed/wasmbed/internal/protocol"
)

// defaultBufferSize mirrors the firmware's RX_BUFFER_SIZE/TX_BUFFER_SIZE
// constants: generous for a Heartbeat/HeartbeatAck payload, small enough to
// keep on a constrained device.
const defaultBufferSize = 4096

// ErrUnexpectedResponse is returned when a response frame's version,
// message ID, or payload does not match what SendHeartbeat just sent: any
// deviation from the exact echo a HeartbeatAck is expected to carry.
var ErrUnexpectedResponse = errors.New("deviceclient: unexpected response")

// ErrNotConnected is returned by SendHeartbeat when Connect has not
// succeeded yet or the connection has already been closed.
var ErrNotConnected = errors.New("deviceclient: not connected")

// Config configures a Client's connection to a single gateway.
type Config struct {
	// ServerAddr is the gateway's TCP address, e.g. "gateway:4433".
	ServerAddr string

	// Certificate is this device's own mTLS client credential.
	Certificate tls.Certificate

	// ServerCA is the gateway's certificate, trusted directly (the device
	// fleet is small and closed; there is no intermediate CA chain to
	// validate beyond the single gateway cert it was provisioned with).
	ServerCA []byte

	// BufferSize overrides the pre-allocated outbound/inbound buffer
	// size. Zero uses defaultBufferSize.
	BufferSize int
}

// Client is the no-allocation device-side peer: one connection, one
// outbound and one inbound buffer allocated once at construction and
// reused for every Heartbeat round-trip, and a monotonically increasing
// next_id counter for outbound envelopes.
type Client struct {
	cfg  Config
	conn *tls.Conn

	outBuf []byte
	inBuf  []byte

	nextID protocol.MessageID
}

// New allocates a Client's buffers but does not connect yet.
func New(cfg Config) *Client {
	size := cfg.BufferSize
	if size == 0 {
		size = defaultBufferSize
	}
	return &Client{
		cfg:    cfg,
		outBuf: make([]byte, 0, size),
		inBuf:  make([]byte, 0, size),
	}
}

// Connect dials ServerAddr and performs the mTLS handshake, verifying the
// gateway's certificate against ServerCA and presenting Certificate as the
// device's own identity. Connection failure is not retried here; the
// surrounding firmware task is expected to call Connect again.
func (c *Client) Connect() error {
	pool, err := poolFromDER(c.cfg.ServerCA)
	if err != nil {
		return fmt.Errorf("deviceclient: parse server CA: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{c.cfg.Certificate},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}

	rawConn, err := net.Dial("tcp", c.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("deviceclient: dial %s: %w", c.cfg.ServerAddr, err)
	}

	conn := tls.Client(rawConn, tlsConfig)
	if err := conn.Handshake(); err != nil {
		_ = rawConn.Close()
		return fmt.Errorf("deviceclient: tls handshake: %w", err)
	}

	c.conn = conn
	return nil
}

// Close tears down the connection. It is safe to call even if Connect was
// never called or already failed.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendHeartbeat encodes {V0, next_id, Heartbeat}, frames and writes it,
// then reads exactly one response frame and verifies it is the matching
// HeartbeatAck: same version, same message ID, HeartbeatAck payload. Any
// deviation is ErrUnexpectedResponse. next_id is advanced (with uint32
// wraparound) whether or not the round-trip succeeds, matching the
// device's single monotonically increasing counter.
func (c *Client) SendHeartbeat() error {
	if c.conn == nil {
		return ErrNotConnected
	}

	sentID := c.nextID
	c.nextID = c.nextID.Next()

	envelope := protocol.ClientEnvelope{
		Version:   protocol.V0,
		MessageID: sentID,
		Message:   protocol.Heartbeat{},
	}

	body, err := protocol.Encode(envelope)
	if err != nil {
		return fmt.Errorf("deviceclient: encode heartbeat: %w", err)
	}
	c.outBuf = append(c.outBuf[:0], body...)

	if err := framing.WriteFrame(c.conn, c.outBuf); err != nil {
		return fmt.Errorf("deviceclient: write heartbeat frame: %w", err)
	}

	respBody, err := framing.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("deviceclient: read heartbeat response: %w", err)
	}
	c.inBuf = append(c.inBuf[:0], respBody...)

	resp, err := protocol.DecodeServer(c.inBuf)
	if err != nil {
		return fmt.Errorf("deviceclient: decode heartbeat response: %w", err)
	}

	if resp.Version != protocol.V0 || resp.MessageID != sentID {
		return ErrUnexpectedResponse
	}
	if _, ok := resp.Message.(protocol.HeartbeatAck); !ok {
		return ErrUnexpectedResponse
	}
	return nil
}
