// Package session owns the per-connection lifecycle (the Session of the
// design): TLS handshake to Live to teardown, the reader/writer goroutine
// pair, and the Dispatcher that hands inbound envelopes to application
// callbacks with a reply capability.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"sync"

	"github.com/wasmbed/wasmbed/internal/clienttable"
	"github.com/wasmbed/wasmbed/internal/framing"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/tlsserver"
)

// ErrClientNotFound is returned by Send when no session is currently
// registered for the given identity.
var ErrClientNotFound = errors.New("session: client not found")

// ErrSendFailed is returned by Send when the identity is registered but its
// outbound sender has already been closed (the session is tearing down).
var ErrSendFailed = errors.New("session: send failed")

// Config configures a Server. All three callbacks are supplied at
// construction, referenced by shared immutable handles, and never swapped
// at runtime.
type Config struct {
	BindAddr string
	TLS      tlsserver.Config

	OnConnect    OnConnect
	OnDisconnect OnDisconnect
	OnMessage    OnMessage
}

// Server is the mTLS-authenticated TCP server that accepts device
// connections, tracks the live population in a Client Table, and
// multiplexes outbound messages per peer.
type Server struct {
	cfg   Config
	table *clienttable.Table

	idMu   sync.Mutex
	nextID protocol.MessageID

	sessMu   sync.Mutex
	sessions map[string]*liveSession

	wg sync.WaitGroup
}

// liveSession is the bookkeeping a graceful shutdown needs to enforce the
// close-outbound, drain-writer, then-cancel-reader ordering for every
// session still Live when shutdown begins.
type liveSession struct {
	conn       *tls.Conn
	outbound   *clienttable.Outbound
	writerDone chan struct{}
}

// New constructs a Server. It does not start listening until Run is called.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		table:    clienttable.New(),
		sessions: make(map[string]*liveSession),
	}
}

// Run listens on cfg.BindAddr and accepts connections until ctx is
// cancelled. Cancellation is observed at the accept loop's next suspension
// point (closing the listener unblocks a pending Accept) and propagates to
// every live session's reader at its next suspension point. Run returns
// once the listener is closed and all sessions it spawned have finished
// tearing down.
func (s *Server) Run(ctx context.Context) error {
	tlsConfig, err := s.cfg.TLS.Build()
	if err != nil {
		return err
	}

	listener, err := tls.Listen("tcp", s.cfg.BindAddr, tlsConfig)
	if err != nil {
		return err
	}

	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			_ = listener.Close()
			s.shutdownSessions()
		case <-stopWatcher:
		}
	}()

	log.Printf("session: listening on %s", s.cfg.BindAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("session: accept error: %v", err)
			continue
		}

		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, tlsConn)
		}()
	}

	s.wg.Wait()
	return nil
}

// Send allocates a fresh, monotonically increasing message ID from the
// process-wide counter and enqueues an unsolicited ServerMessage to
// identity's session, resolved through the Client Table.
func (s *Server) Send(identity protocol.PeerIdentity, message protocol.ServerMessage) (protocol.MessageID, error) {
	sender, ok := s.table.Get(identity)
	if !ok {
		return 0, ErrClientNotFound
	}

	id := s.nextMessageID()
	err := sender.Send(protocol.ServerEnvelope{
		Version:   protocol.V0,
		MessageID: id,
		Message:   message,
	})
	if err != nil {
		return 0, ErrSendFailed
	}
	return id, nil
}

func (s *Server) nextMessageID() protocol.MessageID {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := s.nextID
	s.nextID = s.nextID.Next()
	return id
}

// handleConn drives a single connection through Handshaking, Authorizing,
// Live, Closing and Closed.
func (s *Server) handleConn(ctx context.Context, conn *tls.Conn) {
	defer conn.Close()

	// Handshaking -> Closed on failure; no callback fires, the peer is
	// unknown.
	if err := conn.HandshakeContext(ctx); err != nil {
		log.Printf("session: tls handshake failed: %v", err)
		return
	}

	identity, err := tlsserver.ExtractIdentity(conn.ConnectionState())
	if err != nil {
		log.Printf("session: %v", err)
		return
	}

	// Authorizing -> Closed on Unauthorized; no callback fires, the peer
	// never registered.
	if s.cfg.OnConnect(ctx, identity) == Unauthorized {
		log.Printf("session: peer %s unauthorized", identity)
		return
	}

	// Live.
	outbound := clienttable.NewOutbound()
	s.table.Register(identity, outbound)

	sess := &liveSession{conn: conn, outbound: outbound, writerDone: make(chan struct{})}
	s.registerSession(identity, sess)

	go func() {
		defer close(sess.writerDone)
		s.runWriter(conn, outbound)
	}()

	s.runReader(ctx, conn, identity, outbound)

	// Closing -> Closed: unregister then disconnect, exactly once, in
	// that order. outbound.Close and the writer wait are idempotent with
	// respect to a concurrent shutdownSessions call, which may already
	// have driven both to completion.
	outbound.Close()
	<-sess.writerDone
	s.unregisterSession(identity)
	s.table.Unregister(identity)
	s.cfg.OnDisconnect(ctx, identity)
}

// registerSession records sess so a concurrent graceful shutdown can find
// and close it.
func (s *Server) registerSession(identity protocol.PeerIdentity, sess *liveSession) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[identity.Key()] = sess
}

// unregisterSession removes the bookkeeping entry for identity. A no-op if
// shutdownSessions has already removed it.
func (s *Server) unregisterSession(identity protocol.PeerIdentity) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, identity.Key())
}

// shutdownSessions implements the graceful-shutdown ordering: close every
// live session's outbound sender first (so each writer drains whatever was
// already queued and stops accepting new sends), wait for every writer to
// finish, and only then close the underlying connections. Closing the
// connection is what unblocks a reader parked in a blocking Read, since
// net.Conn has no context-aware Read to cancel directly.
func (s *Server) shutdownSessions() {
	s.sessMu.Lock()
	sessions := make([]*liveSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessMu.Unlock()

	for _, sess := range sessions {
		sess.outbound.Close()
	}
	for _, sess := range sessions {
		<-sess.writerDone
	}
	for _, sess := range sessions {
		_ = sess.conn.Close()
	}
}

// runReader decodes one envelope at a time and dispatches it, applying
// back-pressure by not reading the next frame until the dispatcher call
// returns.
func (s *Server) runReader(ctx context.Context, conn *tls.Conn, identity protocol.PeerIdentity, outbound *clienttable.Outbound) {
	for {
		if ctx.Err() != nil {
			return
		}

		body, err := framing.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, framing.ErrFrameTooLarge) {
				log.Printf("session: read frame from %s: %v", identity, err)
			} else {
				log.Printf("session: frame too large from %s", identity)
			}
			return
		}

		envelope, err := protocol.Decode(body)
		if err != nil {
			log.Printf("session: decode envelope from %s: %v", identity, err)
			return
		}

		msgCtx := &MessageContext{
			identity: identity,
			envelope: envelope,
			sender:   outbound,
		}
		s.cfg.OnMessage(ctx, msgCtx)
	}
}

// runWriter drains outbound and writes each envelope to the transport in
// order, exiting once the sender is closed and its queue has drained.
func (s *Server) runWriter(conn net.Conn, outbound *clienttable.Outbound) {
	for {
		envelope, ok := outbound.Recv()
		if !ok {
			return
		}
		body, err := protocol.EncodeServer(envelope)
		if err != nil {
			log.Printf("session: encode outbound envelope: %v", err)
			continue
		}
		if err := framing.WriteFrame(conn, body); err != nil {
			log.Printf("session: write frame: %v", err)
			return
		}
	}
}
