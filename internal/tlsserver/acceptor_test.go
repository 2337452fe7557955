package tlsserver

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/wasmbed/wasmbed/internal/tlstest"
)

func TestConfigBuildRequiresClientCert(t *testing.T) {
	ca, err := tlstest.NewCA()
	if err != nil {
		t.Fatalf("NewCA: %v", err)
	}
	serverCert, err := ca.IssueServer("gateway")
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}

	cfg := Config{Certificate: serverCert, ClientCA: ca.DER}
	tlsCfg, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if tlsCfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Fatalf("ClientAuth = %v, want RequireAndVerifyClientCert", tlsCfg.ClientAuth)
	}
	if tlsCfg.MinVersion != tls.VersionTLS13 {
		t.Fatalf("MinVersion = %v, want TLS 1.3", tlsCfg.MinVersion)
	}
}

func TestConfigBuildRejectsMalformedCA(t *testing.T) {
	ca, err := tlstest.NewCA()
	if err != nil {
		t.Fatalf("NewCA: %v", err)
	}
	serverCert, err := ca.IssueServer("gateway")
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}

	cfg := Config{Certificate: serverCert, ClientCA: []byte("not a certificate")}
	if _, err := cfg.Build(); err == nil {
		t.Fatalf("Build with malformed CA returned nil error")
	}
}

// A real handshake, end to end: a client presenting a certificate signed by
// the trusted CA must authenticate, and ExtractIdentity must recover a
// PeerIdentity derived from that certificate's public key.
func TestExtractIdentityAfterRealHandshake(t *testing.T) {
	ca, err := tlstest.NewCA()
	if err != nil {
		t.Fatalf("NewCA: %v", err)
	}
	serverCert, err := ca.IssueServer("gateway")
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	clientCert, err := ca.IssueClient("device-1")
	if err != nil {
		t.Fatalf("IssueClient: %v", err)
	}

	serverTLSCfg, err := Config{Certificate: serverCert, ClientCA: ca.DER}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	listener, err := tls.Listen("tcp", "127.0.0.1:0", serverTLSCfg)
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer listener.Close()

	identityCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		tlsConn := conn.(*tls.Conn)
		if err := tlsConn.HandshakeContext(context.Background()); err != nil {
			errCh <- err
			return
		}
		identity, err := ExtractIdentity(tlsConn.ConnectionState())
		if err != nil {
			errCh <- err
			return
		}
		identityCh <- identity
	}()

	caCert, err := x509.ParseCertificate(ca.DER)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	clientPool := x509.NewCertPool()
	clientPool.AddCert(caCert)

	clientTLSCfg := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      clientPool,
		ServerName:   "gateway",
	}

	clientConn, err := tls.Dial("tcp", listener.Addr().String(), clientTLSCfg)
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer clientConn.Close()

	select {
	case err := <-errCh:
		t.Fatalf("server side failed: %v", err)
	case identity := <-identityCh:
		if len(identity) == 0 {
			t.Fatalf("ExtractIdentity returned empty identity")
		}
		clientLeaf, err := x509.ParseCertificate(clientCert.Certificate[0])
		if err != nil {
			t.Fatalf("ParseCertificate(client): %v", err)
		}
		if !bytes.Equal(identity, clientLeaf.RawSubjectPublicKeyInfo) {
			t.Fatalf("ExtractIdentity = %x, want the client certificate's SPKI %x", identity, clientLeaf.RawSubjectPublicKeyInfo)
		}
	}
}

