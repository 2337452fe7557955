// Package tlsserver builds the mutual-TLS configuration the gateway
// terminates connections with, and projects an authenticated peer
// certificate down to the PeerIdentity the rest of the core deals in.
package tlsserver

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"github.com/wasmbed/wasmbed/internal/protocol"
)

// ErrIdentityExtractionFailed is returned when a handshake completes but no
// usable peer certificate is present, or its SubjectPublicKeyInfo cannot be
// read. The caller MUST NOT invoke any application callback in this case:
// the session is aborted while still in the Handshaking state.
var ErrIdentityExtractionFailed = errors.New("tlsserver: failed to extract peer identity")

// Config builds a *tls.Config for client authentication is mandatory; a
// handshake without a verifiable client certificate fails before any
// application byte is read.
type Config struct {
	// Certificate is the gateway's own TLS credential: a PKCS#8 private
	// key plus certificate chain.
	Certificate tls.Certificate

	// ClientCA is the single DER-encoded certificate trusted to sign
	// device client certificates.
	ClientCA []byte
}

// Build constructs the *tls.Config the acceptor listens with.
func (c Config) Build() (*tls.Config, error) {
	pool := x509.NewCertPool()
	caCert, err := x509.ParseCertificate(c.ClientCA)
	if err != nil {
		return nil, err
	}
	pool.AddCert(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{c.Certificate},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ExtractIdentity projects the first peer certificate of an established TLS
// connection state down to a PeerIdentity: the DER bytes of its
// SubjectPublicKeyInfo. It fails with ErrIdentityExtractionFailed if no
// peer certificate is present, which should not happen once
// tls.RequireAndVerifyClientCert has already accepted the handshake, but is
// checked explicitly rather than assumed.
func ExtractIdentity(state tls.ConnectionState) (protocol.PeerIdentity, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, ErrIdentityExtractionFailed
	}
	cert := state.PeerCertificates[0]
	if len(cert.RawSubjectPublicKeyInfo) == 0 {
		return nil, ErrIdentityExtractionFailed
	}
	identity := make([]byte, len(cert.RawSubjectPublicKeyInfo))
	copy(identity, cert.RawSubjectPublicKeyInfo)
	return protocol.PeerIdentity(identity), nil
}
