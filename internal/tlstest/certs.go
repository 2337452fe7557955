// Package tlstest generates throwaway CA, server and client certificates for
// use in tests that need a real mTLS handshake. Nothing in this package is
// part of the gateway's production TLS path; it exists only so tests don't
// repeat the x509.CreateCertificate boilerplate.
package tlstest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"
)

// CA is a throwaway certificate authority: its certificate in both DER and
// parsed *x509.Certificate form, plus the private key needed to sign leaf certs. Keys
// are Ed25519, the reference algorithm spec.md's PKI surface names.
type CA struct {
	DER  []byte
	cert *x509.Certificate
	key  ed25519.PrivateKey
}

// NewCA generates a fresh, self-signed CA certificate valid for one day.
func NewCA() (CA, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return CA{}, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"wasmbed-test"}, CommonName: "wasmbed-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		return CA{}, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return CA{}, err
	}

	return CA{DER: der, cert: cert, key: key}, nil
}

// IssueLeaf signs a new leaf certificate for commonName, usable as either a
// server or client credential depending on extKeyUsage. The leaf key is
// Ed25519, PKCS#8-encoded, matching the credentials spec.md's PKI surface
// describes for tests.
func (ca CA) IssueLeaf(commonName string, extKeyUsage x509.ExtKeyUsage) (tls.Certificate, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		DNSNames:              []string{commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{extKeyUsage},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.key)
	if err != nil {
		return tls.Certificate{}, err
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})
	return tls.X509KeyPair(certPEM, keyPEM)
}

// IssueServer issues a leaf certificate suitable for tls.Config.Certificates
// on the accepting side of a handshake.
func (ca CA) IssueServer(commonName string) (tls.Certificate, error) {
	return ca.IssueLeaf(commonName, x509.ExtKeyUsageServerAuth)
}

// IssueClient issues a leaf certificate suitable for presentation as a
// client certificate during mTLS.
func (ca CA) IssueClient(commonName string) (tls.Certificate, error) {
	return ca.IssueLeaf(commonName, x509.ExtKeyUsageClientAuth)
}
