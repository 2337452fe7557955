package deviceclient

import (
	"crypto/x509"
	"fmt"
)

// poolFromDER builds a certificate pool containing the single DER-encoded
// gateway certificate a device was provisioned with.
func poolFromDER(der []byte) (*x509.CertPool, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("deviceclient: parse certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return pool, nil
}
