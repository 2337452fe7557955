package tlscreds

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

// generateSelfSigned mints an Ed25519/PKCS#8 certificate and key, matching
// the reference PKI surface rather than a stand-in algorithm.
func generateSelfSigned(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})
	return certPEM, keyPEM
}

func TestFileProviderLoadsKeyPair(t *testing.T) {
	certPEM, keyPEM := generateSelfSigned(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("WriteFile cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("WriteFile key: %v", err)
	}

	p := NewFileProvider(certPath, keyPath)
	cert, err := p.GetCertificate(context.Background())
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatalf("GetCertificate returned no certificate chain")
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	p := NewFileProvider("/nonexistent/tls.crt", "/nonexistent/tls.key")
	if _, err := p.GetCertificate(context.Background()); err == nil {
		t.Fatalf("GetCertificate with missing files returned nil error")
	}
}

func TestFileCAProviderReadsPEM(t *testing.T) {
	certPEM, _ := generateSelfSigned(t)
	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.crt")
	if err := os.WriteFile(caPath, certPEM, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewFileCAProvider(caPath)
	got, err := p.GetCA(context.Background())
	if err != nil {
		t.Fatalf("GetCA: %v", err)
	}
	der, err := PEMToDER(got)
	if err != nil {
		t.Fatalf("PEMToDER: %v", err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
}

func TestK8sSecretProviderLoadsTLSSecret(t *testing.T) {
	certPEM, keyPEM := generateSelfSigned(t)
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "gateway-tls", Namespace: "wasmbed"},
		Type:       corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       certPEM,
			corev1.TLSPrivateKeyKey: keyPEM,
		},
	})

	p := NewK8sSecretProvider(clientset, "wasmbed", "gateway-tls")
	cert, err := p.GetCertificate(context.Background())
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatalf("GetCertificate returned no certificate chain")
	}
}

func TestK8sSecretProviderMissingSecret(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	p := NewK8sSecretProvider(clientset, "wasmbed", "missing")
	if _, err := p.GetCertificate(context.Background()); err == nil {
		t.Fatalf("GetCertificate for missing secret returned nil error")
	}
}

func TestK8sSecretCAProviderReadsCACrt(t *testing.T) {
	certPEM, _ := generateSelfSigned(t)
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "device-ca", Namespace: "wasmbed"},
		Data: map[string][]byte{
			"ca.crt": certPEM,
		},
	})

	p := NewK8sSecretCAProvider(clientset, "wasmbed", "device-ca")
	got, err := p.GetCA(context.Background())
	if err != nil {
		t.Fatalf("GetCA: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("GetCA returned empty bundle")
	}
}

func TestPEMToDERRejectsGarbage(t *testing.T) {
	if _, err := PEMToDER([]byte("not pem")); err == nil {
		t.Fatalf("PEMToDER(garbage) returned nil error")
	}
}
