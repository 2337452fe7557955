// Package tlscreds loads the gateway's own TLS credential (certificate plus
// private key) from one of the sources the original proxy's TLS providers
// supported: a file pair, or a Kubernetes Secret.
package tlscreds

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PEMToDER extracts the DER bytes of the first CERTIFICATE block in a PEM
// bundle. tlsserver.Config.ClientCA takes a single DER-encoded certificate;
// every source this package reads a CA from (a file, a Secret's ca.crt)
// hands back PEM, so callers run it through this before building the
// gateway's TLS config.
func PEMToDER(pemBytes []byte) ([]byte, error) {
	for {
		block, rest := pem.Decode(pemBytes)
		if block == nil {
			return nil, fmt.Errorf("tlscreds: no CERTIFICATE PEM block found in CA bundle")
		}
		if block.Type == "CERTIFICATE" {
			return block.Bytes, nil
		}
		pemBytes = rest
	}
}

// Provider resolves the gateway's TLS certificate. Implementations may
// reload the certificate on every call (the Kubernetes Secret case, where
// cert-manager rotates it underneath the gateway) or return a fixed value.
type Provider interface {
	GetCertificate(ctx context.Context) (*tls.Certificate, error)
}

// FileProvider loads a PEM certificate and key from the filesystem on every
// call, so a rotated file on disk is picked up without a restart.
type FileProvider struct {
	CertFile string
	KeyFile  string
}

// NewFileProvider returns a Provider backed by a certificate/key file pair.
func NewFileProvider(certFile, keyFile string) *FileProvider {
	return &FileProvider{CertFile: certFile, KeyFile: keyFile}
}

// GetCertificate implements Provider.
func (p *FileProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlscreds: load key pair from %s, %s: %w", p.CertFile, p.KeyFile, err)
	}
	return &cert, nil
}

// K8sSecretProvider loads a kubernetes.io/tls Secret on every call, so a
// cert-manager-rotated secret is picked up without a gateway restart.
type K8sSecretProvider struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
}

// NewK8sSecretProvider returns a Provider backed by a Kubernetes Secret of
// type kubernetes.io/tls.
func NewK8sSecretProvider(clientset kubernetes.Interface, namespace, secretName string) *K8sSecretProvider {
	return &K8sSecretProvider{clientset: clientset, namespace: namespace, secretName: secretName}
}

// GetCertificate implements Provider.
func (p *K8sSecretProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	secret, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("tlscreds: get secret %s/%s: %w", p.namespace, p.secretName, err)
	}

	certBytes, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return nil, fmt.Errorf("tlscreds: secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSCertKey)
	}
	keyBytes, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return nil, fmt.Errorf("tlscreds: secret %s/%s missing %s", p.namespace, p.secretName, corev1.TLSPrivateKeyKey)
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("tlscreds: parse key pair from secret %s/%s: %w", p.namespace, p.secretName, err)
	}
	return &cert, nil
}

// FileCAProvider loads the client CA bundle from a PEM file on every call.
type FileCAProvider struct {
	CAFile string
}

// NewFileCAProvider returns a provider that reads CAFile on every call.
func NewFileCAProvider(caFile string) *FileCAProvider {
	return &FileCAProvider{CAFile: caFile}
}

// GetCA returns the raw PEM bytes of the client CA bundle.
func (p *FileCAProvider) GetCA(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.CAFile)
	if err != nil {
		return nil, fmt.Errorf("tlscreds: read CA file %s: %w", p.CAFile, err)
	}
	return data, nil
}

// K8sSecretCAProvider loads the CA bundle used to verify device client
// certificates from a Kubernetes Secret's ca.crt entry.
type K8sSecretCAProvider struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
}

// NewK8sSecretCAProvider returns a provider that reads ca.crt from a
// Kubernetes Secret.
func NewK8sSecretCAProvider(clientset kubernetes.Interface, namespace, secretName string) *K8sSecretCAProvider {
	return &K8sSecretCAProvider{clientset: clientset, namespace: namespace, secretName: secretName}
}

// GetCA returns the raw PEM bytes of the client CA bundle.
func (p *K8sSecretCAProvider) GetCA(ctx context.Context) ([]byte, error) {
	secret, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("tlscreds: get secret %s/%s: %w", p.namespace, p.secretName, err)
	}
	caBytes, ok := secret.Data["ca.crt"]
	if !ok {
		return nil, fmt.Errorf("tlscreds: secret %s/%s missing ca.crt", p.namespace, p.secretName)
	}
	return caBytes, nil
}
