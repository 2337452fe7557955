package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasmbed/wasmbed/internal/api"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/registry"
	"github.com/wasmbed/wasmbed/internal/registry/k8sregistry"
	"github.com/wasmbed/wasmbed/internal/registry/memory"
	"github.com/wasmbed/wasmbed/internal/session"
	"github.com/wasmbed/wasmbed/internal/tlscreds"
	"github.com/wasmbed/wasmbed/internal/tlsserver"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// main wires the gateway's external collaborators -- environment-variable
// configuration, a DeviceRegistry adapter, a TLS credential source, and the
// session core's constructor/Run -- exactly the way the proxy this module
// is grounded on wires its own resolver/TLS-provider/core.Server. None of
// this wiring is part of the core; it is the thin external layer spec.md
// §1 and §6 describe as out of scope.
func main() {
	log.Println("starting wasmbed gateway")

	healthServer := api.NewHealthServer(envOr("HEALTH_ADDR", ":8080"), "registry", "tls")
	healthServer.Start()

	deviceRegistry, err := buildRegistry()
	if err != nil {
		log.Fatalf("build device registry: %v", err)
	}
	healthServer.SetReady("registry", true)

	cert, clientCA, err := buildTLSMaterial(context.Background())
	if err != nil {
		log.Fatalf("build TLS material: %v", err)
	}
	healthServer.SetReady("tls", true)

	gatewayRef := registry.GatewayReference{
		Namespace: envOr("POD_NAMESPACE", "default"),
		Name:      envOr("POD_NAME", "wasmbed-gateway"),
	}

	srv := session.New(session.Config{
		BindAddr: envOr("BIND_ADDR", ":4433"),
		TLS:      tlsserver.Config{Certificate: cert, ClientCA: clientCA},

		OnConnect: func(ctx context.Context, identity protocol.PeerIdentity) session.AuthorizationResult {
			return onConnect(ctx, deviceRegistry, gatewayRef, identity)
		},
		OnDisconnect: func(ctx context.Context, identity protocol.PeerIdentity) {
			onDisconnect(ctx, deviceRegistry, identity)
		},
		OnMessage: func(ctx context.Context, msgCtx *session.MessageContext) {
			onMessage(ctx, deviceRegistry, msgCtx)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("gateway server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Printf("health server shutdown: %v", err)
	}
}

// buildRegistry selects a DeviceRegistry adapter the same way the proxy's
// main selects a BackendResolver: an in-memory map when STATIC_DEVICES is
// set (local development, no cluster), the Kubernetes adapter otherwise.
// The value of STATIC_DEVICES is not parsed: the in-memory registry starts
// empty, so onConnect refuses every device it is asked about.
func buildRegistry() (registry.DeviceRegistry, error) {
	if os.Getenv("STATIC_DEVICES") != "" {
		log.Println("using in-memory device registry (STATIC_DEVICES set)")
		return memory.New(), nil
	}

	log.Println("using Kubernetes device registry")
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = os.Getenv("HOME") + "/.kube/config"
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("build kubeconfig: %w", err)
		}
	}

	namespace := envOr("POD_NAMESPACE", envOr("NAMESPACE", "default"))
	return k8sregistry.NewForConfig(cfg, namespace)
}

// buildTLSMaterial selects the gateway's TLS credential source the same way
// the proxy's main selects its TLSProvider, minus that provider's
// self-signed fallback: an explicit file pair if TLS_CERT_FILE is set,
// otherwise a Kubernetes Secret if TLS_SECRET_NAME is set, otherwise an
// error. Mutual TLS is mandatory in this design, so there is no local-dev
// tier that hands a device an unverifiable gateway certificate; an operator
// who wants to run without a real credential must still provide one of the
// two. The client CA is always read from TLS_CLIENT_CA_FILE (or the
// Secret's ca.crt) regardless of which tier provided the server's own
// credential.
func buildTLSMaterial(ctx context.Context) (tls.Certificate, []byte, error) {
	var certProvider tlscreds.Provider
	var caProvider interface {
		GetCA(ctx context.Context) ([]byte, error)
	}

	if certFile := os.Getenv("TLS_CERT_FILE"); certFile != "" {
		keyFile := os.Getenv("TLS_KEY_FILE")
		if keyFile == "" {
			return tls.Certificate{}, nil, fmt.Errorf("TLS_KEY_FILE must be set when TLS_CERT_FILE is set")
		}
		certProvider = tlscreds.NewFileProvider(certFile, keyFile)
		caProvider = tlscreds.NewFileCAProvider(envOr("TLS_CLIENT_CA_FILE", "/etc/wasmbed/client-ca.pem"))
	} else if secretName := os.Getenv("TLS_SECRET_NAME"); secretName != "" {
		namespace := envOr("POD_NAMESPACE", envOr("NAMESPACE", "default"))
		clientset, err := inClusterClientset()
		if err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("build clientset for TLS secret: %w", err)
		}
		certProvider = tlscreds.NewK8sSecretProvider(clientset, namespace, secretName)
		caProvider = tlscreds.NewK8sSecretCAProvider(clientset, namespace, envOr("TLS_CLIENT_CA_SECRET", secretName))
	} else {
		return tls.Certificate{}, nil, fmt.Errorf("one of TLS_CERT_FILE or TLS_SECRET_NAME must be set")
	}

	cert, err := certProvider.GetCertificate(ctx)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	caPEM, err := caProvider.GetCA(ctx)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	caDER, err := tlscreds.PEMToDER(caPEM)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	return *cert, caDER, nil
}

func inClusterClientset() (*k8s.Clientset, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return k8s.NewForConfig(cfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
