// Package api exposes the gateway's Kubernetes liveness and readiness
// probes over plain HTTP, independent of the mTLS device-facing listener.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// HealthServer serves /healthz (process liveness) and /readyz. Readiness is
// tracked per subsystem -- the TLS material the device listener needs and
// the DeviceRegistry backing onConnect/onMessage are each reported
// separately, so a load balancer only routes a device at a gateway whose
// every dependency actually finished starting up, and an operator reading
// /readyz's body can see which one did not.
type HealthServer struct {
	server *http.Server

	mu    sync.Mutex
	ready map[string]bool
}

// NewHealthServer builds a HealthServer bound to addr, tracking readiness
// for each named subsystem. Every subsystem starts not-ready; it does not
// start listening until Start is called.
func NewHealthServer(addr string, subsystems ...string) *HealthServer {
	mux := http.NewServeMux()
	ready := make(map[string]bool, len(subsystems))
	for _, name := range subsystems {
		ready[name] = false
	}

	hs := &HealthServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ready: ready,
	}

	mux.HandleFunc("/healthz", hs.handleHealthz)
	mux.HandleFunc("/readyz", hs.handleReadyz)

	return hs
}

// Start begins serving in a background goroutine.
func (s *HealthServer) Start() {
	go func() {
		log.Printf("api: health server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api: health server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the health server down.
func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SetReady flips the readiness state of a single subsystem. Calling it with
// a name not passed to NewHealthServer adds that subsystem.
func (s *HealthServer) SetReady(subsystem string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[subsystem] = ready
}

// notReady returns the sorted names of subsystems not yet ready.
func (s *HealthServer) notReady() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []string
	for name, ready := range s.ready {
		if !ready {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}

func (s *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HealthServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	pending := s.notReady()
	if len(pending) == 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, "not ready: %s", strings.Join(pending, ", "))
}
