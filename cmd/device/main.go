// Command device is the firmware-side timer-driven heartbeat loop the
// design calls for: one task advances the TLS session, a timer drives
// heartbeats, and a connection failure is not retried in-process -- the
// loop below plays the part of "the surrounding firmware task" that
// reopens the connection on failure (deviceclient itself never retries).
package main

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasmbed/wasmbed/internal/deviceclient"
)

// errNoPEMBlock is returned by pemToDER when its input contains no PEM
// block at all.
var errNoPEMBlock = errors.New("device: no PEM block found")

func main() {
	log.Println("starting wasmbed device client")

	serverAddr := envOr("GATEWAY_ADDR", "127.0.0.1:4433")
	interval := envDuration("HEARTBEAT_INTERVAL", 10*time.Second)

	cert, err := loadKeyPair(envOr("DEVICE_CERT_FILE", "/etc/wasmbed/device.crt"), envOr("DEVICE_KEY_FILE", "/etc/wasmbed/device.key"))
	if err != nil {
		log.Fatalf("load device certificate: %v", err)
	}

	serverCAPEM, err := os.ReadFile(envOr("GATEWAY_CA_FILE", "/etc/wasmbed/gateway-ca.pem"))
	if err != nil {
		log.Fatalf("read gateway CA: %v", err)
	}
	serverCADER, err := pemToDER(serverCAPEM)
	if err != nil {
		log.Fatalf("decode gateway CA: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			log.Println("device client shutting down")
			return
		default:
		}

		client := deviceclient.New(deviceclient.Config{
			ServerAddr:  serverAddr,
			Certificate: cert,
			ServerCA:    serverCADER,
		})

		if err := client.Connect(); err != nil {
			log.Printf("connect to %s failed: %v, retrying in %s", serverAddr, err, interval)
			sleepOrStop(interval, stop)
			continue
		}

		log.Printf("connected to gateway at %s", serverAddr)
		runHeartbeatLoop(client, interval, stop)
		client.Close()
	}
}

// runHeartbeatLoop sends a heartbeat on every tick until SendHeartbeat
// fails (the connection dropped, or the gateway sent something unexpected)
// or a shutdown signal arrives, then returns so main can reconnect.
func runHeartbeatLoop(client *deviceclient.Client, interval time.Duration, stop <-chan os.Signal) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.SendHeartbeat(); err != nil {
				log.Printf("heartbeat failed: %v", err)
				return
			}
			log.Println("heartbeat acknowledged")
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan os.Signal) {
	select {
	case <-time.After(d):
	case <-stop:
	}
}

func loadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(certFile, keyFile)
}

func pemToDER(pemBytes []byte) ([]byte, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errNoPEMBlock
	}
	return block.Bytes, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
