package nats

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// portFileName holds the port of the running embedded server so that other
// meshwiz processes can join the same event log.
const portFileName = "nats.port"

var log = logger.With("nats")

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled
// using the specified data directory for file-based storage. The server
// listens on a random loopback port, returned alongside the server.
func StartEmbeddedNATS(dataDir string) (*server.Server, int, error) {
	log.Debug("Starting embedded NATS server with data dir: %s", dataDir)

	opts := &server.Options{
		JetStream: true,
		StoreDir:  dataDir,
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoSigs:    true,
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		log.Error("Failed to create NATS server: %v", err)
		return nil, 0, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		log.Error("NATS server failed to start within 4s timeout")
		ns.Shutdown()
		return nil, 0, errors.New("nats server failed to start within timeout")
	}

	port := 0
	if addr, ok := ns.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	log.Debug("NATS server ready for connections on port %d", port)
	return ns, port, nil
}

// WritePort records port in dataDir.
func WritePort(dataDir string, port int) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, portFileName), []byte(strconv.Itoa(port)), 0o644)
}

// ReadPort returns the port recorded in dataDir.
func ReadPort(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, portFileName))
	if err != nil {
		return 0, fmt.Errorf("no running meshwiz server: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid port file: %w", err)
	}
	return port, nil
}

// RemovePort deletes the port file, ignoring a missing one.
func RemovePort(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, portFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ConnectInProcess creates an in-process connection to the embedded NATS server.
// This connection does not use network ports and communicates directly with the server.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	log.Debug("Connecting to NATS server in-process")
	conn, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		log.Error("Failed to connect to NATS in-process: %v", err)
		return nil, err
	}
	return conn, nil
}

// ConnectToPort connects to a server started by another meshwiz process.
func ConnectToPort(port int) (*nats.Conn, error) {
	url := fmt.Sprintf("nats://127.0.0.1:%d", port)
	log.Debug("Connecting to NATS at %s", url)
	conn, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", url, err)
		return nil, err
	}
	return conn, nil
}

// CreateJetStream creates a JetStream context from a NATS connection.
func CreateJetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// Shutdown gracefully shuts down the NATS connection and server.
// It first drains and closes the connection, then shuts down the server
// with a timeout to allow in-flight operations to complete.
func Shutdown(nc *nats.Conn, ns *server.Server) error {
	log.Debug("Starting NATS shutdown")

	if nc != nil {
		// Drain waits for published messages to be acknowledged; bound it so
		// shutdown never hangs.
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- nc.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				log.Warn("NATS drain failed, forcing close: %v", err)
				nc.Close()
			}
		case <-time.After(2 * time.Second):
			log.Warn("NATS drain timed out after 2s, forcing close")
			nc.Close()
		}
	}

	if ns != nil {
		ns.Shutdown()

		shutdownDone := make(chan struct{})
		go func() {
			ns.WaitForShutdown()
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
			log.Debug("NATS server shut down cleanly")
		case <-time.After(5 * time.Second):
			log.Error("NATS server shutdown timed out after 5s")
			return errors.New("NATS server shutdown timed out")
		}
	}

	log.Debug("NATS shutdown complete")
	return nil
}
