package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/session"
	"github.com/mark3labs/meshwiz/internal/submit"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

// Server exposes the wizard of one session as MCP tools over streamable
// HTTP, next to a /healthz endpoint reporting whether the wizard is ready.
type Server struct {
	store     *session.Store
	sessName  string
	submitter *submit.Submitter
	synthOpts synth.Options
	host      string

	mu        sync.Mutex
	mcpServer *server.MCPServer
	http      *http.Server
	addr      *net.TCPAddr
}

// Option configures a Server.
type Option func(*Server)

// WithHost sets the interface to listen on. The default is the loopback.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// New returns a server for the wizard of sessionName. A nil submitter leaves
// the wizard-submit tool registered but refusing to write.
func New(store *session.Store, sessionName string, sub *submit.Submitter, opts synth.Options, options ...Option) *Server {
	s := &Server{
		store:     store,
		sessName:  sessionName,
		submitter: sub,
		synthOpts: opts,
		host:      "127.0.0.1",
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Start listens on port, or on a free port when port is 0, and serves in the
// background. It returns the bound port once connections are accepted.
func (s *Server) Start(ctx context.Context, port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return 0, errors.New("server already started")
	}

	mcpServer := server.NewMCPServer("meshwiz", "1.0.0", server.WithToolCapabilities(true))
	s.mcpServer = mcpServer
	if err := s.registerTools(); err != nil {
		s.mcpServer = nil
		return 0, fmt.Errorf("failed to register tools: %w", err)
	}

	// Listening before Serve keeps the port from being taken in between.
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.host, fmt.Sprint(port)))
	if err != nil {
		s.mcpServer = nil
		return 0, fmt.Errorf("failed to listen: %w", err)
	}
	s.addr = ln.Addr().(*net.TCPAddr)

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true)))
	mux.HandleFunc("/healthz", s.handleHealth)
	srv := &http.Server{Handler: mux}
	s.http = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("MCP server on %s stopped: %v", s.addr, err)
		}
	}()
	logger.Debug("MCP server for session %s listening on %s", s.sessName, s.addr)
	return s.addr.Port, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return nil
	}

	err := s.http.Shutdown(context.Background())
	s.http = nil
	s.mcpServer = nil
	if err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	logger.Debug("MCP server for session %s stopped", s.sessName)
	return nil
}

// URL returns the MCP endpoint.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	host := s.host
	if host == "127.0.0.1" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/mcp", net.JoinHostPort(host, fmt.Sprint(s.addr.Port)))
}

type health struct {
	Session  string   `json:"session"`
	Open     bool     `json:"open"`
	Ready    bool     `json:"ready"`
	Blocking []string `json:"blocking,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.LoadState(r.Context(), s.sessName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h := health{Session: s.sessName, Open: st.Wizard.Open}
	if h.Open {
		h.Ready = wizard.IsValid(st.Wizard)
		h.Blocking = st.Wizard.Valid.Invalid()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}
