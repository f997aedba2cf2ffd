package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/ingest"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/version"
)

// WebhookSink receives screened webhook payloads.
type WebhookSink interface {
	HandleWebhook(p ingest.Payload) ingest.Result
}

// Server is the webhook and admin HTTP server, plus the WebSocket
// event feed.
type Server struct {
	cfg      config.ServerConfig
	pipeline WebhookSink
	rules    *store.RuleStore
	intel    *store.IntelligenceStore
	hub      *Hub
	log      *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates the gateway server. The hub is created here; attach it
// to the pipeline and scheduler via Hub().
func New(cfg config.ServerConfig, pipeline WebhookSink, rules *store.RuleStore, intel *store.IntelligenceStore, log *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		rules:    rules,
		intel:    intel,
		hub:      NewHub(log),
		log:      log.Sub("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
}

// Hub returns the event feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// checkWebSocketOrigin returns a function that validates WebSocket
// Origin headers. Requests without an Origin header (non-browser
// clients) are always allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("version", version.Version).
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleEvents upgrades the connection and attaches it to the hub.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(64 * 1024)
	s.hub.Attach(conn)
}
