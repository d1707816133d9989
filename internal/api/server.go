package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Addr   string
	Router RouterConfig
	Hub    HubConfig
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	addr        string
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	log         zerolog.Logger
	httpServer  *http.Server
}

// NewServer builds the router and hub. Nothing is started until Start.
func NewServer(cfg ServerConfig) *Server {
	rl := cfg.Router.RateLimiter
	if rl == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.Router.RateLimitConfig != nil {
			rlCfg = *cfg.Router.RateLimitConfig
		}
		rl = NewIPRateLimiter(rlCfg)
		cfg.Router.RateLimiter = rl
	}
	if cfg.Hub.AllowedOrigins == nil {
		cfg.Hub.AllowedOrigins = cfg.Router.CORSOrigins
	}

	s := &Server{
		addr:        cfg.Addr,
		router:      NewRouter(cfg.Router),
		hub:         NewHub(cfg.Hub, cfg.Router.Arena, cfg.Router.Arena, cfg.Router.Logger),
		rateLimiter: rl,
		log:         cfg.Router.Logger.With().Str("component", "server").Logger(),
	}
	s.router.Get("/ws", s.hub.HandleWebSocket)
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and serves HTTP until ctx is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("API server starting")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cancelHub()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("API server stopped")
	return nil
}

// Stop releases background workers. Call after Start returns.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
