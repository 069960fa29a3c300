package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/sonify/config"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/server/endpoint"
	"github.com/kbukum/sonify/server/middleware"
)

// Server is the HTTP host: a Gin engine behind the middleware stack and h2c.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	handler    http.Handler
	cfg        config.Server
	log        *logger.Logger
}

// New builds a Server; routes are added through Engine before Start.
func New(cfg config.Server, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("server")

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	handler := middleware.Chain(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.CORS(middleware.DefaultCORS(cfg.CORSOrigins)),
		middleware.RequestLogger(log),
	)(mux)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	}
	handler = h2c.NewHandler(handler, h2s)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		engine:  engine,
		mux:     mux,
		handler: handler,
		cfg:     cfg,
		log:     log,
	}
}

// Engine returns the Gin engine for route registration.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Handler returns the complete handler, middleware included.
func (s *Server) Handler() http.Handler { return s.handler }

// Handle mounts h on the root mux next to Gin.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// RegisterHealthRoutes mounts /health, /alive, /ready and /version.
func (s *Server) RegisterHealthRoutes(service string, checkers ...observability.HealthChecker) {
	s.engine.GET("/health", endpoint.Health(service, checkers...))
	s.engine.GET("/alive", endpoint.Liveness(service))
	s.engine.GET("/ready", endpoint.Readiness(service, checkers...))
	s.engine.GET("/version", endpoint.Version())
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start binds the port and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.httpServer.Addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("serve failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	s.log.Info("HTTP server started", logger.Fields("addr", ln.Addr().String()))
	return nil
}

// Stop drains in-flight requests for at most ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
