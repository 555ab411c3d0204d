package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/portillolaupa-ui/ucc-supervision/internal/api/v1"
	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/metrics"
	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// Server HTTP server
type Server struct {
	router  *gin.Engine
	handler *v1.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Deps server dependencies
type Deps struct {
	Config       *config.AppConfig
	Forms        []config.FormSettings
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewServer creates the server and its routes
func NewServer(d Deps) *Server {
	if !d.Config.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		router: gin.New(),
		handler: v1.NewHandler(v1.Deps{
			Config:       d.Config,
			Forms:        d.Forms,
			Orchestrator: d.Orchestrator,
			Store:        d.Store,
			Metrics:      d.Metrics,
			Logger:       logger,
		}),
		metrics: d.Metrics,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes registers middleware and routes
func (s *Server) setupRoutes() {
	s.router.Use(RequestID(), RequestLogger(s.logger), Recovery(s.logger), CORS())

	api := s.router.Group("/api")
	{
		s.handler.RegisterRoutes(api)
	}

	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ruta no encontrada"})
	})
}

// Handler the root http.Handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // uploads stream progress while the form is processed
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Servidor iniciado", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Deteniendo servidor")
	return srv.Shutdown(shutdownCtx)
}
