package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"yashubustudio/reviewlens/sentiment"
)

const shutdownTimeout = 15 * time.Second

// Server is the inference HTTP server.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
	addr   string
}

// NewServer builds the router around svc.
func NewServer(cfg sentiment.ServerConfig, svc *sentiment.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), withRequestID(), accessLog(logger))

	NewHandler(svc, cfg, logger).RegisterRoutes(router)

	return &Server{
		router: router,
		logger: logger,
		addr:   cfg.Addr,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
