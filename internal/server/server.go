package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"aibridge/internal/pkg/logger"
)

// Server owns the HTTP listener lifecycle.
type Server struct {
	addr   string
	server *http.Server
	log    *logger.Logger
}

// New creates a Server instance.
func New(addr string, log *logger.Logger) *Server {
	return &Server{addr: addr, log: log}
}

// serve runs the listener with the given handler until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) serve(handler http.Handler) error {
	// WriteTimeout must outlast the 120s upstream generation timeout.
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting aibridge", zap.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
