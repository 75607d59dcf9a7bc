package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"reuse-console/internal/logging"
)

type Server struct {
	Serv *http.Server
}

func New(addr string, handler http.Handler) *Server {
	serv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{Serv: serv}
}

// Start serves in the background. The returned channel receives the error
// that stopped the server, if any, and is closed when serving ends.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		logging.Logg.Info("Starting server", "address", s.Serv.Addr)
		if err := s.Serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logg.Error("Server failed", "error", err)
			errc <- err
		}
	}()
	return errc
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Logg.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.Serv.Shutdown(shutdownCtx); err != nil {
		logging.Logg.Error("Server shutdown error", "error", err)
		return err
	}

	logging.Logg.Info("Server stopped")
	return nil
}
