package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abduss/otagate/internal/config"
	"go.uber.org/zap"
)

// Serve runs handler on cfg's address until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func Serve(ctx context.Context, name string, cfg config.ServerConfig, handler http.Handler, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info(name+" listening", zap.String("addr", cfg.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	zap.L().Info("shutting down gracefully", zap.String("server", name))
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
