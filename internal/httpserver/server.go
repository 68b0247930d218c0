package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tableside/internal/logger"
)

// Serve runs an HTTP server on port until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, port int, handler http.Handler, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_server_started", fmt.Sprintf("HTTP server listening on port %d", port), requestID, map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
