package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	addr := fmt.Sprintf(":%d", app.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.serveHTTP(ctx, listener, router)
}

// serveHTTP blocks until the server fails or ctx ends. On ctx end in-flight
// requests get shutdownTimeout to finish.
func (app *application) serveHTTP(ctx context.Context, listener net.Listener, router http.Handler) error {
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := app.logger.With("addr", listener.Addr().String())

	served := make(chan error, 1)
	go func() {
		log.Info("http server listening")
		served <- srv.Serve(listener)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("http server draining", "timeout", app.shutdownTimeout())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()

	// Hijacked websocket streams are not tracked by Shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-served
	log.Info("http server stopped")
	return nil
}
