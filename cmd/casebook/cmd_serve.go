package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"casebook/internal/httpapi"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health checks, metrics and the read-only API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, runServe)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (defaults to API_ADDR)")
}

func runServe(ctx context.Context, rt *runtime) error {
	addr := serveFlags.addr
	if addr == "" {
		addr = rt.cfg.Addr
	}

	api := httpapi.NewServer(rt.engine, rt.search, httpapi.Options{
		CORSOrigin: rt.cfg.CORSOrigin,
		Checks:     rt.checks,
		Gatherer:   rt.registry,
		Logger:     rt.log,
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.WithField("addr", addr).Info("casebook API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.log.WithError(err).Warn("shutdown error")
	}
	return nil
}
