package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

func (a *app) serve(c *cli.Context) error {
	store, done, err := a.openStore()
	if err != nil {
		return err
	}
	defer done()

	addr := a.config.Server.ApiAddr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	api := NewAPI(store, a.config.Server.ApiKey, a.config.Generate, a.logger)
	apiHttpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if a.config.Server.ApiKey == "" {
		a.logger.Warn("No API key configured, the API is open to anyone who can reach it")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting api server", "address", addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err = <-serverErr:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("OS signal received, initiating shutdown.")
	timeout := time.Duration(a.config.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	a.logger.Info("nextword api has shut down.")
	return nil
}
