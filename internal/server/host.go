package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// RunConfig holds the listeners of one host process. HTTP is required;
// Serial and Health are optional.
type RunConfig struct {
	Service *Service
	HTTP    net.Listener
	Serial  net.Listener
	Health  net.Listener
	Logger  *slog.Logger
}

// Run serves every configured listener until ctx is cancelled or one of them
// fails, then shuts all of them down.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Service == nil || cfg.HTTP == nil {
		return errors.New("server: service and HTTP listener are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup

	srv := &http.Server{
		Handler:        NewHTTPHandler(cfg.Service, logger),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 16,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("http server starting", "addr", cfg.HTTP.Addr().String())
		if err := srv.Serve(cfg.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("serve http: %w", err)
		}
	}()

	if cfg.Serial != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("serial server starting", "addr", cfg.Serial.Addr().String())
			if err := ServeSerial(ctx, cfg.Serial, cfg.Service, logger); err != nil {
				errs <- err
			}
		}()
	}

	var health *Health
	if cfg.Health != nil {
		health = NewHealth()
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("grpc health starting", "addr", cfg.Health.Addr().String())
			if err := health.Serve(cfg.Health); err != nil {
				errs <- err
			}
		}()
		health.SetServing(true)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		logger.Error("listener failed", "error", runErr.Error())
	}

	logger.Info("shutting down host")
	if health != nil {
		health.SetServing(false)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err.Error())
	}
	if health != nil {
		health.Stop()
	}
	wg.Wait()

	logger.Info("host shutdown complete")
	return runErr
}
