// Package main initializes and runs the PhishGuard HTTP API.
//
// It acts as the composition root for the REST surface: analysis endpoints,
// rule set inspection, history and (with a database) rule management.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/phishguard/internal/app"
	"github.com/rafaeljc/phishguard/internal/config"
	"github.com/rafaeljc/phishguard/internal/controlapi"
	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, shutdownLogger, err := logger.Setup(ctx, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = shutdownLogger(flushCtx)
	}()
	slog.SetDefault(log)
	cfg.LogConfig(log)

	// -------------------------------------------------------------------------
	// 2. Components
	// -------------------------------------------------------------------------
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	a.Start(workerCtx)
	defer func() {
		cancelWorkers()
		a.Wait()
	}()

	api := controlapi.NewAPI(log, a.Analyzer, apiConfig(cfg, log), apiOptions(cfg, a)...)

	// -------------------------------------------------------------------------
	// 3. Servers
	// -------------------------------------------------------------------------
	var obs *observability.Server
	if cfg.Observability.Enabled {
		obs = observability.NewServer(log, &cfg.Observability, a.Checkers...)
		obs.Start()
	}

	httpCfg := cfg.Server.HTTP
	server := &http.Server{
		Addr:              httpCfg.Addr(),
		Handler:           api.Router,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
		MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			slog.String("addr", server.Addr),
			slog.Bool("tls", httpCfg.TLSEnabled),
			slog.Bool("rule_management", api.RuleManagementEnabled()),
		)
		var err error
		if httpCfg.TLSEnabled {
			err = server.ListenAndServeTLS(httpCfg.TLSCert, httpCfg.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Graceful Shutdown
	// -------------------------------------------------------------------------
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if obs != nil {
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
	}

	log.Info("service exited successfully")
	return nil
}

func apiConfig(cfg *config.Config, log *slog.Logger) controlapi.Config {
	httpCfg := cfg.Server.HTTP
	skipAuth := cfg.App.Environment != config.EnvironmentProduction && httpCfg.APIKeyHash == ""
	if skipAuth && cfg.RuleManagementEnabled() {
		log.Warn("rule management is running without authentication",
			slog.String("environment", cfg.App.Environment),
		)
	}
	return controlapi.Config{
		APIKeyHash:         httpCfg.APIKeyHash,
		SkipAuth:           skipAuth,
		CORSAllowedOrigins: httpCfg.CORSAllowedOrigins,
		MaxBodyBytes:       httpCfg.MaxBodyBytes,
	}
}

func apiOptions(cfg *config.Config, a *app.App) []controlapi.Option {
	opts := []controlapi.Option{
		controlapi.WithNotifyRetry(cfg.Syncer.PublishMaxRetries, cfg.Syncer.PublishRetryDelay),
	}
	if a.Store != nil {
		opts = append(opts, controlapi.WithRuleManagement(a.Store, a.Notifier))
	}
	return opts
}
