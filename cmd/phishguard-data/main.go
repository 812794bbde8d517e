// Package main initializes and runs the PhishGuard Data Plane service.
//
// It acts as the composition root for the gRPC analysis API, sharing the
// rule loading and synchronization pipeline with the HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/rafaeljc/phishguard/internal/app"
	"github.com/rafaeljc/phishguard/internal/config"
	"github.com/rafaeljc/phishguard/internal/dataapi"
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

	// -------------------------------------------------------------------------
	// 3. gRPC Server Setup
	// -------------------------------------------------------------------------

	// Create the TCP listener first (Fail Fast)
	grpcCfg := cfg.Server.GRPC
	listener, err := net.Listen("tcp", grpcCfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", grpcCfg.Addr(), err)
	}

	grpcServer := newGRPCServer(&grpcCfg, log)
	dataapi.NewAPI(a.Analyzer).Register(grpcServer)

	// Lets grpcurl inspect the service without a local descriptor.
	reflection.Register(grpcServer)

	var obs *observability.Server
	if cfg.Observability.Enabled {
		obs = observability.NewServer(log, &cfg.Observability, a.Checkers...)
		obs.Start()
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("grpc server listening", slog.String("addr", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Graceful Shutdown
	// -------------------------------------------------------------------------
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping grpc server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// GracefulStop has no deadline of its own; fall back to Stop when it overruns.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("graceful stop timed out, forcing shutdown")
		grpcServer.Stop()
	}

	if obs != nil {
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
	}

	log.Info("service exited successfully")
	return nil
}

func newGRPCServer(cfg *config.GRPCServerConfig, log *slog.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			dataapi.RequestLoggerInterceptor(log),
			dataapi.ObservabilityInterceptor(),
		),
	)
}
