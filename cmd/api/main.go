package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/di"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/worker"
	"github.com/webcoletivo/coletivosend/internal/interface/middleware"
	"github.com/webcoletivo/coletivosend/internal/interface/router"
	"github.com/webcoletivo/coletivosend/internal/interface/server"
	"github.com/webcoletivo/coletivosend/internal/interface/validator"
	"github.com/webcoletivo/coletivosend/pkg/config"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger setup
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	if err := logger.Setup(logCfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize DI Container
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	// Initialize UseCases, Handlers, and Middlewares
	container.InitUploadUseCases()
	handlers := di.NewHandlers(container)
	middlewares := di.NewMiddlewares(container)

	// Setup Server
	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.Server.Port
	serverConfig.Debug = cfg.Server.Debug
	if cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	srv := server.NewServer(serverConfig)
	e := srv.Echo()

	// Setup validator and error handler
	e.Validator = validator.NewCustomValidator()
	e.HTTPErrorHandler = middleware.CustomHTTPErrorHandler

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()))
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Security.CORSOrigins
	e.Use(middleware.CORSWithConfig(corsConfig))

	// Setup Router
	partLimit := container.Policy.EffectiveChunkSize(container.Storage.MinPartSize())
	router.NewRouter(e, handlers, middlewares, partLimit).Setup()

	// Start background workers
	workerMgr := worker.NewManager()
	workerMgr.Register(worker.NewUploadSweepJob(container.Upload.ExpiryJob.Run, cfg.Upload.SweepInterval))
	if container.PgClient != nil {
		workerMgr.Register(worker.NewHealthCheckJob("postgres", container.PgClient.Health))
	}
	if container.StorageHealth != nil {
		workerMgr.Register(worker.NewHealthCheckJob("storage", container.StorageHealth.Health))
	}
	workerMgr.Start(ctx)

	// Start server
	slog.Info("starting server", "addr", srv.Address(), "storage", container.Storage.Name(), "chunk_size", partLimit)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "error", err)
		}
	}

	slog.Info("shutting down server...")
	workerMgr.Shutdown(serverConfig.ShutdownTimeout)

	if err := srv.Shutdown(context.Background()); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
