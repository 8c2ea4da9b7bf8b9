package main

import (
	"code-lab/infrastructure/api"
	"code-lab/infrastructure/grpc/server"
	"code-lab/infrastructure/realtime"
	"code-lab/infrastructure/storage"
	"code-lab/internal"
	"code-lab/moderation"
	"code-lab/observability"
	"code-lab/runtime"
	"code-lab/runtime/workers"
	"code-lab/sandbox"
	"code-lab/services"
	"code-lab/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	_ "go.uber.org/automaxprocs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run builds every component, serves until a signal or a server failure,
// then shuts down in reverse order. Returning instead of exiting lets the
// deferred closes of the store and the index run.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine: the environment alone may be enough.
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	languages, err := buildLanguages(config)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store (BadgerDB) & Index (Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Session synchronization
	metrics := observability.NewMetrics()
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, config.BufferSize, config.SinkTimeout)
	fileIndex := sink.NewFileIndex(blugeWriter, logger, config.SearchLimit)
	timeline := sink.NewTimeline(config.TimelineCapacity)
	orchestrator.Add(fileIndex, sink.NewMetricsSink(metrics), timeline)
	orchestrator.AddWorker(
		workers.NewWorkspaceJanitor(logger, config.WorkspaceRoot, config.WorkspaceTTL, config.JanitorInterval),
		workers.NewChannelCapacityWorker(logger,
			[]workers.NamedChannel{{Name: "side_events", Channel: orchestrator.SideEvents()}},
			metrics, config.MetricInterval, config.LowCapacityThreshold),
	)

	options := []runtime.SynchronizerOption{runtime.WithSideEvents(orchestrator.SideEvents())}
	if config.CensoredWords != "" {
		moderator, err := buildModerator(config, logger)
		if err != nil {
			return exitConfig, err
		}
		options = append(options, runtime.WithChatFilter(moderator))
	}
	registry := runtime.NewRegistry()
	bus := runtime.NewBus(registry, logger, config.DeliveryTimeout)
	store := storage.NewWorkspaceStore(db, logger)
	synchronizer := runtime.NewSynchronizer(logger, store, registry, bus, options...)

	// 4. Execution
	executor := sandbox.NewOrchestrator(logger, languages, sandbox.NewWorkspace(config.WorkspaceRoot),
		sandbox.Config{
			CompileTimeout:    config.CompileTimeout,
			RunTimeout:        config.RunTimeout,
			MaxConcurrentRuns: config.MaxConcurrentRuns,
			MaxOutputBytes:    config.MaxOutputBytes,
		}, sandbox.WithRunObserver(metrics))
	runService := services.NewRunService(executor)
	workspaceService := services.NewWorkspaceService(synchronizer, fileIndex)

	// Error (HTTP, gRPC & Orchestrator)
	errChan := make(chan error, 4)

	// 5. Start the background workers
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP Server (REST + WebSocket + metrics)
	realtimeHandler := realtime.NewHandler(logger, synchronizer, config.ConnectionBufferSize, config.WriteTimeout, metrics)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           api.NewServer(logger, workspaceService, runService, realtimeHandler, metrics.Handler()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC(),
			"languages", languages.Names())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC Server
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(logger)))
	server.RegisterExecutionServiceServer(grpcServer, server.NewExecutionServer(logger, runService))
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress)
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Debug inspector
	var debugServer *internal.DebugServer
	if logger.Enabled(ctx, slog.LevelDebug) {
		debugServer = internal.NewDebugServer(logger, db, fmt.Sprintf("localhost:%d", config.DebugPort), "/inspect",
			internal.WorkspaceMapper, func() map[string]any {
				return map[string]any{"connections": registry.Count()}
			})
		go func() {
			logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
			if err := debugServer.ListenAndServe(); err != nil {
				logger.Warn("Debug inspector stopped", "error", err)
			}
		}()
	}

	// 9. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 10. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if debugServer != nil {
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("debug shutdown: %w", err))
		}
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	if err := result.ErrorOrNil(); err != nil {
		logger.Warn("Unclean shutdown", "error", err)
	}
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

func buildLanguages(config internal.Config) (*sandbox.Languages, error) {
	var extra []sandbox.Adapter
	if config.LanguagesFile != "" {
		adapters, err := sandbox.LoadLanguages(config.LanguagesFile)
		if err != nil {
			return nil, err
		}
		extra = adapters
	}
	return sandbox.NewLanguages(extra...)
}

func buildModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	replacement, err := moderation.ParseReplacement(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	return moderation.NewModerator(moderation.ParseWords(config.CensoredWords), replacement, logger)
}
