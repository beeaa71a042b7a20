package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rx3lixir/watchparty/internal/archive"
	"github.com/rx3lixir/watchparty/internal/changefeed"
	"github.com/rx3lixir/watchparty/internal/config"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/internal/server"
	"github.com/rx3lixir/watchparty/internal/storage/postgres"
	"github.com/rx3lixir/watchparty/internal/storage/s3"
	"github.com/rx3lixir/watchparty/internal/websocket"
	"github.com/rx3lixir/watchparty/pkg/logger"
)

func main() {
	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	// Initializing and validating config
	cm, err := config.NewConfigManager("internal/config/config.yaml")
	if err != nil {
		fmt.Printf("Error getting config file: %v\n", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initializing logger
	log := logger.Must(logger.New(logger.Config{
		Env:              c.GeneralParams.Env,
		Level:            c.GeneralParams.LogLevel,
		AddSource:        c.GeneralParams.LogAddSource,
		SourcePathLength: c.GeneralParams.LogSourcePathLength,
	}))

	log.Info(
		"Config loaded successfully!",
		"env", c.GeneralParams.Env,
		"http_server_address", c.HttpServerParams.GetAddress(),
		"storage", c.StorageParams.Backend,
		"transcripts", c.S3Params.Enabled,
	)

	// Global context with cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := changefeed.NewBroker(log.Logger, c.StorageParams.FeedBufferSize)
	defer broker.Close()

	// fatal collects errors from background components that should stop the process
	fatal := make(chan error, 2)

	var (
		store room.Store
		pool  *pgxpool.Pool
	)

	switch c.StorageParams.Backend {
	case config.BackendPostgres:
		pool, err = postgres.NewPool(ctx, c.MainDBParams.GetDSN(), c.MainDBParams.MaxConns)
		if err != nil {
			log.Error("Failed to create postgres pool", "error", err, "db", c.MainDBParams.Name)
			os.Exit(1)
		}
		defer pool.Close()

		if err := room.EnsureSchema(ctx, pool); err != nil {
			log.Error("Failed to apply schema", "error", err)
			os.Exit(1)
		}

		log.Info("Database connection established",
			"host", c.MainDBParams.Host,
			"db", c.MainDBParams.Name,
		)

		store = room.NewPostgresStore(pool)

		// triggers publish every write, the listener fans them out
		listener := changefeed.NewPGListener(pool, broker, log.Logger)
		go func() {
			if err := listener.Listen(ctx); err != nil {
				fatal <- fmt.Errorf("change listener: %w", err)
			}
		}()

	case config.BackendMemory:
		log.Warn("Using in-memory storage, rooms are lost on restart")
		store = changefeed.NewNotifyingStore(room.NewMemoryStore(), broker, log.Logger)
	}

	manager := websocket.NewManager(broker, c.GeneralParams.AllowedOrigins, log.Logger)

	var archiveHandler *archive.Handler
	if c.S3Params.Enabled {
		archiveHandler, err = newArchiveHandler(ctx, c, store, log.Logger)
		if err != nil {
			log.Error("Failed to set up transcript archive", "error", err)
			os.Exit(1)
		}
	}

	router := server.NewRouter(server.RouterConfig{
		RoomHandler:    room.NewHandler(store, log.Logger, c.StorageParams.DBTimeout, c.GeneralParams.PublicBaseURL),
		ArchiveHandler: archiveHandler,
		WSHandler:      websocket.NewHandler(manager, store, c.StorageParams.DBTimeout, log.Logger),
		WSManager:      manager,
		StorageBackend: c.StorageParams.Backend,
		DB:             pinger(pool),
		AllowedOrigins: c.GeneralParams.AllowedOrigins,
		Log:            log.Logger,
	})

	// Creates HTTP server
	httpServer := server.New(server.Options{
		Addr:         c.HttpServerParams.GetAddress(),
		ReadTimeout:  c.HttpServerParams.ReadTimeout,
		WriteTimeout: c.HttpServerParams.WriteTimeout,
		IdleTimeout:  c.HttpServerParams.IdleTimeout,
	}, router, log.Logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			fatal <- fmt.Errorf("http server: %w", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we recieve a signal or error
	exitCode := 0
	select {
	case err := <-fatal:
		log.Error("Fatal error", logger.Err(err))
		exitCode = 1

	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.HttpServerParams.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", logger.Err(err))
	}

	// hijacked websocket connections are not tracked by http.Server
	manager.Shutdown()
	cancel()

	if exitCode != 0 {
		broker.Close()
		if pool != nil {
			pool.Close()
		}
		os.Exit(exitCode)
	}
}

func newArchiveHandler(ctx context.Context, c *config.Config, store room.Store, log *slog.Logger) (*archive.Handler, error) {
	client, err := s3.Connect(ctx, s3.Options{
		Endpoint:        c.S3Params.Endpoint,
		AccessKeyID:     c.S3Params.AccessKeyID,
		SecretAccessKey: c.S3Params.SecretAccessKey,
		UseSSL:          c.S3Params.UseSSL,
		Region:          c.S3Params.Region,
		Bucket:          c.S3Params.BucketName,
	})
	if err != nil {
		return nil, err
	}

	log.Info("Transcript archive ready",
		"endpoint", c.S3Params.Endpoint,
		"bucket", c.S3Params.BucketName,
	)

	archiver := archive.NewArchiver(client, c.S3Params.BucketName, store, log)
	return archive.NewHandler(archiver, c.StorageParams.DBTimeout, log), nil
}

// pinger avoids handing the router a typed nil interface for the memory backend
func pinger(pool *pgxpool.Pool) server.Pinger {
	if pool == nil {
		return nil
	}
	return pool
}
