/*
Package main is the entry point for the PingUp server.

It loads configuration, initializes the global logging system, opens the configured store
backend and media host, wires the push registry into the messaging and relationship services,
serves HTTP, and shuts down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pingup/internal/app/chat"
	"pingup/internal/app/db"
	"pingup/internal/app/graph"
	"pingup/internal/app/memstore"
	"pingup/internal/app/mongostore"
	"pingup/internal/app/push"
	"pingup/internal/app/sqlitestore"
	"pingup/internal/app/storage"
	"pingup/internal/app/user"
	"pingup/internal/configs"
	"pingup/internal/handler"
	"pingup/internal/pkg/logx"
)

// backend is the persistence surface every store driver provides.
type backend interface {
	user.Store
	chat.Store
	graph.Store
	Ping(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg *configs.AppConfig) (backend, error) {
	switch cfg.StoreDriver {
	case configs.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return db.NewStore(pool), nil
	case configs.DriverMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case configs.DriverSQLite:
		return sqlitestore.Open(cfg.SQLitePath)
	case configs.DriverMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func main() {
	if err := configs.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("media_enabled", cfg.MediaEnabled()).
		Dur("push_timeout", cfg.PushTimeout).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store", "driver", cfg.StoreDriver)
	}
	defer store.Close()

	var storageService storage.StorageService
	var mediaHost chat.MediaHost
	if cfg.MediaEnabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:     cfg.S3PublicBaseURL,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize media storage")
		}
		mediaHost = storageService
	}

	registry := push.NewRegistry()

	deps := &handler.AppDeps{
		Config:   cfg,
		Registry: registry,
		Users:    user.NewService(store, nil),
		Chat: chat.NewService(store, mediaHost, registry, chat.Config{
			PushTimeout: cfg.PushTimeout,
		}),
		Graph: graph.NewEngine(store, registry, graph.Config{
			DailyRequestLimit: cfg.ConnectionRequestDailyLimit,
			PushTimeout:       cfg.PushTimeout,
		}),
		StorageService: storageService,
		Store:          store,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("PingUp Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	// Live sessions never finish on their own, so close them before draining requests.
	registry.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
