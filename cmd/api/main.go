package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/app"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/collab"
	"inkwell/api/internal/config"
	"inkwell/api/internal/realtime"
	"inkwell/api/internal/session"
	"inkwell/api/internal/statestore"
	"inkwell/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessionStore.Close()

	var states statestore.StateStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		log.Printf("Using MinIO for document state storage")
		minioStore, err := statestore.NewMinio(statestore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		states = minioStore
	} else {
		log.Printf("Using PostgreSQL for document state storage")
		states = statestore.NewPostgres(dataStore)
	}

	controller := collab.NewController(
		collab.NewResolver([]byte(cfg.CollabSecret), sessionStore),
		dataStore,
		states,
	)
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		controller = controller.WithArchive(archive.New(cfg.ArchiveDir))
	}

	engine := realtime.NewEngine(realtime.EngineConfig{
		Hooks:           controller,
		PersistDebounce: cfg.PersistDebounce,
		Bridge:          realtime.NewBridge(sessionStore.Client()),
	})

	httpServer := app.NewHTTPServer(app.HTTPServerConfig{
		Engine:         engine,
		Sessions:       sessionStore,
		CollabSecret:   []byte(cfg.CollabSecret),
		CollabTokenTTL: cfg.CollabTokenTTL,
		SessionCookie:  cfg.SessionCookie,
		CORSOrigin:     cfg.CORSOrigin,
		PingDB:         dataStore.Ping,
		PingRedis:      sessionStore.Ping,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Inkwell collaboration API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
