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

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"galley/api/internal/app"
	"galley/api/internal/backup"
	"galley/api/internal/config"
	"galley/api/internal/docstore"
	"galley/api/internal/mediasync"
	"galley/api/internal/order"
	"galley/api/internal/search"
	"galley/api/internal/sheets"
	"galley/api/internal/snapshot"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store := docstore.NewWithBaseURL(cfg.GistBaseURL)
	store.SetCacheTTL(cfg.CacheTTL)

	recorder, err := backup.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	credStore, err := docstore.NewCredentialStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	// Adopt persisted credentials so the API survives restarts without
	// reconfiguration.
	if creds, err := credStore.Load(ctx); err == nil && creds.DocumentID != "" {
		store.SetCredentials(creds)
	} else if err != nil {
		log.Printf("WARNING: could not load stored credentials: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}
	archive, err := snapshot.New(cfg.SnapshotsDir)
	if err != nil {
		log.Fatalf("snapshot archive init failed: %v", err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory())

	var syncer *mediasync.Syncer
	if strings.TrimSpace(cfg.DriveAPIKey) != "" {
		uploader, err := buildUploader(cfg)
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
		if uploader != nil {
			syncer = mediasync.NewSyncer(mediasync.NewDriveClient(cfg.DriveAPIKey), uploader)
		}
	}

	service := app.NewService(app.Options{
		Store:        store,
		Credentials:  credStore,
		Backups:      recorder,
		Archive:      archive,
		Sheets:       sheets.New(),
		Syncer:       syncer,
		Search:       searchService,
		Orders:       order.NewBuilder(cfg.OrderPhone),
		SheetsAPIKey: cfg.SheetsAPIKey,
	})

	// Warm the search index from the current catalog when credentials
	// are already configured.
	if store.HasCredentials() {
		if doc, err := store.GetData(ctx); err == nil {
			searchService.Reindex(doc)
		} else {
			log.Printf("WARNING: initial catalog read failed: %v", err)
		}
	}

	if cfg.AdminToken == "" {
		log.Printf("WARNING: GALLEY_ADMIN_TOKEN is empty, admin routes are disabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.AdminToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Galley API listening on %s", cfg.Addr)
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

func buildUploader(cfg config.Config) (mediasync.Uploader, error) {
	switch cfg.StorageBackend {
	case "s3":
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: true,
		})
		if err != nil {
			return nil, err
		}
		return mediasync.NewS3Uploader(client, cfg.StorageBucket, cfg.S3PublicURL), nil
	case "firebase":
		if cfg.StorageBucket == "" {
			log.Printf("WARNING: GALLEY_STORAGE_BUCKET is empty, media sync disabled")
			return nil, nil
		}
		return mediasync.NewFirebaseUploader(cfg.StorageBucket), nil
	}
	log.Printf("WARNING: unknown storage backend %q, media sync disabled", cfg.StorageBackend)
	return nil, nil
}
