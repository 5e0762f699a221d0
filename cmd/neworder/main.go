package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/jonasguinami/NewOrder/internal/backup"
	"github.com/jonasguinami/NewOrder/internal/blobstore"
	bloblocal "github.com/jonasguinami/NewOrder/internal/blobstore/local"
	blobsqlite "github.com/jonasguinami/NewOrder/internal/blobstore/sqlite"
	"github.com/jonasguinami/NewOrder/internal/config"
	"github.com/jonasguinami/NewOrder/internal/db"
	"github.com/jonasguinami/NewOrder/internal/inventory"
	"github.com/jonasguinami/NewOrder/internal/logging"
	"github.com/jonasguinami/NewOrder/internal/store"
	"github.com/jonasguinami/NewOrder/internal/web"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		// No degraded mode: the app cannot function without its stores.
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var backend blobstore.Store
	switch cfg.BlobBackend {
	case "local":
		backend, err = bloblocal.New(cfg.BlobPath)
		if err != nil {
			logger.Error("failed to initialize blob store", "error", err)
			return
		}
		logger.Info("using local blob backend", "path", cfg.BlobPath)
	default:
		backend = blobsqlite.New(database)
	}

	blobs := blobstore.NewAsync(backend, logger)
	defer blobs.Close()

	records := store.NewRecordStore(database)

	service, err := inventory.New(context.Background(), records, blobs, logger)
	if err != nil {
		logger.Error("failed to load application state", "error", err)
		return
	}

	codec := backup.NewCodec(records, blobs, logger)
	server := web.NewServer(service, codec, logger)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
