// Package main wires together the archive API service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/api"
	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/browsertrix"
	catalogmemory "github.com/sudan-digital-archive/archive-api/internal/catalog/memory"
	catalogpostgres "github.com/sudan-digital-archive/archive-api/internal/catalog/postgres"
	"github.com/sudan-digital-archive/archive-api/internal/clock/system"
	"github.com/sudan-digital-archive/archive-api/internal/config"
	"github.com/sudan-digital-archive/archive-api/internal/id/uuid"
	"github.com/sudan-digital-archive/archive-api/internal/logging"
	notifynoop "github.com/sudan-digital-archive/archive-api/internal/notify/noop"
	notifypostmark "github.com/sudan-digital-archive/archive-api/internal/notify/postmark"
	notifypubsub "github.com/sudan-digital-archive/archive-api/internal/notify/pubsub"
	"github.com/sudan-digital-archive/archive-api/internal/orchestrator"
	storagegcs "github.com/sudan-digital-archive/archive-api/internal/storage/gcs"
	storagememory "github.com/sudan-digital-archive/archive-api/internal/storage/memory"
	"github.com/sudan-digital-archive/archive-api/internal/telemetry"
)

const sagaDrainTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	telemetry.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cat, closeCatalog, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()
	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	crawls, err := browsertrix.New(browsertrix.Config{
		BaseURL:   cfg.Browsertrix.BaseURL,
		LoginPath: cfg.Browsertrix.LoginPath,
		OrgID:     cfg.Browsertrix.OrgID,
		Username:  cfg.Browsertrix.Username,
		Password:  cfg.Browsertrix.Password,
		Timeout:   cfg.BrowsertrixTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init browsertrix client: %w", err)
	}

	orch := orchestrator.New(
		crawls,
		store,
		cat,
		notifier,
		uuid.New(),
		system.New(),
		orchestrator.Config{
			PollInterval:    cfg.PollInterval(),
			MaxPollAttempts: cfg.Orchestrator.MaxPollAttempts,
			KeyPrefix:       cfg.Storage.Prefix,
			ContentType:     cfg.Storage.ContentType,
		},
		logger,
	)

	server := api.NewServer(ctx, orch, cat, store, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	// In-flight sagas get a short grace period; anything still polling a
	// half-hour crawl is lost, which is an accepted limitation.
	drained := make(chan struct{})
	go func() {
		orch.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info("all sagas drained")
	case <-time.After(sagaDrainTimeout):
		logger.Warn("abandoning in-flight sagas", zap.Duration("waited", sagaDrainTimeout))
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.ArtifactStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := storagegcs.New(ctx, client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		logger.Info("using gcs artifact store", zap.String("bucket", cfg.Storage.GCSBucket))
		return store, nil
	case "memory":
		logger.Info("using in-memory artifact store, artifacts will not survive restarts")
		return storagememory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildCatalog(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.CatalogWriter, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		cat, err := catalogpostgres.New(ctx, catalogpostgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres catalog: %w", err)
		}
		logger.Info("using postgres catalog", zap.String("table", cfg.DB.Table))
		return cat, cat.Close, nil
	case "memory":
		logger.Info("using in-memory catalog, records will not survive restarts")
		return catalogmemory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Notifier, func(), error) {
	switch cfg.Notify.Provider {
	case "postmark":
		n, err := notifypostmark.New(notifypostmark.Config{
			APIBase:     cfg.Notify.Postmark.APIBase,
			ServerToken: cfg.Notify.Postmark.ServerToken,
			Sender:      cfg.Notify.Postmark.Sender,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init postmark notifier: %w", err)
		}
		logger.Info("using postmark notifier", zap.String("sender", cfg.Notify.Postmark.Sender))
		return n, func() {}, nil
	case "pubsub":
		client, err := gcpubsub.NewClient(ctx, cfg.Notify.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notify.PubSub.TopicName)
		logger.Info("using pubsub notifier", zap.String("topic", cfg.Notify.PubSub.TopicName))
		closer := func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("close pubsub client failed", zap.Error(err))
			}
		}
		return notifypubsub.New(topic), closer, nil
	case "noop":
		logger.Info("notifications disabled")
		return notifynoop.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
}
