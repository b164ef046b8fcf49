package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trialscout/trial-matcher/internal/api"
	"github.com/trialscout/trial-matcher/internal/catalog"
	"github.com/trialscout/trial-matcher/internal/config"
	"github.com/trialscout/trial-matcher/internal/database"
	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
	mcpserver "github.com/trialscout/trial-matcher/internal/mcp"
	"github.com/trialscout/trial-matcher/internal/repository"
	"github.com/trialscout/trial-matcher/internal/service"
)

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	configManager, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.WithError(err).Warn("Failed to release resource")
			}
		}
	}()

	store, storeClosers, err := openCatalog(ctx, cfg, logger)
	closers = append(closers, storeClosers...)
	if err != nil {
		return err
	}

	var remote catalog.SnapshotCache
	if cfg.Cache.RedisURL != "" {
		redisCache, err := catalog.NewRedisSnapshotCache(cfg.Cache)
		if err != nil {
			// matching still works from the in-process tier
			logger.WithError(err).Warn("Redis unavailable, catalog snapshots are cached in memory only")
		} else {
			remote = redisCache
			closers = append(closers, redisCache)
		}
	}
	cached := catalog.NewCachedStore(store, remote, catalog.CachedStoreConfig{
		MemoryItems: cfg.Cache.MemoryItems,
		MemoryTTL:   cfg.Cache.DefaultTTL,
	}, logger)

	feedbackStore, err := openFeedbackStore(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, feedbackStore)

	extractionSvc, llm, err := newExtractionService(ctx, cfg.Extraction, logger)
	if err != nil {
		return err
	}
	if llm != nil {
		closers = append(closers, llm)
	}

	matchSvc := service.NewMatchService(logger, cached, cfg.Matching)
	feedbackSvc := service.NewFeedbackService(logger, feedbackStore, cached)
	server := api.NewServer(configManager, api.Services{
		Match:      matchSvc,
		Extraction: extractionSvc,
		Feedback:   feedbackSvc,
	}, logger)

	logger.WithFields(logrus.Fields{
		"host":           cfg.Server.Host,
		"port":           cfg.Server.Port,
		"catalog_source": cfg.Catalog.Source,
		"extraction":     extractionSvc.BiomarkerExtractionEnabled(),
	}).Info("Starting TrialScout API server")

	if cfg.MCP.TransportType != mcpserver.TransportHTTP {
		return server.Start(ctx)
	}

	tools, err := mcpserver.NewServer(mcpserver.Options{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}, mcpserver.Services{
		Match:      matchSvc,
		Feedback:   feedbackSvc,
		Extraction: extractionSvc,
	}, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return tools.Run(gctx, mcpserver.TransportHTTP, cfg.MCP.HTTPPort) })
	return g.Wait()
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

// openCatalog returns the configured trial store plus whatever must be closed
// with it.
func openCatalog(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.TrialStore, []io.Closer, error) {
	var (
		store   domain.TrialStore
		closers []io.Closer
	)

	switch cfg.Catalog.Source {
	case config.CatalogPostgres:
		dbConfig := database.ConfigFromDomain(&cfg.Database)
		if cfg.Database.MigrateOnStart {
			runner, err := database.NewMigrationRunner(dbConfig.URL(), logger)
			if err != nil {
				return nil, closers, err
			}
			err = runner.Up(ctx)
			runner.Close()
			if err != nil {
				return nil, closers, err
			}
		}

		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, closeFunc(db.Close))
		store = repository.NewTrialRepository(db.Pool, logger)

	case config.CatalogSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Catalog.SQLitePath), 0755); err != nil {
			return nil, closers, fmt.Errorf("failed to create catalog directory: %w", err)
		}
		sqliteStore, err := catalog.NewSQLiteStore(cfg.Catalog.SQLitePath)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, sqliteStore)
		store = sqliteStore

	default:
		memory, err := catalog.NewSeededMemoryStore()
		if err != nil {
			return nil, closers, err
		}
		return memory, closers, nil
	}

	if cfg.Catalog.SeedOnStart {
		trials, err := catalog.SeedTrials()
		if err != nil {
			return nil, closers, err
		}
		if _, err := catalog.Seed(ctx, store, trials, logger); err != nil {
			return nil, closers, err
		}
	}
	return store, closers, nil
}

// openFeedbackStore keeps feedback next to the catalog: PostgreSQL when the
// catalog lives there, otherwise a SQLite file beside the catalog database.
func openFeedbackStore(cfg *domain.Config) (feedback.Store, error) {
	if cfg.Catalog.Source == config.CatalogPostgres {
		return feedback.NewPostgresStoreFromURL(database.ConfigFromDomain(&cfg.Database).URL())
	}
	path := feedbackPath(cfg.Catalog.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	return feedback.NewSQLiteStore(path)
}

func feedbackPath(catalogPath string) string {
	return filepath.Join(filepath.Dir(catalogPath), "feedback.db")
}

func newExtractionService(ctx context.Context, cfg domain.ExtractionConfig, logger *logrus.Logger) (*service.ExtractionService, extraction.Client, error) {
	documents := extraction.NewTextExtractor(cfg.MaxDocumentBytes, logger)
	if cfg.GeminiAPIKey == "" {
		logger.Info("No Gemini API key configured, biomarker extraction is disabled")
		return service.NewExtractionService(logger, documents, nil), nil, nil
	}

	client, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	extractor, err := extraction.NewBiomarkerExtractor(client, extraction.ExtractorConfig{
		CacheSize: cfg.CacheSize,
		Timeout:   cfg.Timeout,
	}, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return service.NewExtractionService(logger, documents, extractor), client, nil
}
