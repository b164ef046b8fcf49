package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/catalog"
	"github.com/trialscout/trial-matcher/internal/config"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
	"github.com/trialscout/trial-matcher/internal/service"
)

// LiteServer is a self-contained MCP server. The trial catalog and feedback
// live in SQLite files under the data directory and the catalog is seeded
// from the bundled dataset on first start.
type LiteServer struct {
	config        *config.LiteConfig
	server        *Server
	trials        *catalog.SQLiteStore
	catalog       *catalog.CachedStore
	feedbackStore feedback.Store
	llm           extraction.Client
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// WithLLMClient enables biomarker extraction with the given client instead of
// one built from GeminiAPIKey.
func WithLLMClient(client extraction.Client) LiteServerOption {
	return func(s *LiteServer) error {
		s.llm = client
		return nil
	}
}

// NewLiteServer opens the data directory and builds the MCP server over it
func NewLiteServer(ctx context.Context, cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: config.NewLogger(cfg.Logging()),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := server.openCatalog(ctx); err != nil {
		server.Close()
		return nil, err
	}

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			server.Close()
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	extractionSvc, err := server.extractionService(ctx)
	if err != nil {
		server.Close()
		return nil, err
	}

	matchSvc := service.NewMatchService(server.logger, server.catalog, cfg.Matching())
	mcpServer, err := NewServer(Options{
		Name:      "trialscout-lite",
		Version:   "v1.0.0",
		ExportDir: cfg.ExportDir(),
	}, Services{
		Match:      matchSvc,
		Feedback:   service.NewFeedbackService(server.logger, server.feedbackStore, server.catalog),
		Extraction: extractionSvc,
	}, server.logger)
	if err != nil {
		server.Close()
		return nil, err
	}
	server.server = mcpServer

	server.logger.WithFields(logrus.Fields{
		"data_dir":   cfg.DataDir,
		"extraction": extractionSvc.BiomarkerExtractionEnabled(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

func (s *LiteServer) openCatalog(ctx context.Context) error {
	store, err := catalog.NewSQLiteStore(s.config.CatalogDBPath())
	if err != nil {
		return fmt.Errorf("failed to open trial catalog: %w", err)
	}
	s.trials = store

	count, err := store.CountTrials(ctx)
	if err != nil {
		return fmt.Errorf("failed to count trials: %w", err)
	}
	if count == 0 {
		trials, err := catalog.SeedTrials()
		if err != nil {
			return err
		}
		if _, err := catalog.Seed(ctx, store, trials, s.logger); err != nil {
			return err
		}
	}

	s.catalog = catalog.NewCachedStore(store, nil, catalog.CachedStoreConfig{
		MemoryItems: s.config.CacheMaxItems,
		MemoryTTL:   s.config.CacheTTL,
	}, s.logger)
	return nil
}

func (s *LiteServer) extractionService(ctx context.Context) (*service.ExtractionService, error) {
	documents := extraction.NewTextExtractor(0, s.logger)

	if s.llm == nil && s.config.GeminiAPIKey != "" {
		client, err := extraction.NewGeminiClient(ctx, s.config.GeminiAPIKey, s.config.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		s.llm = client
	}
	if s.llm == nil {
		return service.NewExtractionService(s.logger, documents, nil), nil
	}

	extractor, err := extraction.NewBiomarkerExtractor(s.llm, extraction.DefaultExtractorConfig(), s.logger)
	if err != nil {
		return nil, err
	}
	return service.NewExtractionService(s.logger, documents, extractor), nil
}

// Start serves the configured transport until ctx is cancelled
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting TrialScout MCP Server (Lite)...")
	return s.server.Run(ctx, s.config.Transport, s.config.HTTPPort)
}

// Server returns the underlying MCP server
func (s *LiteServer) Server() *Server {
	return s.server
}

// CacheStats reports catalog cache traffic
func (s *LiteServer) CacheStats() catalog.CacheStats {
	if s.catalog == nil {
		return catalog.CacheStats{}
	}
	return s.catalog.Stats()
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	var errs []error
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			errs = append(errs, err)
		}
	}
	if s.trials != nil {
		if err := s.trials.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close trial catalog")
			errs = append(errs, err)
		}
	}
	if s.llm != nil {
		if err := s.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
