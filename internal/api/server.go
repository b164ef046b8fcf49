// Package api serves the trial matching REST API.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/middleware"
	"github.com/trialscout/trial-matcher/internal/service"
)

// Services are the application services behind the handlers. Feedback may
// be nil, which leaves the feedback routes unregistered.
type Services struct {
	Match      *service.MatchService
	Extraction *service.ExtractionService
	Feedback   *service.FeedbackService
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	services      Services
	limiter       *middleware.RateLimiter
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, services Services, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s := &Server{
		configManager: configManager,
		logger:        logger,
		services:      services,
		limiter:       middleware.NewRateLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst),
		router:        router,
	}
	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr": addr,
			"tls":  cfg.TLSEnabled,
		}).Info("HTTP server listening")

		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go s.sweepRateLimiter(ctx)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) sweepRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(); n > 0 {
				s.logger.WithField("clients", n).Debug("Dropped idle rate limit entries")
			}
		}
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/health", s.handleHealth)

	auth := s.configManager.GetConfig().Auth
	admin := middleware.AdminAuth(auth.JWTSecret, auth.Issuer, s.logger)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.limiter.Middleware())
	{
		v1.POST("/match", s.handleMatch)
		v1.POST("/match/batch", s.handleMatchBatch)
		v1.POST("/exclusion-check", s.handleExclusionCheck)

		v1.GET("/trials", s.handleListTrials)
		v1.GET("/trials/:nct", s.handleGetTrial)
		v1.POST("/trials", admin, s.handleCreateTrial)
		v1.PATCH("/trials/:nct", admin, s.handleUpdateTrial)
		v1.DELETE("/trials/:nct", admin, s.handleDeleteTrial)

		v1.POST("/extract-biomarkers", s.handleExtractBiomarkers)
		v1.POST("/extract-text-only", s.handleExtractText)

		if s.services.Feedback != nil {
			v1.POST("/feedback", s.handleRecordFeedback)
			v1.GET("/feedback", s.handleListFeedback)
		}
	}
}
