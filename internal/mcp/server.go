// Package mcp exposes trial matching to AI assistants over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/service"
)

// Transport types
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Services are the application services behind the tools. Feedback and
// Extraction are optional; their tools are only registered when set.
type Services struct {
	Match      *service.MatchService
	Feedback   *service.FeedbackService
	Extraction *service.ExtractionService
}

// Options carries server metadata
type Options struct {
	Name    string
	Version string
	// ExportDir receives export_feedback files. Empty disables the tool.
	ExportDir string
}

// Server represents the trial matching MCP server
type Server struct {
	opts      Options
	services  Services
	mcpServer *mcp.Server
	tools     []string
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every available tool registered
func NewServer(opts Options, services Services, logger *logrus.Logger) (*Server, error) {
	if services.Match == nil {
		return nil, errors.New("match service is required")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if opts.Name == "" {
		opts.Name = "trialscout"
	}
	if opts.Version == "" {
		opts.Version = "v1.0.0"
	}

	server := &Server{
		opts:     opts,
		services: services,
		logger:   logger,
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    opts.Name,
			Version: opts.Version,
		}, nil),
	}
	server.registerTools()

	logger.WithField("tool_count", len(server.tools)).Info("Registered MCP tools")
	return server, nil
}

// Tools returns the registered tool names in registration order
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// MCPServer exposes the underlying SDK server
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Run serves over the given transport until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context, transportType string, httpPort int) error {
	s.logger.WithField("transport_type", transportType).Info("Starting MCP server")

	switch transportType {
	case TransportStdio, "":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, httpPort)
	default:
		return fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

func (s *Server) serveHTTP(ctx context.Context, port int) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("MCP HTTP transport listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
