// Command mcp-server exposes trial matching to AI assistants over MCP. It
// needs no external services: the catalog and feedback are SQLite files in
// TRIALSCOUT_DATA_DIR.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/trialscout/trial-matcher/internal/config"
	"github.com/trialscout/trial-matcher/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadLiteConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := mcp.NewLiteServer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create MCP server: %v\n", err)
		os.Exit(1)
	}
	defer server.Close()

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server failed: %v\n", err)
		server.Close()
		os.Exit(1)
	}
}
