// Command sessiond-mcp exposes PulseFit training data to MCP clients
// over stdio. It talks either to the database directly (local mode) or
// to a running sessiond instance via its REST API (remote mode).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pulsefit/sessiond/internal/config"
	"github.com/pulsefit/sessiond/internal/mcp"
	"github.com/pulsefit/sessiond/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (local mode)")
	remoteURL := flag.String("url", "", "sessiond base URL; when set, data is fetched over the REST API instead of the database")
	userStr := flag.String("user", "", "member id (UUID) to scope all queries to")
	flag.Parse()

	// Logs go to stderr; stdout carries the MCP protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	userID, err := uuid.Parse(*userStr)
	if err != nil {
		log.Error("a valid -user UUID is required", "error", err)
		os.Exit(1)
	}

	var ds mcp.DataSource
	if *remoteURL != "" {
		ds = mcp.NewHTTPClient(*remoteURL, os.Getenv("SESSIOND_AUTH_API_KEY"))
		log.Info("sessiond-mcp starting", "version", Version, "mode", "remote", "url", *remoteURL)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		db, err := storage.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = db
		log.Info("sessiond-mcp starting", "version", Version, "mode", "local")
	}

	s := mcp.New(ds, Version, log)

	err = server.ServeStdio(s, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return mcp.WithUserID(ctx, userID)
	}))
	if err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
