package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mwestcott/aic-mcp/internal/aic"
	"github.com/mwestcott/aic-mcp/internal/auth"
	"github.com/mwestcott/aic-mcp/internal/config"
	"github.com/mwestcott/aic-mcp/internal/logging"
	"github.com/mwestcott/aic-mcp/internal/mcpserver"
	"github.com/mwestcott/aic-mcp/internal/state"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs always go to stderr: in attended mode stdout carries the
	// MCP stdio stream.
	logger := logging.NewLogger(os.Stderr, cfg.Environment, cfg.LogLevel)

	endpoints, err := auth.TenantEndpoints(cfg.TenantURL)
	if err != nil {
		return err
	}

	containerized := cfg.Mode == config.ModeContainerized

	var store auth.TokenStore
	var fileStore *auth.FileStore
	if containerized {
		if err := os.MkdirAll(filepath.Dir(cfg.TokenFile), 0700); err != nil {
			return fmt.Errorf("creating token directory: %w", err)
		}
		fileStore = auth.NewFileStore(cfg.TokenFile, cfg.TokenFileKey)
		store = fileStore
	} else {
		store = auth.NewKeyringStore(cfg.TenantHost())
	}

	var elicitor auth.Elicitor
	if containerized {
		elicitor = mcpserver.NewElicitor(logger)
	}

	svc, err := auth.NewService(auth.Options{
		Endpoints:        endpoints,
		TenantHost:       cfg.TenantHost(),
		ClientID:         cfg.ClientID,
		Scopes:           strings.Fields(cfg.Scopes),
		CallbackPort:     cfg.CallbackPort,
		AllowCachedFirst: cfg.AllowCachedFirst,
		Containerized:    containerized,
		Store:            store,
		Elicitor:         elicitor,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	st, err := state.Load(cfg.StateDB)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer st.Close()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "aic-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(server, &mcpserver.Deps{
		Client:     aic.NewClient(cfg.TenantURL, cfg.Realm, svc, logger),
		Auth:       svc,
		State:      st,
		TenantHost: cfg.TenantHost(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		slog.String("tenant", cfg.TenantHost()),
		slog.String("realm", cfg.Realm),
		slog.String("mode", string(cfg.Mode)),
	)

	if !containerized {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	return serveHTTP(ctx, cfg, server, fileStore, svc, logger)
}

// serveHTTP runs the containerized mode: a streamable-HTTP MCP
// endpoint plus a watcher that picks up token refreshes written by a
// sidecar or operator.
func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcp.Server, fileStore *auth.FileStore, svc *auth.Service, logger *slog.Logger) error {
	go func() {
		if err := auth.WatchTokenFile(ctx, fileStore, svc, logger); err != nil && ctx.Err() == nil {
			logger.Warn("token file watcher stopped", slog.Any("error", err))
		}
	}()

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", cfg.ListenAddr))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
