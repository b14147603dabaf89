// Command dommark is the page annotation daemon.
//
// Usage:
//
//	dommark -url https://example.com          # annotate a single page
//	dommark -config dommark.yaml -mcp         # serve MCP tools on stdio
//	dommark -config dommark.yaml -http :8787  # serve the HTTP control API
//	dommark -check https://example.com        # verify persisted selectors
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/dommark"
)

func main() {
	configPath := flag.String("config", "", "path to dommark.yaml config file")
	singleURL := flag.String("url", "", "annotate a single URL")
	checkURL := flag.String("check", "", "check persisted selectors for a URL and exit")
	httpAddr := flag.String("http", "", "serve the HTTP control API on this address")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *checkURL, *httpAddr, *mcpStdio); err != nil {
		logger.Error("dommark: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, checkURL, httpAddr string, mcpStdio bool) error {
	cfg := &dommark.Config{}
	if configPath != "" {
		loaded, err := dommark.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	m, err := dommark.New(cfg, logger)
	if err != nil {
		return err
	}
	defer m.Stop()

	if checkURL != "" {
		return runCheck(ctx, m, checkURL)
	}

	if singleURL == "" && !mcpStdio && cfg.HTTPAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: dommark -url <url> | -check <url> | [-config <file>] -mcp | -http <addr>")
		os.Exit(1)
	}

	if err := m.Start(ctx); err != nil {
		return err
	}

	if singleURL != "" {
		if _, err := m.StartEditing(ctx, singleURL); err != nil {
			return fmt.Errorf("start editing: %w", err)
		}
	}

	if cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: m.Router()}
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()
		go func() {
			logger.Info("dommark: http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("dommark: http serve", "error", err)
			}
		}()
	}

	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "dommark", Version: "0.1.0"}, nil)
		m.RegisterMCP(srv)
		logger.Info("dommark: mcp serving on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	<-ctx.Done()
	return nil
}

func runCheck(ctx context.Context, m *dommark.Marker, pageURL string) error {
	rep, err := m.CheckSnapshot(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
