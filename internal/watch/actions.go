// Package watch implements the `tabsense watch` command: attach to a
// browser and run the tab processing pipeline until interrupted.
package watch

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tabsense/tabsense/internal/browser"
	"github.com/tabsense/tabsense/internal/pipeline"
	"github.com/tabsense/tabsense/models"
	"github.com/tabsense/tabsense/pkg/enricher"
	"github.com/tabsense/tabsense/pkg/forwarder"
	"github.com/tabsense/tabsense/pkg/ratelimit"
	"github.com/tabsense/tabsense/pkg/store"
)

const apiKeyEnv = "GROQ_API_KEY"

func WatchAction(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if c.IsSet("devtools-url") {
		cfg.Browser.DevToolsURL = c.String("devtools-url")
	}
	if c.IsSet("backend-url") {
		cfg.BackendURL = c.String("backend-url")
	}

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		logger.Warn("no API key in environment, enrichment will use the local fallback", "env", apiKeyEnv)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(2)
	}
	defer db.Close()

	source, err := browser.NewSource(cfg.Browser, logger)
	if err != nil {
		logger.Error("failed to connect to browser", "error", err)
		os.Exit(2)
	}

	p := pipeline.New(
		source,
		enricher.New(cfg.Enrichment, apiKey, logger),
		db,
		forwarder.New(cfg.BackendURL, logger),
		ratelimit.NewCooldown(time.Duration(cfg.Pipeline.CooldownMS)*time.Millisecond),
		cfg.Pipeline,
		logger,
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching tabs", "store", db.Path(), "backend", cfg.BackendURL)

	go source.Run(ctx)
	p.Run(ctx, source.Events())

	logger.Info("shutting down")
	return nil
}
