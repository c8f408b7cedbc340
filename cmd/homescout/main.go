package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/use-agent/homescout/api"
	"github.com/use-agent/homescout/api/handler"
	"github.com/use-agent/homescout/cache"
	"github.com/use-agent/homescout/config"
	"github.com/use-agent/homescout/models"
	"github.com/use-agent/homescout/scraper"
)

func main() {
	app := &cli.App{
		Name:    "homescout",
		Usage:   "Scrape real-estate search results into price/address records.",
		Version: handler.Version,
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default).",
				Action: serve,
			},
			{
				Name:  "scrape",
				Usage: "Run one scrape and print the listings as JSON.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "city",
						Aliases:  []string{"c"},
						Usage:    "City to search.",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "state",
						Aliases:  []string{"s"},
						Usage:    "State to search.",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "max-pages",
						Aliases: []string{"p"},
						Usage:   "Stop after this many result pages (0 uses the configured bound).",
					},
					&cli.StringFlag{
						Name:    "fetch-mode",
						Aliases: []string{"m"},
						Usage:   "Session backend: browser or http.",
					},
				},
				Action: scrapeOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("homescout failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration, then sets up logging.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	cfg := config.Load()
	initLogger(cfg.Log, logOut)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(_ *cli.Context) error {
	// ── 1. Configuration and logging ────────────────────────────────
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	slog.Info("homescout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"baseURL", cfg.Site.BaseURL,
		"fetchMode", cfg.Scraper.FetchMode,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// ── 2. Scraper and cache ────────────────────────────────────────
	sc := scraper.NewScraper(cfg.Browser, cfg.Scraper, cfg.Site)
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()

	// ── 3. Router ───────────────────────────────────────────────────
	router := api.NewRouter(sc, cfg, cc, time.Now())

	// ── 4. HTTP server ──────────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server is running", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 5. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// In-flight scrapes see their request context cancelled and release
	// their sessions.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("homescout stopped", "stats", sc.Stats())
	return nil
}

// scrapeOnce runs a single scrape. Logs go to stderr so stdout carries
// only the JSON result.
func scrapeOnce(c *cli.Context) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := scraper.NewScraper(cfg.Browser, cfg.Scraper, cfg.Site)
	job := scraper.Job{
		URL:       scraper.SearchURL(cfg.Site.BaseURL, c.String("city"), c.String("state")),
		MaxPages:  c.Int("max-pages"),
		FetchMode: c.String("fetch-mode"),
	}

	listings, err := sc.Scrape(ctx, job)
	if err != nil {
		slog.Error("scrape failed", "url", job.URL, "code", models.ErrorCode(err), "error", err)
		return cli.Exit(models.MsgScrapeFailed, 1)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(h))
}
