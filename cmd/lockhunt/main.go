// Command lockhunt runs the marketplace search service: a pool of
// stealth-browser agents scanning for activation-locked MacBook listings,
// with an HTTP control surface for the operator dashboard.
//
// Usage:
//
//	lockhunt                          # env-var configuration
//	lockhunt -config lockhunt.yaml    # YAML pool configuration
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lockhunt/hunt"
	"github.com/hazyhaar/lockhunt/internal/browser"
	"github.com/hazyhaar/lockhunt/internal/classify"
	"github.com/hazyhaar/lockhunt/internal/events"
	"github.com/hazyhaar/lockhunt/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to lockhunt.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides PORT)")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *configPath, *addr); err != nil {
		logger.Error("lockhunt: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr string) error {
	cfg := hunt.DefaultConfig()
	if configPath != "" {
		loaded, err := hunt.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	applyEnv(&cfg)

	dataDir := env("DATA_DIR", "data")

	// Results store.
	results, err := store.Open(filepath.Join(dataDir, env("CSV_FILENAME", "macbook_results.csv")), logger)
	if err != nil {
		return err
	}

	// Events database.
	eventLog, err := events.Open(env("EVENTS_DB", "db/events.db"))
	if err != nil {
		return err
	}
	defer eventLog.Close()

	// Classification backend. Without an API key every call fails fast
	// and the deterministic fallback carries the pipeline.
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENROUTER_API_KEY not set, classification will use keyword fallback only")
	}
	classifier := classify.New(
		classify.NewOpenRouter(classify.OpenRouterConfig{
			APIKey:  apiKey,
			Model:   env("OPENROUTER_MODEL", "meta-llama/llama-3.2-3b-instruct"),
			BaseURL: env("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Title:   "lockhunt",
		}),
		classify.WithLogger(logger),
	)

	headless := env("HEADLESS", "true") == "true"
	sessions := func(ctx context.Context) (hunt.PageSession, error) {
		return browser.Open(ctx, browser.Config{
			RemoteURL: os.Getenv("BROWSER_REMOTE_URL"),
			Headless:  &headless,
			Logger:    logger,
		})
	}

	coord := hunt.NewCoordinator(cfg, results, classifier, sessions, logger, hunt.WithEvents(eventLog))

	// Control surface.
	h := &handlers{
		coord:   coord,
		store:   results,
		cfg:     &cfg,
		logger:  logger,
		baseCtx: ctx,
	}
	if pw := os.Getenv("AUTH_PASSWORD"); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		h.passwordHash = hash
	}

	if addr == "" {
		addr = ":" + env("PORT", "8000")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	coord.StopSearch()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// applyEnv lets environment variables override pool configuration, the
// way container deployments configure the service.
func applyEnv(cfg *hunt.Config) {
	if v, err := strconv.Atoi(os.Getenv("AGENT_COUNT")); err == nil && v > 0 {
		cfg.AgentCount = v
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_PAGES_PER_SEARCH")); err == nil && v > 0 {
		cfg.MaxPages = v
	}
	if v := os.Getenv("DEFAULT_MODEL_NUMBERS"); v != "" {
		cfg.DefaultTargets = splitCSV(v)
	}
	if v := os.Getenv("DEFAULT_EXCLUSIONS"); v != "" {
		cfg.DefaultExclusions = splitCSV(v)
	}
	if d, err := time.ParseDuration(os.Getenv("REQUEST_DELAY_MIN")); err == nil {
		cfg.RequestDelayMin = d
	}
	if d, err := time.ParseDuration(os.Getenv("REQUEST_DELAY_MAX")); err == nil {
		cfg.RequestDelayMax = d
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
