// Command prowl scans a username across providers. Two modes:
//
//	prowl [flags] <username>   one scan, results on stdout, exit 0/2/3
//	prowl serve                HTTP API + optional MCP tools
//
// Exit codes: 0 success, 2 invalid arguments, 3 scan job failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/prowl/addon"
	"github.com/hazyhaar/prowl/facegate"
	"github.com/hazyhaar/prowl/httpclient"
	"github.com/hazyhaar/prowl/provider"
	"github.com/hazyhaar/prowl/provider/drivers"
	"github.com/hazyhaar/prowl/ratelimit"
	"github.com/hazyhaar/prowl/scan"
	_ "modernc.org/sqlite"
)

func main() {
	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "serve" {
		if err := serve(ctx, logger); err != nil {
			slog.Error("prowl: serve failed", "error", err)
			os.Exit(1)
		}
		return
	}
	os.Exit(runScan(ctx, logger, os.Args[1:]))
}

func runScan(ctx context.Context, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("prowl", flag.ExitOnError)
	providersFlag := fs.String("providers", "", "comma-separated provider subset (default all)")
	exportFlag := fs.String("export", "", "write results to a file: json or csv")
	outDir := fs.String("out", ".", "directory for exported files")
	faceFlag := fs.String("face", "", "reference face image for avatar matching")
	deadline := fs.Duration("deadline", 0, "whole-job deadline (default 3m)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: prowl [flags] <username> | prowl serve")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	username := fs.Arg(0)

	var references [][]byte
	if *faceFlag != "" {
		ref, err := os.ReadFile(*faceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "prowl: read face reference: %v\n", err)
			return 2
		}
		references = append(references, ref)
	}

	app, err := buildApp(logger, *deadline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "prowl: %v\n", err)
		return 2
	}

	view, err := app.engine.Run(ctx, scan.Request{
		Username:   username,
		Providers:  splitList(*providersFlag),
		References: references,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "prowl: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(view)

	if *exportFlag != "" {
		path, err := exportView(view, *exportFlag, *outDir, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "prowl: %v\n", err)
			return 2
		}
		logger.Info("prowl: results exported", "path", path)
	}

	if view.State == scan.StateFailed {
		return 3
	}
	return 0
}

// app bundles the wired scanning stack shared by the CLI and serve modes.
type app struct {
	registry *provider.Registry
	engine   *scan.Engine
	store    *scan.Store
	gate     *facegate.Gate
	logger   *slog.Logger
}

func buildApp(logger *slog.Logger, jobDeadline time.Duration, opts ...func(*scan.Config)) (*app, error) {
	factory, err := httpclient.New(httpclient.Config{
		SocksAddr: env("SOCKS_PROXY", ""),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{})
	penv := &provider.Env{HTTP: factory, Limiter: limiter, Logger: logger}

	registry := provider.NewRegistry(provider.Sources{
		BasePack:   env("PROVIDER_PACK", ""),
		OverlayDir: env("PROVIDER_OVERLAY_DIR", ""),
	}, penv, logger)
	registry.RegisterDriver(drivers.NewGitHub(penv, drivers.GitHubConfig{}))
	registry.RegisterDriver(drivers.NewReddit(penv, drivers.RedditConfig{}))
	registry.RegisterDriver(drivers.NewHIBP(penv, drivers.HIBPConfig{
		APIKey: env("HIBP_API_KEY", ""),
	}))
	registry.RegisterDriver(drivers.NewBreachDir(penv, drivers.BreachDirConfig{}))
	if err := registry.Reload(); err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	pipeline := addon.New(addon.Config{Env: penv, Logger: logger})
	store := scan.NewStore(scan.StoreConfig{})

	cfg := scan.Config{
		JobDeadline: jobDeadline,
		Enricher:    pipeline,
		Logger:      logger,
	}
	for _, o := range opts {
		o(&cfg)
	}
	engine := scan.New(registry, store, cfg)

	// The restoration sidecar lives on loopback, which the scan-path
	// transport refuses by design.
	gateFactory, err := httpclient.New(httpclient.Config{NoDialGuard: true, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("facegate client: %w", err)
	}
	gate := facegate.New(facegate.Config{
		URL:    env("FACEGATE_URL", ""),
		Client: gateFactory.Client(60*time.Second, nil),
		Logger: logger,
	})

	return &app{
		registry: registry,
		engine:   engine,
		store:    store,
		gate:     gate,
		logger:   logger,
	}, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
