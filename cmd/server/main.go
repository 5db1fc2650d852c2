package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/inspectdoc/internal/agent"
	"github.com/dgallion1/inspectdoc/internal/api"
	"github.com/dgallion1/inspectdoc/internal/assets"
	"github.com/dgallion1/inspectdoc/internal/config"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/mcpserver"
	"github.com/dgallion1/inspectdoc/internal/numbering"
	"github.com/dgallion1/inspectdoc/internal/store"
	"github.com/dgallion1/inspectdoc/internal/store/postgres"
	"github.com/dgallion1/inspectdoc/internal/store/sqlite"
	"github.com/dgallion1/inspectdoc/internal/templates"
)

func main() {
	cfg := config.Load()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	reg := templates.Default()
	if cfg.TemplatesFile != "" {
		reg, err = templates.Load(cfg.TemplatesFile)
		if err != nil {
			log.Error("load templates", "path", cfg.TemplatesFile, "error", err)
			os.Exit(1)
		}
	}

	provider, closeAssets, err := openAssets(cfg)
	if err != nil {
		log.Error("open assets", "error", err)
		os.Exit(1)
	}

	ed := editor.New(editor.Config{
		HistoryDepth: cfg.HistoryDepth,
		SessionTTL:   cfg.SessionTTL,
		Numbering: numbering.Strategy{
			Separator:     cfg.NumberingSeparator,
			Restart:       cfg.NumberingRestart,
			SkipTemplates: true,
		},
		Templates: reg,
	}, st, editor.LogNotifier{Log: log}, log)
	ed.Start(ctx)

	var ai *agent.Client
	if cfg.AgentEnabled() {
		ai = agent.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, agent.Options{Logger: log})
	}

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		mcpHandler = mcpserver.Handler(mcpserver.NewServer(mcpserver.NewTools(ed, provider, log)))
	}

	srv := api.NewServer(ed, provider, ai, mcpHandler, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting inspectdoc",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store", cfg.StoreDriver,
		"agent", cfg.AgentEnabled(),
		"mcp", cfg.MCPEnabled,
	)
	closeAgent := func() {
		if ai != nil {
			ai.Close()
		}
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}
	if err := serve(sigCtx, httpServer, log, ed.Stop, closeAgent, closeAssets, closeStore); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// serve runs srv until ctx is done, then shuts it down gracefully and runs
// closers in order. It returns only after every closer has finished.
func serve(ctx context.Context, srv *http.Server, log *slog.Logger, closers ...func()) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	for _, c := range closers {
		c()
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.StorePostgres:
		return postgres.Connect(ctx, cfg.DatabaseURL, cfg.TablePrefix)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openAssets(cfg config.Config) (assets.Provider, func(), error) {
	switch {
	case cfg.AssetsURL != "":
		c := assets.NewClient(cfg.AssetsURL, cfg.AssetsAPIKey)
		return c, c.Close, nil
	case cfg.AssetsManifest != "":
		m, err := assets.LoadManifest(cfg.AssetsManifest)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
	return assets.None{}, func() {}, nil
}
