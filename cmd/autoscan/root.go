package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/autoscan/internal/config"
	"github.com/jo-hoe/autoscan/internal/kv"
	"github.com/jo-hoe/autoscan/internal/llm"
	"github.com/jo-hoe/autoscan/internal/llm/aiproxy"
	"github.com/jo-hoe/autoscan/internal/llm/mock"
	"github.com/jo-hoe/autoscan/internal/llm/openai"
	"github.com/jo-hoe/autoscan/internal/worklog"
)

var cfgFile string

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	faintColor  = color.New(color.Faint)
)

var rootCmd = &cobra.Command{
	Use:   "autoscan",
	Short: "Time-track repair jobs by license plate",
	Long: `autoscan keeps a work log of vehicle repair jobs keyed by license plate.
Jobs are started from a camera photo read by a vision model, or by typing the
plate, and are then paused, resumed and finished while the timer runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $AUTOSCAN_CONFIG or ./config.yaml)")
}

// app bundles what every command needs: config, logger and the loaded store.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	backend kv.Store
	store   *worklog.Store
	loc     *time.Location
}

// openApp loads config, opens the configured backend and loads the store.
// CLI commands log to stderr so stdout stays clean for their output.
func openApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store := worklog.NewStore(backend, logger).WithLocation(loc)
	store.Load()
	return &app{cfg: cfg, log: logger, backend: backend, store: store, loc: loc}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.log.Warn("close storage", "err", err)
	}
}

func openBackend(cfg config.StorageConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "file":
		return kv.NewFileStore(cfg.Path)
	case "sqlite":
		return kv.NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}

func newRecognizer(cfg config.RecognitionConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "mock":
		return mock.New(cfg.Mock), nil
	case "aiproxy":
		return aiproxy.New(cfg.AIProxy), nil
	case "openai":
		return openai.New(cfg.OpenAI), nil
	}
	return nil, fmt.Errorf("unsupported recognition provider %q", cfg.Provider)
}
