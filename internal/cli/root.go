// Package cli implements the command-line interface for the turnover dashboard.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/auth"
	"github.com/u4s/turnover-cli/internal/cache"
	"github.com/u4s/turnover-cli/internal/config"
	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
	"github.com/u4s/turnover-cli/internal/format"
	"github.com/u4s/turnover-cli/internal/output"
)

// Global flags
var (
	verbose    bool
	raw        bool
	configPath string
	apiBase    string
	timezone   string
	dateField  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "turnover",
	Short:   "Turnover CLI – revenue and services dashboard",
	Long:    `A command-line client for the turnover metrics API: summary metrics, services breakdown and monthly drill-downs.`,
	Version: core.Version,
	// Errors are printed once by Execute.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Emit raw JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", fmt.Sprintf("API base URL (default: %s)", core.DefaultAPIBase))
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", "Timezone for presets and range checks (default: local)")
	rootCmd.PersistentFlags().StringVar(&dateField, "date-field", "", "Date field to filter on (created/checkin)")
}

// env is everything a command needs, built from config and flags.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	api    *api.TurnoverAPI
	auth   *auth.Manager
	cache  *cache.Manager
	app    *dashboard.App
	render *output.Renderer
}

// loadEnv reads the config file, applies flag overrides and wires the
// dashboard against the real API.
func loadEnv(observer dashboard.Observer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}
	if timezone != "" {
		cfg.Dashboard.Timezone = timezone
	}
	if dateField != "" {
		cfg.Dashboard.DateField = dateField
	}
	if verbose {
		cfg.Log.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := core.NewLogger(os.Stderr, cfg.Log.Verbose, cfg.Log.Format)
	backend, err := cache.NewBackend(cfg.Cache)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	store := auth.NewFileStore(cfg.Session.Path)
	logger.Debug("session store", "path", store.Path(), "cache_backend", cfg.Cache.Backend)
	return newEnv(cfg, client, store, backend, logger, observer), nil
}

// newEnv wires an env from its parts.
func newEnv(cfg config.Config, transport api.Transport, store auth.Store, backend cache.Backend, logger *slog.Logger, observer dashboard.Observer) *env {
	turnover := api.NewTurnoverAPI(transport, cfg.Dashboard.DateField, logger)
	sessions := auth.NewManager(turnover, store, nil, logger)
	cm := cache.NewManager(backend, logger)
	loc, err := core.GetTZ(cfg.Dashboard.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using local time", "error", err)
	}
	app := dashboard.New(dashboard.Options{
		API:      turnover,
		Auth:     sessions,
		Cache:    cm,
		Observer: observer,
		Location: loc,
		Debounce: cfg.Dashboard.Debounce,
		Logger:   logger,
	})
	return &env{
		cfg:    cfg,
		logger: logger,
		api:    turnover,
		auth:   sessions,
		cache:  cm,
		app:    app,
		render: output.NewRenderer(format.New(cfg.Dashboard.Locale)),
	}
}

func (e *env) Close() {
	e.app.Close()
}

// emit writes v as JSON when asRaw is set and the rendered text otherwise.
func emit(w io.Writer, asRaw bool, v any, text func() string) error {
	if asRaw {
		return output.PrintJSON(w, v)
	}
	_, err := io.WriteString(w, text())
	return err
}
