package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/config"
	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
	"github.com/u4s/turnover-cli/internal/tui"
)

// ErrNotLoggedIn is returned by data commands without a stored session.
var ErrNotLoggedIn = errors.New("сессия не найдена: выполните turnover login")

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(monthlyCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(mcpCmd)

	monthlyCmd.AddCommand(monthlyMetricCmd)
	monthlyCmd.AddCommand(monthlyServiceCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	for _, cmd := range []*cobra.Command{metricsCmd, servicesCmd} {
		cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
		cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
		cmd.Flags().String("preset", "", "Preset range (current_month/previous_month)")
	}
	for _, cmd := range []*cobra.Command{monthlyMetricCmd, monthlyServiceCmd} {
		cmd.Flags().String("range", core.DefaultMonthlyRange, "Monthly range (this_year/last_12_months)")
	}
}

var loginCmd = &cobra.Command{
	Use:   "login [password]",
	Short: "Log in and store the session",
	Long:  "Log in with the dashboard password. Without an argument the password is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session and cached responses",
	Args:  cobra.NoArgs,
	RunE:  handleLogout,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show summary metrics for a date range",
	Args:  cobra.NoArgs,
	RunE:  handleMetrics,
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show revenue by service type for a date range",
	Args:  cobra.NoArgs,
	RunE:  handleServices,
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Show month-by-month series",
}

var monthlyMetricCmd = &cobra.Command{
	Use:   "metric [key]",
	Short: "Monthly series of a summary metric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleMonthly(cmd, dashboard.ContextMetric, args[0])
	},
}

var monthlyServiceCmd = &cobra.Command{
	Use:   "service [service_type]",
	Short: "Monthly series of a service type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleMonthly(cmd, dashboard.ContextService, args[0])
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached response",
	Args:  cobra.NoArgs,
	RunE:  handleCacheClear,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return initConfig(cmd.OutOrStdout(), configPath, force)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive dashboard",
	Args:  cobra.NoArgs,
	RunE:  handleDashboard,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

func handleLogin(cmd *cobra.Command, args []string) error {
	password := ""
	if len(args) == 1 {
		password = args[0]
	} else {
		var err error
		if password, err = readPassword(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.app.Login(cmd.Context(), password); err != nil {
		if api.IsAuthError(err) {
			return errors.New(dashboard.AuthFailureMessage)
		}
		if e.auth.HasValidSession() {
			// Logged in, but the first fetch failed.
			e.logger.Warn("initial fetch failed", "error", err)
		} else {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Вход выполнен.")
	return nil
}

func readPassword(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && f == os.Stdin {
		fmt.Fprint(os.Stderr, "Пароль: ")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func handleLogout(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.app.Logout(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Сессия завершена.")
	return nil
}

func handleMetrics(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()
	return runMetrics(cmd.Context(), e, cmd.OutOrStdout(), rangeFlags(cmd))
}

func handleServices(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()
	return runServices(cmd.Context(), e, cmd.OutOrStdout(), rangeFlags(cmd))
}

func handleMonthly(cmd *cobra.Command, kind dashboard.MonthlyContext, key string) error {
	rng, _ := cmd.Flags().GetString("range")
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()
	focus := dashboard.MonthlyFocus{Context: kind, Key: strings.TrimSpace(key), Range: rng}
	return runMonthly(cmd.Context(), e, cmd.OutOrStdout(), focus)
}

func handleCacheClear(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.cache.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Кеш очищен.")
	return nil
}

// initConfig writes the defaults, with any --api-base, --timezone and
// --date-field overrides, to path.
func initConfig(w io.Writer, path string, force bool) error {
	if path == "" {
		return errors.New("no config path")
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := config.DefaultConfig()
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}
	if timezone != "" {
		cfg.Dashboard.Timezone = timezone
	}
	if dateField != "" {
		cfg.Dashboard.DateField = dateField
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Конфигурация записана: %s\n", path)
	return nil
}

func handleDashboard(cmd *cobra.Command, args []string) error {
	bridge := tui.NewBridge()
	e, err := loadEnv(bridge)
	if err != nil {
		return err
	}
	defer e.Close()
	return tui.Run(cmd.Context(), e.app, bridge, e.render)
}

func handleMCP(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(nil)
	if err != nil {
		return err
	}
	defer e.Close()
	srv := newMCPServer(e, cmd.OutOrStdout())
	return srv.serve(cmd.Context(), cmd.InOrStdin())
}

// rangeSpec is the date filter asked for on the command line.
type rangeSpec struct {
	From   string
	To     string
	Preset dashboard.Preset
}

func rangeFlags(cmd *cobra.Command) rangeSpec {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	preset, _ := cmd.Flags().GetString("preset")
	return rangeSpec{From: from, To: to, Preset: dashboard.Preset(strings.TrimSpace(preset))}
}

// useRange selects spec on app. An empty spec selects the current month.
func useRange(app *dashboard.App, spec rangeSpec) error {
	switch {
	case spec.Preset != dashboard.PresetNone:
		if spec.From != "" || spec.To != "" {
			return errors.New("--preset cannot be combined with --from/--to")
		}
		return app.UsePreset(spec.Preset)
	case spec.From != "" || spec.To != "":
		return app.UseRange(dashboard.Range{From: spec.From, To: spec.To})
	}
	return app.UsePreset(dashboard.PresetCurrentMonth)
}

// requireSession restores the stored session unless one is already live.
func requireSession(e *env) error {
	if e.auth.HasValidSession() {
		return nil
	}
	if !e.app.RestoreSession() {
		return ErrNotLoggedIn
	}
	return nil
}

// loadError turns a fetch outcome into the error a one-shot command reports.
func loadError(status dashboard.Status, err error) error {
	switch {
	case err != nil && api.IsAuthError(err):
		return errors.New(dashboard.AuthFailureMessage)
	case err != nil:
		return err
	case status == dashboard.StatusSkipped:
		return ErrNotLoggedIn
	case !status.Applied():
		return fmt.Errorf("request %s", status)
	}
	return nil
}

func runMetrics(ctx context.Context, e *env, w io.Writer, spec rangeSpec) error {
	if err := requireSession(e); err != nil {
		return err
	}
	if err := useRange(e.app, spec); err != nil {
		return err
	}
	if err := loadError(e.app.FetchRevenue(ctx)); err != nil {
		return err
	}
	m := e.app.Snapshot().Metrics
	return emit(w, raw, m, func() string { return e.render.Metrics(*m, "") })
}

func runServices(ctx context.Context, e *env, w io.Writer, spec rangeSpec) error {
	if err := requireSession(e); err != nil {
		return err
	}
	if err := useRange(e.app, spec); err != nil {
		return err
	}
	if err := loadError(e.app.FetchServices(ctx)); err != nil {
		return err
	}
	s := e.app.Snapshot().Services
	return emit(w, raw, s, func() string { return e.render.Services(*s, "") })
}

func runMonthly(ctx context.Context, e *env, w io.Writer, focus dashboard.MonthlyFocus) error {
	if err := requireSession(e); err != nil {
		return err
	}
	if err := loadError(e.app.OpenMonthly(ctx, focus)); err != nil {
		return err
	}
	series := e.app.Snapshot().Monthly
	metric := ""
	if focus.Context == dashboard.ContextMetric {
		metric = focus.Key
	}
	return emit(w, raw, series, func() string { return e.render.Monthly(*series, metric) })
}
