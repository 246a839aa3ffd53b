/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the compliance engine. Loads configuration,
  selects the store, and either serves the HTTP API or runs one-off
  operations against the configured database.

COMMANDS:
  serve              Start the HTTP server (default when no command is given)
  seed               Create the reference routes and baseline
  calc SHIP YEAR     Print the compliance and adjusted balance of a ship-year
  migrate            Apply the SQL schema and exit

FLAGS (all commands):
  --config     YAML config file (defaults apply when omitted)
  --port       HTTP server port
  --db-driver  sqlite, postgres or memory
  --dsn        Database DSN, ":memory:" for an in-memory SQLite database
  --seed       Seed the reference routes on startup
  --log-level  debug, info, warn, error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the balance warmer
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --dsn ./data/compliance.db --seed

  # Run against Postgres
  ./server serve --db-driver postgres --dsn postgres://fueleu@localhost/fueleu

  # One-off balance
  ./server calc R002 2024 --db-driver memory --seed

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration file format
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/compliance-engine/api"
	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/compliance/store"
	"github.com/warp/compliance-engine/config"
	"github.com/warp/compliance-engine/logging"
	"github.com/warp/compliance-engine/store/sqlstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	port       int
	driver     string
	dsn        string
	seed       bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "server",
		Short:        "GHG compliance balance, banking and pooling engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.IntVar(&opts.port, "port", 0, "HTTP server port")
	flags.StringVar(&opts.driver, "db-driver", "", "database driver: sqlite, postgres or memory")
	flags.StringVar(&opts.dsn, "dsn", "", "database DSN")
	flags.BoolVar(&opts.seed, "seed", false, "seed the reference routes")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the reference routes and baseline",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSeed(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "calc SHIP YEAR",
			Short: "Print the compliance and adjusted balance of a ship-year",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCalc(cmd, opts, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the SQL schema and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, opts)
			},
		},
	)
	return root
}

// =============================================================================
// SETUP
// =============================================================================

// loadConfig reads the config file, if any, then applies flags that were set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadUnchecked(opts.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = opts.driver
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = opts.dsn
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore returns the configured store and its close function.
func openStore(cfg *config.Config) (compliance.Store, func() error, error) {
	var driver string
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.DriverSQLite:
		driver = sqlstore.DriverSQLite
	case config.DriverPostgres:
		driver = sqlstore.DriverPostgres
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	st, err := sqlstore.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	handler *api.Handler
	close   func() error
}

// setup loads config, opens the store and wires the handler. seed forces
// seeding regardless of the config.
func setup(cmd *cobra.Command, opts *options, seed bool) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	cfg.Seed = cfg.Seed || seed
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	logger.Info().
		Str("driver", cfg.Database.Driver).
		Str("target_intensity", cfg.Compliance.TargetIntensity.String()).
		Msg("store ready")

	h := api.NewHandler(st, cfg.Settings(), logger)
	if cfg.Seed {
		if err := api.SeedReferenceRoutes(cmd.Context(), h.Catalog); err != nil {
			closeStore()
			return nil, fmt.Errorf("seed reference routes: %w", err)
		}
		logger.Info().Msg("reference routes seeded")
	}
	return &app{cfg: cfg, logger: logger, handler: h, close: closeStore}, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func runServe(cmd *cobra.Command, opts *options) error {
	a, err := setup(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.close()

	warmer := api.NewBalanceWarmer(a.handler.Catalog, a.handler.Engine, a.logger)
	warmer.Enabled = a.cfg.Warmer.Enabled
	warmer.Interval = a.cfg.Warmer.Interval
	warmer.Start()
	defer warmer.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      api.NewRouter(a.handler, a.cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().Int("port", a.cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

func runSeed(cmd *cobra.Command, opts *options) error {
	a, err := setup(cmd, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	routes, err := a.handler.Catalog.ListRoutes(cmd.Context(), compliance.RouteFilter{})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d routes in store\n", len(routes))
	return nil
}

// calcOutput is printed by the calc command.
type calcOutput struct {
	ShipID              string `json:"shipId"`
	Year                int    `json:"year"`
	CBGco2eq            string `json:"cbGco2eq"`
	BankedFromPriorYear string `json:"bankedFromPriorYear"`
	AdjustedCBGco2eq    string `json:"adjustedCbGco2eq"`
}

func runCalc(cmd *cobra.Command, opts *options, ship, rawYear string) error {
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return fmt.Errorf("invalid year %q: %w", rawYear, err)
	}
	a, err := setup(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.close()

	adj, err := a.handler.Engine.GetAdjustedComplianceBalance(cmd.Context(), compliance.ShipID(ship), year)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(calcOutput{
		ShipID:              ship,
		Year:                year,
		CBGco2eq:            adj.Base.StringFixed(2),
		BankedFromPriorYear: adj.BankedFromPriorYear.StringFixed(2),
		AdjustedCBGco2eq:    adj.CBGco2eq.StringFixed(2),
	})
}

func runMigrate(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	_, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Driver)
	return closeStore()
}
