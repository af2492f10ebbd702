/*
main.go - Application entry point

PURPOSE:
  The emissions command serves the HTTP API and runs the same engine
  operations from the shell: CSV import/export, stats and sample loading.

STARTUP SEQUENCE (every command):
  1. Load config (defaults, YAML file, EMISSIONS_* env, flags)
  2. Build the zerolog logger
  3. Open the store selected by database.driver
  4. Wrap it in an emissions.Inventory

PERSISTENT FLAGS:
  --config     YAML config file
  --db         SQLite database path (":memory:" for in-memory)
  --driver     sqlite, postgres or memory
  --log-level  debug, info, warn, error

EXAMPLES:
  # Run the API against a file database
  emissions serve --db ./data/emissions.db

  # Import a spreadsheet export, then print stats for 2020-2023
  emissions import inventory.csv
  emissions stats --from 2020 --to 2023

SEE ALSO:
  - serve.go: HTTP server lifecycle
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/emissions-engine/config"
	"github.com/warp/emissions-engine/emissions"
	"github.com/warp/emissions-engine/emissions/store"
	"github.com/warp/emissions-engine/store/postgres"
	"github.com/warp/emissions-engine/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	dbPath     string
	driver     string
	logLevel   string

	// port is bound by serve only.
	port int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "emissions",
		Short: "Greenhouse gas emissions inventory",
		Long: `Tracks yearly Scope 1, 2 and 3 emissions with their subcategories.
Serves the dashboard API and runs imports, exports and stats from the shell.`,
		Example:      rootCmdExample,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&opts.dbPath, "db", "", `SQLite database path (":memory:" for in-memory)`)
	pf.StringVar(&opts.driver, "driver", "", "database driver: sqlite, postgres or memory")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newStatsCmd(opts),
		newSamplesCmd(opts),
	)
	return cmd
}

const rootCmdExample = `  # Start the API on port 8080 with ./emissions.db
  emissions serve

  # Use an in-memory database preloaded with the demo data
  emissions serve --db ":memory:" --sample default

  # Export every year to a file
  emissions export -o emissions_data.csv`

// =============================================================================
// RUNTIME WIRING
// =============================================================================

// app is the runtime shared by commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	inventory *emissions.Inventory
	close     func() error
}

// loadConfig resolves the configuration and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
		if o.driver == "" {
			cfg.Database.Driver = config.DriverSQLite
		}
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// open loads config, builds the logger and opens the store.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	st, closeFn, err := openStore(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("driver", cfg.Database.Driver).
		Str("path", cfg.Database.Path).
		Msg("store opened")

	return &app{
		cfg:       cfg,
		logger:    logger,
		inventory: emissions.NewInventory(st, emissions.WithLogger(logger)),
		close:     closeFn,
	}, nil
}

// openStore opens the store for the configured driver.
func openStore(ctx context.Context, db config.DatabaseConfig) (emissions.Store, func() error, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch db.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, db.DSN, postgres.Options{ConnectRetries: db.ConnectRetries})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(db.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, s.Close, nil
	}
}
