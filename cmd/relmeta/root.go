package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/dialect/sql"
	"github.com/syssam/relmeta/dialect/sql/schema"
	"github.com/syssam/relmeta/internal/config"
	"github.com/syssam/relmeta/load"
	"github.com/syssam/relmeta/metadata"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	cache      relmeta.Cache
	out        io.Writer
	errOut     io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: config.New(), out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "relmeta",
		Short:         "Resolve and verify relational foreign-key metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("dialect", "", "database dialect: postgres, mysql or sqlite")
	flags.String("dsn", "", "database connection string")
	flags.StringSlice("schema", nil, "database schemas to inspect (default: the connection schema)")
	flags.String("format", "", "output format of definitions: yaml or json")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Duration("slow-threshold", 0, "log statements slower than this")
	flags.Bool("cache", true, "reuse inspected snapshots across runs")
	flags.String("cache-dir", "", "snapshot cache directory (default: the user cache directory)")
	for key, flag := range map[string]string{
		config.KeyDialect:       "dialect",
		config.KeyDSN:           "dsn",
		config.KeySchemas:       "schema",
		config.KeyFormat:        "format",
		config.KeyLogLevel:      "log-level",
		config.KeySlowThreshold: "slow-threshold",
		config.KeyCache:         "cache",
		config.KeyCacheDir:      "cache-dir",
	} {
		// Lookup never fails for the flags declared above.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.checkCmd(),
		a.overlapCmd(),
		a.inspectCmd(),
		a.diffCmd(),
		a.applyCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if cfg.Cache {
		c, err := relmeta.NewFileCache(cfg.CacheDir)
		if err != nil {
			return err
		}
		a.cache = c
	}
	return nil
}

// loadModel reads and builds a definition file.
func (a *app) loadModel(path string) (*metadata.Model, error) {
	def, err := load.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// open connects to the configured database with statement statistics.
func (a *app) open(cmd *cobra.Command) (*sql.Driver, error) {
	if a.cfg.DSN == "" {
		return nil, fmt.Errorf("no database: set --dsn or %s_DSN", config.EnvPrefix)
	}
	drv, err := sql.Open(a.cfg.Dialect, a.cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := drv.Ping(cmd.Context()); err != nil {
		drv.Close()
		return nil, err
	}
	return drv.WithStats(
		sql.WithSlowThreshold(a.cfg.SlowThreshold),
		sql.WithSlowQueryLog(a.logger),
	), nil
}

func (a *app) inspector(drv *sql.Driver) (*schema.Inspector, error) {
	opts := []schema.InspectOption{
		schema.WithSchemas(a.cfg.Schemas...),
		schema.WithLogger(a.logger),
	}
	if a.cache != nil {
		opts = append(opts, schema.WithCache(a.cache, a.cfg.Source(), a.cfg.CacheTTL))
	}
	return schema.NewInspector(drv, opts...)
}

// close closes the driver and logs its statement statistics.
func (a *app) close(cmd *cobra.Command, drv *sql.Driver) {
	if s := drv.QueryStats(); s != nil {
		a.logger.DebugContext(cmd.Context(), "query stats", "stats", s.Stats())
	}
	if err := drv.Close(); err != nil {
		a.logger.WarnContext(cmd.Context(), "closing database", "error", err)
	}
}
