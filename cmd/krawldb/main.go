// Package main is the krawldb command line tool.
//
// krawldb stores a dictionary of words in a single JSON file and lets you
// edit it with one-shot commands or an interactive shell. Settings are read
// from krawldb.yaml in the data directory and can be overridden with flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/maruel/krawldb/internal/config"
	"github.com/maruel/krawldb/internal/jsondb"
	"github.com/maruel/krawldb/internal/models"
	"github.com/maruel/krawldb/internal/storage"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "krawldb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	a := &app{logOut: os.Stderr}
	return a.execute(ctx, newRootCmd(a))
}

// app holds the state shared by the commands of one invocation.
type app struct {
	// Flags.
	cfgPath  string
	dataDir  string
	dbName   string
	logLevel string
	codec    string
	metrics  bool

	logOut   io.Writer
	level    slog.LevelVar
	cfgFile  string
	cfg      *config.Config
	prom     *prometheus.Registry
	registry *jsondb.Registry
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "krawldb",
		Short:         "Edit a dictionary stored as a single JSON file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.OutOrStdout())
		},
	}
	d := config.Default()
	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "Configuration file (default <data-dir>/"+config.FileName+")")
	f.StringVar(&a.dataDir, "data-dir", d.DataDir, "Data directory")
	f.StringVar(&a.dbName, "db", d.Database, "Database name")
	f.StringVar(&a.logLevel, "log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&a.codec, "codec", d.Codec, "Record codec (json, go-json)")
	f.BoolVar(&a.metrics, "metrics", false, "Print queue metrics in Prometheus text format on exit")
	root.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
		newFindCmd(a),
		newNamesCmd(a),
		newWatchCmd(a),
		newShellCmd(a),
		newSchemaCmd(a),
		newConfigCmd(a),
	)
	return root
}

// execute runs root. The registry is closed even when the command failed.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if a.registry != nil {
		err = errors.Join(err, a.registry.Close())
		a.registry = nil
	}
	return err
}

// setup loads the configuration, installs the logger and creates the
// registry. Flags explicitly set win over the configuration file.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path := a.cfgPath
	if path == "" {
		path = filepath.Join(a.dataDir, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = a.dataDir
	}
	if flags.Changed("db") {
		cfg.Database = a.dbName
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("codec") {
		cfg.Codec = a.codec
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfgFile = path
	a.cfg = cfg

	logger := a.initLogger()
	slog.SetDefault(logger)

	loc, err := storage.NewLocation(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize data directory: %w", err)
	}
	a.prom = prometheus.NewRegistry()
	a.registry, err = jsondb.NewRegistry(loc,
		jsondb.WithWorkers(cfg.Workers),
		jsondb.WithRegistryLogger(logger),
		jsondb.WithRegisterer(a.prom))
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	slog.Debug("Configuration loaded", "path", path, "data_dir", cfg.DataDir, "db", cfg.Database, "codec", cfg.Codec)
	return nil
}

// teardown waits for queued mutations and prints metrics if requested.
func (a *app) teardown(w io.Writer) error {
	if a.registry == nil {
		return nil
	}
	err := a.registry.Close()
	a.registry = nil
	if err != nil {
		return err
	}
	if !a.metrics {
		return nil
	}
	mfs, err := a.prom.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}

// open returns the configured database.
func (a *app) open() (*jsondb.Database[models.Word], error) {
	codec, err := jsondb.CodecByName[models.Word](a.cfg.Codec)
	if err != nil {
		return nil, err
	}
	return jsondb.Open(a.registry, a.cfg.Database, codec)
}

func (a *app) initLogger() *slog.Logger {
	switch a.cfg.LogLevel {
	case "debug":
		a.level.Set(slog.LevelDebug)
	case "warn":
		a.level.Set(slog.LevelWarn)
	case "error":
		a.level.Set(slog.LevelError)
	default:
		a.level.Set(slog.LevelInfo)
	}
	noColor := true
	if f, ok := a.logOut.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		a.logOut = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(a.logOut, &tint.Options{
		Level:      &a.level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			// Drop empty values.
			switch t := attr.Value.Any().(type) {
			case string:
				if t == "" {
					return slog.Attr{}
				}
			case time.Duration:
				if t == 0 {
					return slog.Attr{}
				}
			}
			return attr
		},
	}))
}
