package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/wm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // overrides database.path
	Config   string // CUE configuration file
	Driver   string // overrides database.driver
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the epmem CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "epmem",
		Short: "Episodic memory engine",
		Long: `Record snapshots of a working-memory graph as episodes and retrieve
them by number or by cue.

The database, driver and tuning come from a CUE configuration file
(--config); --db and --driver override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "CUE configuration file")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (sqlite3|sqlite)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRetrieveCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setupLogging routes slog to w: Debug under --verbose, Warn otherwise.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves --config, then applies --db and --driver.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		var err error
		if cfg, err = config.Load(o.Config); err != nil {
			return config.Config{}, err
		}
	}
	o.override(&cfg)
	return cfg, cfg.Validate()
}

func (o *RootOptions) override(cfg *config.Config) {
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
}

// openEngine builds an engine over an empty working memory and connects it.
func (o *RootOptions) openEngine(ctx context.Context) (*engine.Engine, *wm.Memory, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	slog.Debug("opening database", "path", cfg.Database.Path, "driver", cfg.Database.Driver)

	mem := wm.NewMemory()
	eng, err := engine.New(mem, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	if err := eng.Connect(ctx); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return eng, mem, nil
}

// commandContext is cmd's context, cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
