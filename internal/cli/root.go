package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/litequery/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose         bool
	Format          string // "json" | "text"
	Database        string
	Models          string
	CaseInsensitive bool
	NoColor         bool

	// Config is resolved before any subcommand runs.
	Config *config.Config
	Logger *slog.Logger

	loaderOpts []config.LoaderOption
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the litequery CLI.
// loaderOpts are passed to the config loader; tests use them to isolate
// the working and home directories.
func NewRootCommand(loaderOpts ...config.LoaderOption) *cobra.Command {
	opts := &RootOptions{loaderOpts: loaderOpts}

	cmd := &cobra.Command{
		Use:   "litequery",
		Short: "litequery - stage-three queries on SQLite",
		Long: `Run normalized stage-three queries against a SQLite database.

Models are loaded from CUE or YAML files; queries are compiled to
parameterized SQL, executed on a single connection and returned as
logical records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.NoColor {
				color.NoColor = true
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.PersistentFlags().StringVar(&opts.Models, "models", "", "model file or directory (default from config)")
	cmd.PersistentFlags().BoolVar(&opts.CaseInsensitive, "case-insensitive", false, "case-insensitive pattern matching for models that do not declare it")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	// Add subcommands
	cmd.AddCommand(NewDefineCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// resolve loads the config, applying explicitly set flags over it, and
// configures logging.
func (opts *RootOptions) resolve(cmd *cobra.Command) error {
	loader := config.NewLoader(opts.loaderOpts...)
	flags := cmd.Flags()
	if flags.Changed("db") {
		loader.Set(config.KeyDatabase, opts.Database)
	}
	if flags.Changed("models") {
		loader.Set(config.KeyModels, opts.Models)
	}
	if flags.Changed("case-insensitive") {
		loader.Set(config.KeyCaseInsensitive, opts.CaseInsensitive)
	}

	cfg, err := loader.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	opts.Config = cfg

	level := cfg.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		opts.Logger.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
