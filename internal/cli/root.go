package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/amlkernel/internal/config"
)

// RootOptions holds global flags and the resolved configuration shared by
// all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	LogLevel   string

	// Config is resolved in PersistentPreRunE. Commands constructed
	// directly (tests) fall back to defaults, see settings.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the amlk CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "amlk",
		Short: "amlk - AML class library kernel",
		Long: `Transactional editing of AML class libraries.

Runs scripted scenarios against the mutation kernel, checks CUE
validation policies and inspects change journals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration error", err)
			}
			if opts.Verbose && !cmd.Flags().Changed("log-level") {
				cfg.LogLevel = "debug"
			}
			opts.Config = cfg
			opts.Format = cfg.Format
			opts.Logger = cfg.Logger(cmd.ErrOrStderr())
			opts.Logger.Debug("configuration loaded", "file", cfg.File, "format", cfg.Format)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default amlk.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

// settings returns the resolved configuration, or defaults when the root
// pre-run did not execute.
func (o *RootOptions) settings() *config.Config {
	if o.Config != nil {
		return o.Config
	}
	format := o.Format
	if format == "" {
		format = config.DefaultFormat
	}
	return &config.Config{
		LogLevel:  config.DefaultLogLevel,
		LogFormat: config.DefaultLogFormat,
		Format:    format,
		IDPrefix:  config.DefaultIDPrefix,
	}
}

// logger returns the configured logger, or one that discards.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
