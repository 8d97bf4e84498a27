package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands. Non-empty flag values
// override the configuration file.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
	Replica string
	PEM     string
	DB      string
	Offline bool
	Output  string

	// Logger is set by the root command before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the icrepl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "icrepl",
		Short: "icrepl - scripting for Internet Computer canisters",
		Long: `Evaluate Candid scripts against a replica: call canisters, check
results with assertions, batch calls in parallel, or sign messages offline
and send them later.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			slog.SetDefault(opts.Logger)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "CUE configuration file or directory")
	cmd.PersistentFlags().StringVarP(&opts.Replica, "replica", "r", "", "replica URL, or local|ic")
	cmd.PersistentFlags().StringVar(&opts.PEM, "pem", "", "Ed25519 identity PEM file (default anonymous)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database for signed messages and fetched interfaces")
	cmd.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "sign calls instead of sending them")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "", "file receiving offline messages (default stdout)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// newLogger writes text records to w: debug and up with --verbose, warnings
// otherwise so that show output stays readable.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or a quiet one when a subcommand
// runs without the root command (as in tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		o.Logger = newLogger(io.Discard, false)
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
