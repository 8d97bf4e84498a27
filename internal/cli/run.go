package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// RunSummary is the JSON payload of a finished run.
type RunSummary struct {
	Script     string `json:"script"`
	Statements int    `json:"statements"`
	Messages   int    `json:"messages"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script",
		Long: `Run a script file against the configured replica. Use - to read the
script from stdin.

Files named by the script (file, wasm_profiling) are resolved against the
script's directory; files it writes (output, export, flamegraph) against
the working directory.

Exit codes:
  0 - Script completed
  1 - Script failed (assertion, rejected call, etc.)
  2 - Command error (bad config, unreadable script, parse error)

Examples:
  icrepl run deploy.sh
  icrepl run --replica ic --pem alice.pem transfer.sh
  icrepl run --offline -o messages.json --db icrepl.db transfer.sh`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	return cmd
}

func runScript(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger()
	src, err := readScript(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	stmts, err := compiler.ParseScript(src)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse script", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rt, err := openRuntime(ctx, opts.RootOptions, cmd, scriptDir(path))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	logger.Debug("running script", "path", path, "statements", len(stmts))
	if err := engine.RunAll(ctx, rt.Env, stmts); err != nil {
		return scriptError("script failed", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(RunSummary{
			Script:     path,
			Statements: len(stmts),
			Messages:   len(rt.Session.Messages()),
		})
	}
	return nil
}

func readScript(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return string(data), nil
}
