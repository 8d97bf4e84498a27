package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/ir"
)

// EvalResult is the JSON payload of the eval command.
type EvalResult struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate one expression",
		Long: `Evaluate a single expression and print its Candid text.

Examples:
  icrepl eval 'add(1, 2)'
  icrepl eval 'call "aaaaa-aa".raw_rand()' --replica ic
  icrepl eval 'account(principal "aaaaa-aa")' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runEval(opts *RootOptions, src string, cmd *cobra.Command) error {
	exp, err := compiler.ParseScriptExp(src)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse expression", err)
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	rt, err := openRuntime(ctx, opts, cmd, ".")
	if err != nil {
		return err
	}
	defer rt.Close()

	v, err := engine.Eval(ctx, rt.Env, exp)
	if err != nil {
		return scriptError("evaluation failed", err)
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return formatter.Success(EvalResult{Value: ir.Format(v), Type: v.Type().String()})
	}
	return formatter.Success(ir.Format(v))
}
