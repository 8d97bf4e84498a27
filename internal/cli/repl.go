package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/ir"
)

const (
	historyFile = ".icrepl_history"
	promptMain  = "> "
	promptCont  = ". "
)

// lineReader is the part of *liner.State the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Read statements interactively. A statement spanning several lines is
continued until it parses. Ctrl-C discards the current input, Ctrl-D or
:quit exits.

Commands:
  :quit   exit
  :vars   list bound variables`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(rootOpts, cmd)
		},
	}
	return cmd
}

func runRepl(opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	rt, err := openRuntime(ctx, opts, cmd, ".")
	if err != nil {
		return err
	}
	defer rt.Close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "icrepl connected to %s as %s\n", rt.Agent.URL(), rt.Agent.Signer().Sender())
	return repl(ctx, rt.Env, ln, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// repl evaluates statements read from ln until end of input or :quit.
// Evaluation errors are printed and the session continues.
func repl(ctx context.Context, env *engine.Env, ln lineReader, out, errOut io.Writer) error {
	for {
		src, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Fprintln(out)
			return nil
		}
		code := strings.TrimSpace(src)
		if code == "" {
			continue
		}
		if strings.HasPrefix(code, ":") {
			switch strings.ToLower(code) {
			case ":quit", ":q":
				return nil
			case ":vars":
				for _, name := range env.Names() {
					v, _ := env.Get(name)
					fmt.Fprintf(out, "%s = %s\n", name, ir.Format(v))
				}
			default:
				fmt.Fprintln(out, "unknown command. Type :quit to exit.")
			}
			continue
		}

		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		stmts, err := compiler.ParseScript(src)
		if err != nil {
			fmt.Fprintln(errOut, err)
			continue
		}
		if err := engine.RunAll(ctx, env, stmts); err != nil {
			fmt.Fprintln(errOut, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// readByParseProbe reads lines until the accumulated input parses or fails
// for a reason other than running out of input. It reports false at end of
// input. An aborted prompt yields empty input.
func readByParseProbe(ln lineReader, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = cont
		}
		line, err := ln.Prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := compiler.ParseScript(src); compiler.IsIncomplete(err) {
			continue
		}
		return src, true
	}
}
