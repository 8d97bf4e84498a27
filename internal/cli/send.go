package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/ir"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Session string
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send [messages.json]",
		Short: "Send messages signed offline",
		Long: `Submit messages produced by an offline run and print each reply.

The file may hold a single message, a JSON array, or one message per line
as written by --offline. With --session the messages are read from the
database instead.

Examples:
  icrepl send messages.json --replica ic
  icrepl send --db icrepl.db --session 0190f1c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "send the messages of a stored session")

	return cmd
}

func runSend(opts *SendOptions, args []string, cmd *cobra.Command) error {
	if opts.Offline {
		return NewExitError(ExitCommandError, "send needs a replica; drop --offline")
	}
	if (len(args) == 1) == (opts.Session != "") {
		return NewExitError(ExitCommandError, "give either a messages file or --session")
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rt, err := openRuntime(ctx, opts.RootOptions, cmd, ".")
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.Config.Offline {
		return NewExitError(ExitCommandError, "send needs a replica; the config sets offline")
	}

	var data []byte
	if opts.Session != "" {
		if data, err = sessionMessages(ctx, rt, opts.Session); err != nil {
			return err
		}
	} else {
		src, err := readScript(args[0], cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read messages", err)
		}
		if data, err = normalizeMessages([]byte(src)); err != nil {
			return WrapExitError(ExitCommandError, "failed to read messages", err)
		}
	}

	rt.Env.Set("messages", ir.Blob(data))
	v, err := engine.Eval(ctx, rt.Env, ir.Apply("send", ir.Var("messages")))
	if err != nil {
		return scriptError("send failed", err)
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return formatter.Success(EvalResult{Value: ir.Format(v), Type: v.Type().String()})
	}
	return formatter.Success(ir.Format(v))
}

func sessionMessages(ctx context.Context, rt *Runtime, session string) ([]byte, error) {
	if rt.Store == nil {
		return nil, NewExitError(ExitCommandError, "--session needs --db")
	}
	var buf bytes.Buffer
	n, err := rt.Store.ExportMessages(ctx, &buf, session)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read messages", err)
	}
	if n == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("session %s has no messages", session))
	}
	return buf.Bytes(), nil
}

// normalizeMessages turns one-message-per-line output into a JSON array.
// A single object or an array is returned as is.
func normalizeMessages(data []byte) ([]byte, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.New("no messages")
	}
	if strings.HasPrefix(text, "[") {
		return []byte(text), nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 1 {
		return []byte(lines[0]), nil
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "{") {
			return nil, fmt.Errorf("line %d is not a message", i+1)
		}
	}
	return []byte("[" + strings.Join(lines, ",") + "]"), nil
}
