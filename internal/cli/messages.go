package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/store"
)

// MessagesOptions holds flags for the messages command.
type MessagesOptions struct {
	*RootOptions
	Export string
}

// MessageRow is one stored message as listed by the messages command.
type MessageRow struct {
	Seq       int64  `json:"seq"`
	Session   string `json:"session"`
	CallType  string `json:"call_type"`
	Canister  string `json:"canister,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Digest    string `json:"digest"`
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "messages [session]",
		Short: "Inspect the stored message log",
		Long: `List the sessions that signed messages, or the messages of one session.

With --export the messages are written as a JSON array that send accepts.

Examples:
  icrepl messages --db icrepl.db
  icrepl messages --db icrepl.db 0190f1c4-...
  icrepl messages --db icrepl.db 0190f1c4-... --export batch.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			return runMessages(opts, session, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Export, "export", "", "write the messages to a JSON file")

	return cmd
}

func runMessages(opts *MessagesOptions, session string, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.DB == "" {
		return NewExitError(ExitCommandError, "messages needs --db or a config with db")
	}
	if _, err := os.Stat(cfg.DB); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if opts.Export != "" {
		f, err := os.Create(opts.Export)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create export file", err)
		}
		n, err := st.ExportMessages(ctx, f, session)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to export messages", err)
		}
		formatter := &OutputFormatter{Format: opts.Format, Writer: w}
		if opts.Format == "json" {
			return formatter.Success(map[string]any{"exported": n, "path": opts.Export})
		}
		return formatter.Success(fmt.Sprintf("exported %d message(s) to %s", n, opts.Export))
	}

	if session == "" {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list sessions", err)
		}
		if opts.Format == "json" {
			return encodeJSON(cmd, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No messages stored.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tMESSAGES\tSEQ")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%d\t%d-%d\n", s.ID, s.Messages, s.FirstSeq, s.LastSeq)
		}
		return tw.Flush()
	}

	stored, err := st.ReadMessages(ctx, session)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read messages", err)
	}
	if len(stored) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("session %s has no messages", session))
	}
	rows := make([]MessageRow, len(stored))
	for i, m := range stored {
		rows[i] = MessageRow{
			Seq:      m.Seq,
			Session:  m.Session,
			CallType: string(m.Message.Ingress.CallType),
			Digest:   m.Digest,
		}
		if m.Message.Ingress.RequestID != nil {
			rows[i].RequestID = *m.Message.Ingress.RequestID
		}
		if m.Message.RequestStatus != nil {
			rows[i].Canister = m.Message.RequestStatus.CanisterID
		}
	}
	if opts.Format == "json" {
		return encodeJSON(cmd, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tCANISTER\tDIGEST")
	for _, r := range rows {
		canister := r.Canister
		if canister == "" {
			canister = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Seq, r.CallType, canister, r.Digest)
	}
	return tw.Flush()
}

func encodeJSON(cmd *cobra.Command, data any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}
