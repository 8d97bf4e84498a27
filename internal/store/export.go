package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/icrepl/internal/ir"
)

// ExportMessages writes the messages of a session (all sessions when
// session is empty) as a JSON array that the send builtin accepts.
func (s *Store) ExportMessages(ctx context.Context, w io.Writer, session string) (int, error) {
	stored, err := s.ReadMessages(ctx, session)
	if err != nil {
		return 0, err
	}
	msgs := make([]ir.Message, len(stored))
	for i, m := range stored {
		msgs[i] = m.Message
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(msgs); err != nil {
		return 0, fmt.Errorf("export messages: %w", err)
	}
	return len(msgs), nil
}
