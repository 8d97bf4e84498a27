package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/icrepl/internal/engine"
)

// StoredMessage is a persisted signed message.
type StoredMessage struct {
	engine.LoggedMessage
	Session string
}

// SessionSummary describes the messages of one session.
type SessionSummary struct {
	ID       string
	Messages int
	FirstSeq int64
	LastSeq  int64
}

// ReadMessages returns the messages of a session, or of all sessions when
// session is empty, ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadMessages(ctx context.Context, session string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT digest, session, seq, message
		FROM messages
		WHERE ? = '' OR session = ?
		ORDER BY seq ASC
	`, session, session)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []StoredMessage{}
	for rows.Next() {
		var m StoredMessage
		var body string
		if err := rows.Scan(&m.Digest, &m.Session, &m.Seq, &body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Message, err = unmarshalMessage(body); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// Sessions lists sessions that signed messages, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, COUNT(*), MIN(seq), MAX(seq)
		FROM messages
		GROUP BY session
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Messages, &sum.FirstSeq, &sum.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest stored seq, or 0 for an empty log. A new
// session's clock resumes after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// GetInterface returns the stored Candid source of a canister.
func (s *Store) GetInterface(ctx context.Context, id string) (string, bool, error) {
	var source string
	err := s.db.QueryRowContext(ctx, `SELECT source FROM interfaces WHERE canister_id = ?`, id).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get interface: %w", err)
	}
	return source, true, nil
}
