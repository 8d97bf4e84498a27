package store

import (
	"context"
	"fmt"

	"github.com/roach88/icrepl/internal/engine"
)

// AppendMessage records a signed message under the store's session.
// Uses ON CONFLICT(digest) DO NOTHING for idempotency - a message signed
// twice with identical content is stored once.
func (s *Store) AppendMessage(ctx context.Context, m engine.LoggedMessage) error {
	body, err := marshalMessage(m.Message)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	var canisterID, requestID *string
	if m.Message.RequestStatus != nil {
		canisterID = &m.Message.RequestStatus.CanisterID
	}
	if m.Message.Ingress.RequestID != nil {
		requestID = m.Message.Ingress.RequestID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
		(digest, session, seq, call_type, canister_id, request_id, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`,
		m.Digest,
		s.session,
		m.Seq,
		m.Message.Ingress.CallType,
		canisterID,
		requestID,
		body,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// PutInterface stores the Candid source of a canister, keyed by principal
// text, replacing any previous version.
func (s *Store) PutInterface(ctx context.Context, id, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interfaces (canister_id, source, hash)
		VALUES (?, ?, ?)
		ON CONFLICT(canister_id) DO UPDATE SET
			source = excluded.source,
			hash = excluded.hash,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE interfaces.hash != excluded.hash
	`, id, source, sourceHash(source))
	if err != nil {
		return fmt.Errorf("put interface: %w", err)
	}
	return nil
}

// DeleteInterface forgets the stored interface of a canister.
func (s *Store) DeleteInterface(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM interfaces WHERE canister_id = ?`, id); err != nil {
		return fmt.Errorf("delete interface: %w", err)
	}
	return nil
}
