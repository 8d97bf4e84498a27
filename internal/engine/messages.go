package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/ir"
)

// MessageStore persists signed messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, m LoggedMessage) error
}

// LoggedMessage is a signed message with its position in the log.
type LoggedMessage struct {
	Seq     int64
	Digest  string
	Message ir.Message
}

// MessageLog is the append-only record of messages signed in offline mode.
// It is written only from the evaluation goroutine.
type MessageLog struct {
	clock   *Clock
	entries []LoggedMessage
	sink    io.Writer
	store   MessageStore
}

// Append stamps m, records it and flushes it to the sink and store.
func (l *MessageLog) Append(ctx context.Context, m ir.Message) (LoggedMessage, error) {
	digest, err := ir.MessageDigest(m)
	if err != nil {
		return LoggedMessage{}, err
	}
	entry := LoggedMessage{Seq: l.clock.Next(), Digest: digest, Message: m}
	l.entries = append(l.entries, entry)
	if l.sink != nil {
		line, err := json.Marshal(m)
		if err != nil {
			return entry, err
		}
		if _, err := fmt.Fprintf(l.sink, "%s\n", line); err != nil {
			return entry, fmt.Errorf("write message: %w", err)
		}
	}
	if l.store != nil {
		if err := l.store.AppendMessage(ctx, entry); err != nil {
			return entry, fmt.Errorf("persist message: %w", err)
		}
	}
	return entry, nil
}

// Entries returns a copy of the log.
func (l *MessageLog) Entries() []LoggedMessage {
	out := make([]LoggedMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// queryMessage wraps a signed query.
func queryMessage(signed agent.Signed) ir.Message {
	return ir.Message{Ingress: ir.Ingress{
		CallType: ir.CallTypeQuery,
		Content:  hex.EncodeToString(signed.Envelope),
	}}
}

// updateMessage pairs a signed update with its signed status poll.
func updateMessage(signed, status agent.Signed, effective ir.Principal) ir.Message {
	id := signed.RequestID.String()
	return ir.Message{
		Ingress: ir.Ingress{
			CallType:  ir.CallTypeUpdate,
			RequestID: &id,
			Content:   hex.EncodeToString(signed.Envelope),
		},
		RequestStatus: &ir.RequestStatus{
			CanisterID: effective.String(),
			RequestID:  id,
			Content:    hex.EncodeToString(status.Envelope),
		},
	}
}
