package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestQuery creates a logged query message with the given content.
func createTestQuery(t *testing.T, content string, seq int64) engine.LoggedMessage {
	t.Helper()
	m := ir.Message{Ingress: ir.Ingress{CallType: ir.CallTypeQuery, Content: content}}
	return logged(t, m, seq)
}

// createTestUpdate creates a logged update message for canister.
func createTestUpdate(t *testing.T, canister, content string, seq int64) engine.LoggedMessage {
	t.Helper()
	id := strings.Repeat("ab", 32)
	m := ir.Message{
		Ingress: ir.Ingress{CallType: ir.CallTypeUpdate, RequestID: &id, Content: content},
		RequestStatus: &ir.RequestStatus{
			CanisterID: canister,
			RequestID:  id,
			Content:    content + "00",
		},
	}
	return logged(t, m, seq)
}

func logged(t *testing.T, m ir.Message, seq int64) engine.LoggedMessage {
	t.Helper()
	digest, err := ir.MessageDigest(m)
	if err != nil {
		t.Fatalf("MessageDigest() failed: %v", err)
	}
	return engine.LoggedMessage{Seq: seq, Digest: digest, Message: m}
}
