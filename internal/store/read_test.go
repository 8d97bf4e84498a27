package store

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/roach88/icrepl/internal/ir"
)

func TestReadMessages_Empty(t *testing.T) {
	s := createTestStore(t)

	msgs, err := s.ReadMessages(context.Background(), "")
	if err != nil {
		t.Fatalf("ReadMessages() failed: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("ReadMessages() = %v, want empty slice", msgs)
	}
}

func TestReadMessages_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	update := createTestUpdate(t, "aaaaa-aa", "d9d9f7", 2)
	query := createTestQuery(t, "d9d9f8", 1)

	if err := s.AppendMessage(ctx, update); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(ctx, query); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.ReadMessages(ctx, s.Session())
	if err != nil {
		t.Fatalf("ReadMessages() failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Seq != 1 || msgs[1].Seq != 2 {
		t.Errorf("messages not ordered by seq: %d, %d", msgs[0].Seq, msgs[1].Seq)
	}
	if !reflect.DeepEqual(msgs[1].Message, update.Message) {
		t.Errorf("update round trip = %+v, want %+v", msgs[1].Message, update.Message)
	}
	if msgs[0].Digest != query.Digest || msgs[0].Session != s.Session() {
		t.Errorf("query row = %+v", msgs[0])
	}
}

func TestReadMessages_FiltersBySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.AppendMessage(ctx, createTestQuery(t, "01", 1)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	last, err := second.LastSeq(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last != 1 {
		t.Errorf("LastSeq() = %d, want 1", last)
	}
	if err := second.AppendMessage(ctx, createTestQuery(t, "02", last+1)); err != nil {
		t.Fatal(err)
	}

	mine, err := second.ReadMessages(ctx, second.Session())
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Seq != 2 {
		t.Errorf("session messages = %+v", mine)
	}
	all, err := second.ReadMessages(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all messages = %d, want 2", len(all))
	}

	sessions, err := second.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[1].ID != second.Session() || sessions[1].FirstSeq != 2 {
		t.Errorf("Sessions() = %+v", sessions)
	}
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)
	seq, err := s.LastSeq(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() = %d, want 0", seq)
	}
}

func TestGetInterface_Missing(t *testing.T) {
	s := createTestStore(t)
	src, ok, err := s.GetInterface(context.Background(), "aaaaa-aa")
	if err != nil || ok || src != "" {
		t.Errorf("GetInterface() = %q, %v, %v", src, ok, err)
	}
}

func TestExportMessages(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.AppendMessage(ctx, createTestQuery(t, "01", 1)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := s.ExportMessages(ctx, &buf, "")
	if err != nil {
		t.Fatalf("ExportMessages() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d messages, want 1", n)
	}
	var msgs []ir.Message
	if err := json.Unmarshal(buf.Bytes(), &msgs); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Ingress.Content != "01" {
		t.Errorf("exported %+v", msgs)
	}
}
