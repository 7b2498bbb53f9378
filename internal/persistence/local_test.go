package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func TestLoadOnMissingLogReturnsEmpty(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ops, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected empty log, got %d ops", len(ops))
	}
}

func TestAppendThenLoadRoundTrip(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	ops := []store.Op{
		{ReplicaID: "replica-a", Counter: 1, Kind: store.OpAppendEntry, Key: "e-1",
			Payload: types.Entry{ID: "e-1", Content: "first", Timestamp: 1}},
	}
	if err := l.Append(context.Background(), ops); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Key != "e-1" {
		t.Fatalf("unexpected ops after reload: %+v", got)
	}
}

func TestAppendEmptyBatchIsNoOp(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Append(context.Background(), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "journal.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no log file to be created for an empty append")
	}
}

func TestHydrateMergesIntoDoc(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	writer := store.New("replica-a")
	if err := writer.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer writer.Close()
	writer.SetCharacterField("name", "Elowen")
	if err := l.Append(context.Background(), writer.Log()); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reader := store.New("replica-b")
	if err := reader.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer reader.Close()
	if err := l.Hydrate(context.Background(), reader); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	if got := reader.GetCharacter()["name"]; got != "Elowen" {
		t.Fatalf("expected hydrated character field, got %q", got)
	}
}

func TestLoadRecoversFromTornTrailingLine(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	good := `{"replica_id":"replica-a","counter":1,"kind":0,"key":"name","payload":{"Field":"name","Value":"Elowen"}}` + "\n"
	torn := `{"replica_id":"replica-a","counter":2,"ke` // truncated mid-write
	if err := os.WriteFile(filepath.Join(dir, "journal.jsonl"), []byte(good+torn), 0o644); err != nil {
		t.Fatalf("write test log: %v", err)
	}

	ops, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected recovery to keep the one valid prefix line, got %d ops", len(ops))
	}
}
