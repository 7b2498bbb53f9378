package doctor

import (
	"context"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/persistence"
	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func newTestDoc(t *testing.T) *store.Doc {
	t.Helper()
	d := store.New("replica-a")
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestRunHealthyReplicaHasNoErrors(t *testing.T) {
	doc := newTestDoc(t)
	sv := settings.New(doc, nil)
	local, err := persistence.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	gw := llm.New(sv)

	report := Run(context.Background(), doc, local, sv, gw, false)
	if !report.Healthy() {
		t.Fatalf("expected healthy report, got %+v", report.Checks)
	}
}

func TestCheckPersistenceNilLocalWarns(t *testing.T) {
	c := checkPersistence(context.Background(), nil)
	if c.Status != StatusWarning {
		t.Fatalf("expected warning for nil local store, got %+v", c)
	}
}

func TestCheckRelayDisabledWhenNoSyncURL(t *testing.T) {
	doc := newTestDoc(t)
	sv := settings.New(doc, nil)
	c := checkRelay(sv, false)
	if c.Status != StatusOK {
		t.Fatalf("expected ok when sync disabled, got %+v", c)
	}
}

func TestCheckRelayWarnsWhenConfiguredButNotConnected(t *testing.T) {
	doc := newTestDoc(t)
	sv := settings.New(doc, nil)
	if err := sv.SetSyncServerURL("ws://localhost:9999"); err != nil {
		t.Fatalf("SetSyncServerURL: %v", err)
	}

	c := checkRelay(sv, false)
	if c.Status != StatusWarning {
		t.Fatalf("expected warning when configured but disconnected, got %+v", c)
	}
}

func TestCheckAIUnavailableWithoutKey(t *testing.T) {
	doc := newTestDoc(t)
	sv := settings.New(doc, nil)
	gw := llm.New(sv)
	c := checkAI(gw)
	if c.Status != StatusWarning {
		t.Fatalf("expected warning when AI unavailable, got %+v", c)
	}
}

func TestCheckAIAvailableWithKeyAndEnabled(t *testing.T) {
	doc := newTestDoc(t)
	sv := settings.New(doc, nil)
	sv.SetAIEnabled(true)
	sv.SetOpenAIAPIKey("sk-test-key")
	gw := llm.New(sv)

	c := checkAI(gw)
	if c.Status != StatusOK {
		t.Fatalf("expected ok when AI available, got %+v", c)
	}
}

func TestCheckChronicleDetectsMissingPart(t *testing.T) {
	doc := newTestDoc(t)
	doc.SetChronicle(types.Chronicle{
		LatestPartIndex: 2,
		Parts: map[int]*types.Part{
			1: {Title: "Part One", Entries: []string{"e-1"}},
		},
	})

	c := checkChronicle(doc)
	if c.Status != StatusError {
		t.Fatalf("expected error for missing part 2, got %+v", c)
	}
}

func TestCheckChronicleOKWhenConsistent(t *testing.T) {
	doc := newTestDoc(t)
	c := checkChronicle(doc)
	if c.Status != StatusOK {
		t.Fatalf("expected ok for an empty, consistent chronicle, got %+v", c)
	}
}
