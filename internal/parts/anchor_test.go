package parts

import (
	"context"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func newTestAnchor(t *testing.T) (*Anchor, *store.Doc) {
	t.Helper()
	e, d := newTestEngine(t)
	sv := settings.New(d, nil)
	a := NewAnchor(e, sv, nil)
	return a, d
}

func TestCatchUpNoGatewayIsNoOp(t *testing.T) {
	a, d := newTestAnchor(t)
	appendEntries(d, AnchorThreshold+1)

	if err := a.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	sv := settings.New(d, nil)
	if sv.LatestAnchorSeq() != 0 {
		t.Fatalf("expected anchor seq untouched without a gateway, got %d", sv.LatestAnchorSeq())
	}
}

func TestCatchUpSeesRealSeqFromStoreAppends(t *testing.T) {
	a, d := newTestAnchor(t)
	appendEntries(d, AnchorThreshold+5)

	entries := a.engine.CanonicalOrder()
	if got := maxSeq(entries); got != int64(AnchorThreshold+5) {
		t.Fatalf("maxSeq() = %d, want %d — Seq must be assigned by the store on append, not left nil", got, AnchorThreshold+5)
	}
	beyond := entriesBeyondSeq(entries, 0)
	if len(beyond) != AnchorThreshold+5 {
		t.Fatalf("expected all %d entries beyond seq 0, got %d", AnchorThreshold+5, len(beyond))
	}
}

func TestCatchUpEmptyJournalIsNoOp(t *testing.T) {
	a, _ := newTestAnchor(t)
	if err := a.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
}

func seqEntry(id string, seq int64) types.Entry {
	return types.Entry{ID: id, Seq: &seq}
}

func TestMaxSeqIgnoresEntriesWithoutSeq(t *testing.T) {
	entries := []types.Entry{
		seqEntry("e-1", 1),
		{ID: "e-no-seq"},
		seqEntry("e-2", 5),
	}
	if got := maxSeq(entries); got != 5 {
		t.Fatalf("maxSeq() = %d, want 5", got)
	}
}

func TestMaxSeqEmptySliceIsZero(t *testing.T) {
	if got := maxSeq(nil); got != 0 {
		t.Fatalf("maxSeq(nil) = %d, want 0", got)
	}
}

func TestEntriesBeyondSeqExcludesAtOrBelowThreshold(t *testing.T) {
	entries := []types.Entry{
		seqEntry("e-1", 1),
		seqEntry("e-2", 2),
		seqEntry("e-3", 3),
	}
	got := entriesBeyondSeq(entries, 1)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries beyond seq 1, got %d", len(got))
	}
	for _, e := range got {
		if *e.Seq <= 1 {
			t.Fatalf("unexpected entry at or below threshold: %+v", e)
		}
	}
}
