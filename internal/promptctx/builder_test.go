package promptctx

import (
	"context"
	"strings"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func newTestBuilder(t *testing.T) (*Builder, *store.Doc) {
	t.Helper()
	d := store.New("replica-a")
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(d.Close)
	c := cache.New(d)
	return New(d, c, nil), d
}

func TestBuildIdentityLineWithRaceAndClass(t *testing.T) {
	b, d := newTestBuilder(t)
	d.SetCharacterField(types.FieldName, "Elowen")
	d.SetCharacterField(types.FieldRace, "Elf")
	d.SetCharacterField(types.FieldClass, "Ranger")

	got, err := b.Build(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "Character: Elowen (Elf) — Ranger") {
		t.Fatalf("unexpected identity line: %q", got)
	}
}

func TestBuildIdentityLineDefaultsUnnamed(t *testing.T) {
	b, _ := newTestBuilder(t)
	got, err := b.Build(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "unnamed adventurer") {
		t.Fatalf("expected default name, got %q", got)
	}
}

func TestBuildInlinesShortEntries(t *testing.T) {
	b, d := newTestBuilder(t)
	d.AppendEntry(types.Entry{ID: "e-1", Content: "met a dragon", Timestamp: 0})

	got, err := b.Build(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "met a dragon") {
		t.Fatalf("expected inline entry content, got %q", got)
	}
}

func TestBuildPrefersChronicleSummariesOverEntries(t *testing.T) {
	b, d := newTestBuilder(t)
	d.AppendEntry(types.Entry{ID: "e-1", Content: "met a dragon", Timestamp: 0})
	d.SetChronicle(types.Chronicle{SoFarSummary: "long history", RecentSummary: "recent happenings"})

	got, err := b.Build(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "Story so far: long history") {
		t.Fatalf("expected so-far summary, got %q", got)
	}
	if !strings.Contains(got, "Recent events: recent happenings") {
		t.Fatalf("expected recent summary, got %q", got)
	}
	if strings.Contains(got, "met a dragon") {
		t.Fatalf("expected raw entry to be superseded by chronicle summaries, got %q", got)
	}
}

func TestFieldSectionFallsBackToFullContentWithoutGateway(t *testing.T) {
	b, d := newTestBuilder(t)
	b.CharacterWords = 2
	d.SetCharacterField(types.FieldBackstory, "a very long backstory indeed")

	got, err := b.Build(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "Backstory: a very long backstory indeed") {
		t.Fatalf("expected fallback to full content without a gateway, got %q", got)
	}
}

func TestBuildUsesPinnedInputOverLiveStore(t *testing.T) {
	b, d := newTestBuilder(t)
	d.SetCharacterField(types.FieldName, "Live")

	pinned := types.Character{types.FieldName: "Pinned"}
	got, err := b.Build(context.Background(), Input{Character: &pinned})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "Character: Pinned") {
		t.Fatalf("expected pinned character to override live store, got %q", got)
	}
}
