package types

import "testing"

func seq(v int64) *int64 { return &v }

func TestCanonicalLessPrefersSeqWhenBothPresent(t *testing.T) {
	a := Entry{ID: "e-1", Seq: seq(2), Timestamp: 1}
	b := Entry{ID: "e-2", Seq: seq(1), Timestamp: 100}
	if !CanonicalLess(b, a) {
		t.Fatalf("expected lower seq to sort first regardless of timestamp")
	}
}

func TestCanonicalLessFallsBackToTimestampWithoutSeq(t *testing.T) {
	a := Entry{ID: "e-1", Timestamp: 10}
	b := Entry{ID: "e-2", Timestamp: 20}
	if !CanonicalLess(a, b) {
		t.Fatalf("expected earlier timestamp to sort first")
	}
}

func TestCanonicalLessBreaksTiesByID(t *testing.T) {
	a := Entry{ID: "e-1", Timestamp: 10}
	b := Entry{ID: "e-2", Timestamp: 10}
	if !CanonicalLess(a, b) {
		t.Fatalf("expected lexicographically smaller id to sort first on tie")
	}
}

func TestSortEntriesDoesNotMutateInput(t *testing.T) {
	in := []Entry{
		{ID: "e-2", Timestamp: 20},
		{ID: "e-1", Timestamp: 10},
	}
	out := SortEntries(in)

	if in[0].ID != "e-2" {
		t.Fatalf("input slice was mutated: %+v", in)
	}
	if out[0].ID != "e-1" || out[1].ID != "e-2" {
		t.Fatalf("unexpected sort order: %+v", out)
	}
}

func TestCharacterGetNilSafe(t *testing.T) {
	var c Character
	if got := c.Get(FieldName); got != "" {
		t.Fatalf("expected empty string from nil Character, got %q", got)
	}
}

func TestChroniclePartClonedSliceIndependent(t *testing.T) {
	c := Chronicle{Parts: map[int]*Part{
		1: {Title: "Part One", Entries: []string{"e-1", "e-2"}},
	}}
	clone := c.ClonePart(1)
	clone.Entries[0] = "mutated"

	if c.Parts[1].Entries[0] != "e-1" {
		t.Fatalf("expected original part entries untouched, got %+v", c.Parts[1].Entries)
	}
}

func TestChroniclePartMissingIndexReturnsNil(t *testing.T) {
	c := Chronicle{Parts: map[int]*Part{}}
	if got := c.ClonePart(7); got != nil {
		t.Fatalf("expected nil for missing part, got %+v", got)
	}
}
