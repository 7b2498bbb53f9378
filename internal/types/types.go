// Package types defines the document's shared data shapes: the character
// sheet, journal entries, settings, cached summaries, and the chronicle of
// parts and derived summaries the pipeline maintains over the journal.
package types

import "sort"

// CharacterField enumerates the recognized character sub-collection keys.
type CharacterField string

const (
	FieldName      CharacterField = "name"
	FieldRace      CharacterField = "race"
	FieldClass     CharacterField = "class"
	FieldBackstory CharacterField = "backstory"
	FieldNotes     CharacterField = "notes"
)

// Character is the mapping from field name to string content.
type Character map[CharacterField]string

func (c Character) Get(f CharacterField) string {
	if c == nil {
		return ""
	}
	return c[f]
}

// Entry is a single journal entry.
//
// Seq is assigned locally at insertion time and is monotonically increasing
// within a single replica's view, but is not globally monotonic across
// replicas — see CanonicalLess.
type Entry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Seq       *int64 `json:"seq,omitempty"`
}

// CanonicalLess implements the canonical order:
// (seq ascending when present, else timestamp ascending, then id ascending).
func CanonicalLess(a, b Entry) bool {
	if a.Seq != nil && b.Seq != nil {
		if *a.Seq != *b.Seq {
			return *a.Seq < *b.Seq
		}
		return a.ID < b.ID
	}
	if a.Seq != nil || b.Seq != nil {
		// Mixed seq presence: entries carrying a seq sort by seq among
		// themselves but fall back to timestamp when compared against an
		// entry with no seq, per the tie-break rule.
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ID < b.ID
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}

// SortEntries returns a new slice sorted in canonical order. The input is
// not mutated.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return CanonicalLess(out[i], out[j])
	})
	return out
}

// SettingsKey enumerates the recognized settings keys.
type SettingsKey string

const (
	SettingOpenAIAPIKey   SettingsKey = "openai-api-key"
	SettingAIEnabled      SettingsKey = "ai-enabled"
	SettingSyncServerURL  SettingsKey = "sync-server-url"
	SettingLatestAnchorSeq SettingsKey = "latest-anchor-seq"
)

// SummaryRecord is a cached LLM artifact. Content always holds the plain
// text; per-entry records additionally carry a StructuredSummary in
// Structured.
type SummaryRecord struct {
	Content       string             `json:"content"`
	Structured    *StructuredSummary `json:"structured,omitempty"`
	Words         int                `json:"words"`
	OriginalWords int                `json:"originalWords"`
	Timestamp     int64              `json:"timestamp"`
}

// StructuredSummary is the per-entry artifact shape.
type StructuredSummary struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Summary  string `json:"summary"`
}

// Part is a closed, fixed-size window of entries with its own summary and
// title.
type Part struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Entries []string `json:"entries"`
}

// Chronicle is the structured sub-record tracking the parts pipeline state
//.
type Chronicle struct {
	LatestPartIndex int           `json:"latestPartIndex"`
	SoFarSummary    string        `json:"soFarSummary"`
	RecentSummary   string        `json:"recentSummary"`
	Parts           map[int]*Part `json:"parts"`
}

// ClonePart returns a copy of the part at index (nil if absent), with its
// Entries slice copied, safe for the caller to mutate independently of the
// chronicle it came from.
func (c *Chronicle) ClonePart(index int) *Part {
	p, ok := c.Parts[index]
	if !ok || p == nil {
		return nil
	}
	cp := *p
	cp.Entries = append([]string(nil), p.Entries...)
	return &cp
}

// QuestionsRecord is a cached reflective-prompt artifact.
type QuestionsRecord struct {
	Questions string `json:"questions"`
	Timestamp int64  `json:"timestamp"`
}
