// Package promptctx implements C6, the Context Builder: assembling a
// length-bounded prompt context from character fields, recent entries,
// and higher-order summaries.
//
// Grounded on the teacher repo's internal/compact/haiku.go (text/template
// prompt rendering over a fixed data shape), generalized here from one
// template into the character-identity line, per-field summarization, and
// journal-section assembly this package's Build method performs.
package promptctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/fingerprint"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// Defaults for the word budgets Build enforces.
const (
	DefaultCharacterWords = 300
	DefaultEntryWords     = 200
)

// Builder assembles prompt context blocks.
type Builder struct {
	doc     *store.Doc
	cache   *cache.Cache
	gateway *llm.Gateway

	CharacterWords int
	EntryWords     int
}

// New constructs a Builder with the documented word-budget defaults.
func New(doc *store.Doc, c *cache.Cache, gw *llm.Gateway) *Builder {
	return &Builder{
		doc:            doc,
		cache:          c,
		gateway:        gw,
		CharacterWords: DefaultCharacterWords,
		EntryWords:     DefaultEntryWords,
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Input lets a caller pin the character/entries used, falling back to live
// reads from the replicated store (C1) when either is nil.
type Input struct {
	Character *types.Character
	Entries   *[]types.Entry
}

// Build assembles the context block. Given identical inputs and cache
// state, Build is byte-deterministic: every branch below reads only from
// its arguments and the cache, never from wall-clock time or map
// iteration order.
func (b *Builder) Build(ctx context.Context, in Input) (string, error) {
	character := b.doc.GetCharacter()
	if in.Character != nil {
		character = *in.Character
	}
	entries := b.doc.GetJournal()
	if in.Entries != nil {
		entries = *in.Entries
	}
	entries = types.SortEntries(entries)

	var out strings.Builder
	out.WriteString(b.identityLine(character))
	out.WriteString("\n\n")

	backstory, err := b.fieldSection(ctx, types.FieldBackstory, character.Get(types.FieldBackstory))
	if err != nil {
		return "", err
	}
	if backstory != "" {
		fmt.Fprintf(&out, "Backstory: %s\n\n", backstory)
	}

	notes, err := b.fieldSection(ctx, types.FieldNotes, character.Get(types.FieldNotes))
	if err != nil {
		return "", err
	}
	if notes != "" {
		fmt.Fprintf(&out, "Notes: %s\n\n", notes)
	}

	journalSection, err := b.journalSection(ctx, entries)
	if err != nil {
		return "", err
	}
	out.WriteString(journalSection)

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

func (b *Builder) identityLine(c types.Character) string {
	name := c.Get(types.FieldName)
	if name == "" {
		name = "unnamed adventurer"
	}
	race := c.Get(types.FieldRace)
	class := c.Get(types.FieldClass)
	switch {
	case race != "" && class != "":
		return fmt.Sprintf("Character: %s (%s) — %s", name, race, class)
	case race != "":
		return fmt.Sprintf("Character: %s (%s)", name, race)
	case class != "":
		return fmt.Sprintf("Character: %s — %s", name, class)
	default:
		return fmt.Sprintf("Character: %s", name)
	}
}

// fieldSection returns content verbatim when it is under the word budget,
// else a cached/generated summary, falling back to the full content if
// summarization fails.
func (b *Builder) fieldSection(ctx context.Context, field types.CharacterField, content string) (string, error) {
	if content == "" {
		return "", nil
	}
	if wordCount(content) <= b.CharacterWords {
		return content, nil
	}

	fp := fingerprint.CharacterFieldFP(field)
	rec, err := b.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (types.SummaryRecord, error) {
		return b.summarizeField(ctx, string(field), content)
	})
	if err != nil {
		return content, nil
	}
	return rec.Content, nil
}

func (b *Builder) summarizeField(ctx context.Context, label, content string) (types.SummaryRecord, error) {
	if b.gateway == nil || !b.gateway.IsAvailable() {
		return types.SummaryRecord{}, llm.ErrAIUnavailable
	}
	prompt := llm.SummaryPrompt(label, content, b.CharacterWords)
	text, err := b.gateway.CallSummary(ctx, prompt, llm.CallOptions{})
	if err != nil {
		return types.SummaryRecord{}, err
	}
	return types.SummaryRecord{
		Content:       text,
		Words:         wordCount(text),
		OriginalWords: wordCount(content),
		Timestamp:     nowMillis(),
	}, nil
}

// journalSection prefers the Parts Engine's derived summaries; failing
// that, for more than 10 entries it falls back to a meta-summary plus the
// latest 5 inline; otherwise every entry is rendered inline.
func (b *Builder) journalSection(ctx context.Context, entries []types.Entry) (string, error) {
	chronicle := b.doc.GetChronicle()
	if chronicle.SoFarSummary != "" || chronicle.RecentSummary != "" {
		var out strings.Builder
		if chronicle.SoFarSummary != "" {
			fmt.Fprintf(&out, "Story so far: %s\n\n", chronicle.SoFarSummary)
		}
		if chronicle.RecentSummary != "" {
			fmt.Fprintf(&out, "Recent events: %s\n\n", chronicle.RecentSummary)
		}
		return out.String(), nil
	}

	if len(entries) > 10 {
		return b.metaSummarySection(ctx, entries)
	}

	return b.inlineSection(ctx, entries)
}

func (b *Builder) metaSummarySection(ctx context.Context, entries []types.Entry) (string, error) {
	rec, err := b.cache.GetOrBuild(ctx, fingerprint.MetaSummary, func(ctx context.Context) (types.SummaryRecord, error) {
		summaries := make([]string, 0, len(entries))
		for _, e := range entries {
			summaries = append(summaries, b.entryOrSummary(ctx, e))
		}
		joined := strings.Join(summaries, "\n")
		return b.summarizeField(ctx, "journal history", joined)
	})

	var out strings.Builder
	if err == nil {
		fmt.Fprintf(&out, "Journal summary: %s\n\n", rec.Content)
	}

	latest := entries
	if len(latest) > 5 {
		latest = latest[len(latest)-5:]
	}
	out.WriteString("Most recent entries:\n")
	for _, e := range latest {
		fmt.Fprintf(&out, "- [%s] %s\n", formatDate(e.Timestamp), b.entryOrSummary(ctx, e))
	}
	return out.String(), nil
}

func (b *Builder) inlineSection(ctx context.Context, entries []types.Entry) (string, error) {
	var out strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&out, "- [%s] %s\n", formatDate(e.Timestamp), b.entryOrSummary(ctx, e))
	}
	return out.String(), nil
}

// entryOrSummary replaces entries over EntryWords with their
// cached/generated summary, leaving shorter entries verbatim.
func (b *Builder) entryOrSummary(ctx context.Context, e types.Entry) string {
	if wordCount(e.Content) <= b.EntryWords {
		return e.Content
	}
	fp := fingerprint.Entry(e.ID)
	rec, err := b.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (types.SummaryRecord, error) {
		return b.summarizeField(ctx, "journal entry", e.Content)
	})
	if err != nil {
		return e.Content
	}
	return rec.Content
}

func formatDate(timestampMillis int64) string {
	return time.UnixMilli(timestampMillis).UTC().Format("2006-01-02")
}

var nowMillisFunc = func() int64 { return time.Now().UnixMilli() }

func nowMillis() int64 { return nowMillisFunc() }
