// Package parts implements C7, the Parts Engine: partitioning the ordered
// journal into fixed-size closed parts and maintaining the derived
// recent-tail and cumulative so-far summaries.
//
// Grounded on the teacher repo's internal/eventbus (a single dispatcher
// driving a sequence of named steps) generalized from "n independent
// handlers" to "one state machine with an explicit transition graph per
// document", run as a task loop with explicit states rather than deeply
// nested callbacks.
package parts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/fingerprint"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// DefaultPartSize is the number of entries a closed part holds.
const DefaultPartSize = 10

// State names the Parts Engine's state machine states.
type State int

const (
	Idle State = iota
	Evaluate
	ClosingPart
	RebuildingSoFar
	RefreshingRecent
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Evaluate:
		return "Evaluate"
	case ClosingPart:
		return "ClosingPart"
	case RebuildingSoFar:
		return "RebuildingSoFar"
	case RefreshingRecent:
		return "RefreshingRecent"
	default:
		return "Unknown"
	}
}

// Engine drives the parts pipeline for a single document. It is
// conceptually single-writer at any moment: mu serializes all transitions
// so two concurrent triggers never interleave a chronicle
// read-modify-write.
type Engine struct {
	doc     *store.Doc
	cache   *cache.Cache
	gateway *llm.Gateway

	PartSize int

	mu          sync.Mutex
	lastSignature string // last (N, L, tail-ids) this Engine observed
}

// New constructs an Engine with the documented part-size default.
func New(doc *store.Doc, c *cache.Cache, gw *llm.Gateway) *Engine {
	return &Engine{doc: doc, cache: c, gateway: gw, PartSize: DefaultPartSize}
}

// CanonicalOrder returns the journal in canonical order: seq ascending
// when present, else timestamp ascending, tie-broken by id.
func (e *Engine) CanonicalOrder() []types.Entry {
	return types.SortEntries(e.doc.GetJournal())
}

func signature(entries []types.Entry, latestPartIndex, partSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d:", len(entries), latestPartIndex)
	if latestPartIndex*partSize < len(entries) {
		for _, e := range entries[latestPartIndex*partSize:] {
			b.WriteString(e.ID)
			b.WriteByte(',')
		}
	}
	return b.String()
}

// Run drives the state machine from Idle through however many
// transitions the current journal state requires: Evaluate →
// ClosingPart* → RebuildingSoFar (once, if any part closed) →
// RefreshingRecent → Idle. ClosingPart repeats until fewer than PartSize
// entries remain in the open tail, so a journal hydrated with many
// unparted entries backfills completely in a single call rather than one
// part per tick. Parts that are already closed are not revisited. Run is a
// no-op if nothing has changed since the last call.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.CanonicalOrder()
	chronicle := e.doc.GetChronicle()

	sig := signature(entries, chronicle.LatestPartIndex, e.PartSize)
	if sig == e.lastSignature {
		return nil
	}

	n := len(entries)
	l := chronicle.LatestPartIndex
	closedAny := false
	for n >= (l+1)*e.PartSize {
		if err := e.closePart(ctx, entries, l+1); err != nil {
			return err
		}
		l++
		closedAny = true
	}

	if closedAny {
		if err := e.rebuildSoFar(ctx); err != nil {
			return err
		}
	}

	if err := e.refreshRecent(ctx, entries); err != nil {
		return err
	}

	// Re-read post-transition state for the signature so a subsequent
	// Run with no intervening mutation observes the same value and no-ops.
	chronicle = e.doc.GetChronicle()
	e.lastSignature = signature(entries, chronicle.LatestPartIndex, e.PartSize)
	return nil
}

// partWindow returns the canonical-order entries belonging to part index i
// (1-based): indices [(i-1)*PART_SIZE, i*PART_SIZE).
func partWindow(entries []types.Entry, index, partSize int) []types.Entry {
	start := (index - 1) * partSize
	end := index * partSize
	if start >= len(entries) {
		return nil
	}
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

// closePart implements the ClosingPart(i) state: compute the part's
// entry-id window, summarize it, title it, record membership, and advance
// latestPartIndex. Summaries are generated only if the Gateway is
// available; otherwise structural membership is recorded and the summary
// and title fields are left empty. Later runs only close new parts, so
// those fields stay empty.
func (e *Engine) closePart(ctx context.Context, entries []types.Entry, index int) error {
	window := partWindow(entries, index, e.PartSize)
	if len(window) != e.PartSize {
		return fmt.Errorf("parts: closePart(%d): window has %d entries, want %d", index, len(window), e.PartSize)
	}

	ids := make([]string, len(window))
	var content strings.Builder
	for i, en := range window {
		ids[i] = en.ID
		content.WriteString(en.Content)
		content.WriteByte('\n')
	}

	summary := ""
	title := ""
	if e.gateway != nil && e.gateway.IsAvailable() {
		var err error
		summary, err = e.summarize(ctx, fingerprint.Part(index), "journal part", content.String(), 150)
		if err != nil {
			summary = ""
		}
		title, err = e.title(ctx, fingerprint.PartTitle(index), content.String())
		if err != nil {
			title = ""
		}
	}

	e.cache.Put(fingerprint.PartEntries(index), types.SummaryRecord{
		Content:   strings.Join(ids, ","),
		Timestamp: nowMillis(),
	})

	chronicle := e.doc.GetChronicle()
	if chronicle.Parts == nil {
		chronicle.Parts = make(map[int]*types.Part)
	}
	chronicle.Parts[index] = &types.Part{Title: title, Summary: summary, Entries: ids}
	chronicle.LatestPartIndex = index
	e.doc.SetChronicle(chronicle)
	return nil
}

// rebuildSoFar implements the RebuildingSoFar state: concatenate closed
// parts' summaries 1..latestPartIndex and summarize under
// journal:so-far-latest.
func (e *Engine) rebuildSoFar(ctx context.Context) error {
	chronicle := e.doc.GetChronicle()
	if chronicle.LatestPartIndex == 0 {
		return nil
	}
	if e.gateway == nil || !e.gateway.IsAvailable() {
		return nil
	}

	var b strings.Builder
	for i := 1; i <= chronicle.LatestPartIndex; i++ {
		p := chronicle.Parts[i]
		if p == nil || p.Summary == "" {
			continue
		}
		fmt.Fprintf(&b, "Part %d: %s\n", i, p.Summary)
	}
	if b.Len() == 0 {
		return nil
	}

	e.cache.Clear(fingerprint.SoFarLatest)
	summary, err := e.summarize(ctx, fingerprint.SoFarLatest, "campaign so far", b.String(), 250)
	if err != nil {
		return nil // so-far rebuild tolerates a transient summarization failure
	}
	chronicle.SoFarSummary = summary
	e.doc.SetChronicle(chronicle)
	return nil
}

// refreshRecent implements the RefreshingRecent state: summarize the
// open-tail entries beyond latestPartIndex.
func (e *Engine) refreshRecent(ctx context.Context, entries []types.Entry) error {
	chronicle := e.doc.GetChronicle()
	tail := partWindow(entries, chronicle.LatestPartIndex+1, len(entries))
	start := chronicle.LatestPartIndex * e.PartSize
	if start >= len(entries) {
		tail = nil
	} else {
		tail = entries[start:]
	}

	if len(tail) == 0 {
		if chronicle.RecentSummary != "" {
			chronicle.RecentSummary = ""
			e.doc.SetChronicle(chronicle)
		}
		return nil
	}

	if e.gateway == nil || !e.gateway.IsAvailable() {
		return nil
	}

	var b strings.Builder
	for _, en := range tail {
		b.WriteString(en.Content)
		b.WriteByte('\n')
	}

	e.cache.Clear(fingerprint.RecentSummary)
	summary, err := e.summarize(ctx, fingerprint.RecentSummary, "recent entries", b.String(), 150)
	if err != nil {
		return nil
	}
	chronicle.RecentSummary = summary
	e.doc.SetChronicle(chronicle)
	return nil
}

func (e *Engine) summarize(ctx context.Context, fp, label, content string, targetWords int) (string, error) {
	rec, err := e.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (types.SummaryRecord, error) {
		prompt := llm.SummaryPrompt(label, content, targetWords)
		text, err := e.gateway.CallSummary(ctx, prompt, llm.CallOptions{})
		if err != nil {
			return types.SummaryRecord{}, err
		}
		return types.SummaryRecord{Content: text, Timestamp: nowMillis()}, nil
	})
	if err != nil {
		return "", err
	}
	return rec.Content, nil
}

func (e *Engine) title(ctx context.Context, fp, content string) (string, error) {
	rec, err := e.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (types.SummaryRecord, error) {
		prompt := llm.SummaryPrompt("a short (<=6 word) title for", content, 6)
		text, err := e.gateway.CallSummary(ctx, prompt, llm.CallOptions{})
		if err != nil {
			return types.SummaryRecord{}, err
		}
		return types.SummaryRecord{Content: strings.TrimSpace(text), Timestamp: nowMillis()}, nil
	})
	if err != nil {
		return "", err
	}
	return rec.Content, nil
}
