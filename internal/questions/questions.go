// Package questions implements C8, the Question Generator: reflective
// prompts derived from the current character and journal context, cached
// per content fingerprint with a freshness window.
//
// Grounded on the teacher repo's internal/compact/haiku.go template +
// cache-write shape, generalized from a fixed summarization template to
// the reflective-questions prompt, and on internal/idgen's hashing
// approach for the context fingerprint (via internal/fingerprint).
package questions

import (
	"context"
	"time"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/fingerprint"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/promptctx"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// FreshnessWindow is how long a cached question set is served without
// regeneration, even if requested again.
const FreshnessWindow = time.Hour

// Generator produces and caches reflective questions.
type Generator struct {
	doc     *store.Doc
	cache   *cache.Cache
	builder *promptctx.Builder
	gateway *llm.Gateway
}

// New constructs a Generator.
func New(doc *store.Doc, c *cache.Cache, builder *promptctx.Builder, gw *llm.Gateway) *Generator {
	return &Generator{doc: doc, cache: c, builder: builder, gateway: gw}
}

// Get returns the current question set, generating it if missing or
// stale. force regenerates regardless of freshness or existing content.
func (g *Generator) Get(ctx context.Context, force bool) (types.QuestionsRecord, error) {
	character := g.doc.GetCharacter()
	entries := g.doc.GetJournal()
	digest := fingerprint.QuestionsContext(character, entries)
	fp := fingerprint.Questions(digest)

	if !force {
		if rec, ok := g.doc.GetQuestions(fp); ok && g.fresh(rec) {
			return rec, nil
		}
	}

	if !g.gateway.IsAvailable() {
		return types.QuestionsRecord{}, llm.ErrAIUnavailable
	}

	contextBlock, err := g.builder.Build(ctx, promptctx.Input{Character: &character, Entries: &entries})
	if err != nil {
		return types.QuestionsRecord{}, err
	}

	text, err := g.gateway.CallQuestions(ctx, llm.QuestionsSystemPrompt, llm.QuestionsPrompt(contextBlock), llm.CallOptions{})
	if err != nil {
		return types.QuestionsRecord{}, err
	}

	rec := types.QuestionsRecord{Questions: text, Timestamp: nowMillis()}
	g.doc.PutQuestions(fp, rec)
	return rec, nil
}

func (g *Generator) fresh(rec types.QuestionsRecord) bool {
	age := time.Since(time.UnixMilli(rec.Timestamp))
	return age < FreshnessWindow
}

var nowMillisFunc = func() int64 { return time.Now().UnixMilli() }

func nowMillis() int64 { return nowMillisFunc() }
