// Package orchestrator implements C9, the Event Orchestrator: it wires
// the replicated document's observer notifications to the derived-state
// pipelines (Parts Engine, anchor catch-up, character-field summary
// invalidation, per-entry structured summaries) and optionally republishes changes onto NATS JetStream
// for out-of-process collaborators.
//
// Grounded directly on the teacher repo's internal/eventbus/bus.go:
// Dispatch's priority-ordered, sequential, error-tolerant handler
// invocation becomes Orchestrator's per-collection handler registration;
// Bus.SetJetStream/publishToJetStream's fire-and-forget JetStream publish
// becomes Orchestrator's change republishing, generalized from "one
// shared bus for n event types" to "one dispatcher wiring a single
// document's sub-collections to their derived-state owners".
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/fingerprint"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/logging"
	"github.com/pekka-poukamo/dnd-journal/internal/parts"
	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// ChangedEvent is the payload published to JetStream when a collaborator-
// visible sub-collection changes.
type ChangedEvent struct {
	Document   string `json:"document"`
	Collection string `json:"collection"`
	Keys       []string `json:"keys"`
	PublishedAt int64  `json:"published_at"`
}

// Orchestrator wires a *store.Doc to its derived-state pipelines.
type Orchestrator struct {
	doc     *store.Doc
	engine  *parts.Engine
	anchor  *parts.Anchor
	sv      *settings.View
	gateway *llm.Gateway
	cache   *cache.Cache
	docName string

	js   nats.JetStreamContext
	jsMu sync.RWMutex

	// runCh serializes pipeline triggers onto a single worker goroutine so
	// two rapid journal mutations don't run Engine.Run concurrently with
	// themselves — Engine already serializes internally, but funnelling
	// through one channel here keeps ordering predictable and matches the
	// single-dispatcher-goroutine shape the rest of this module uses.
	runCh chan struct{}

	// entryCh queues journal entry ids discovered to be missing a
	// structured summary record, so Start's journal observer never blocks
	// on an LLM call.
	entryCh chan string
	done    chan struct{}

	aiMu         sync.Mutex
	wasAIEnabled bool

	log *zap.Logger

	unregister []store.Unregister
}

// New constructs an Orchestrator for docName (used as the JetStream
// subject's document component). sv, gateway, and c drive the settings
// false→true enablement check and per-entry structured summarization;
// logger may be nil, in which case Orchestrator logs nowhere.
func New(doc *store.Doc, engine *parts.Engine, anchor *parts.Anchor, sv *settings.View, gateway *llm.Gateway, c *cache.Cache, docName string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	o := &Orchestrator{
		doc:     doc,
		engine:  engine,
		anchor:  anchor,
		sv:      sv,
		gateway: gateway,
		cache:   c,
		docName: docName,
		runCh:   make(chan struct{}, 1),
		entryCh: make(chan string, 256),
		done:    make(chan struct{}),
		log:     logging.Named(logger, "orchestrator"),
	}
	if sv != nil {
		o.wasAIEnabled = sv.AIEnabled()
	}
	return o
}

// SetJetStream attaches a JetStream context used to republish Summaries
// and Chronicle changes. When unset, Orchestrator still drives the local
// pipelines; JetStream publishing is purely supplementary.
func (o *Orchestrator) SetJetStream(js nats.JetStreamContext) {
	o.jsMu.Lock()
	defer o.jsMu.Unlock()
	o.js = js
}

func (o *Orchestrator) jetStream() nats.JetStreamContext {
	o.jsMu.RLock()
	defer o.jsMu.RUnlock()
	return o.js
}

// Start registers observers on doc and begins the pipeline worker
// goroutine. Call Stop to tear both down.
func (o *Orchestrator) Start(ctx context.Context) {
	o.unregister = append(o.unregister,
		o.doc.ObserveJournal(func(ch store.Change) { o.onJournalChange(ch) }),
		o.doc.ObserveSummaries(func(ch store.Change) { o.publish(ch) }),
		o.doc.ObserveChronicle(func(ch store.Change) { o.publish(ch) }),
		o.doc.ObserveSettings(func(store.Change) { o.onSettingsChange() }),
		o.doc.ObserveCharacter(func(ch store.Change) { o.onCharacterChange(ch) }),
	)
	go o.worker(ctx)
}

// onJournalChange triggers a parts/anchor run and queues any changed
// entries that are missing a structured summary record (C9's per-entry
// summarization dispatch).
func (o *Orchestrator) onJournalChange(ch store.Change) {
	o.triggerRun()
	for _, id := range ch.Keys {
		if _, ok := o.doc.GetEntry(id); !ok {
			continue // deleted, not appended/updated
		}
		if o.cache != nil && o.cache.Exists(fingerprint.Entry(id)) {
			continue
		}
		select {
		case o.entryCh <- id:
		default:
			o.log.Warn("entry summarization queue full, dropping", zap.String("entry_id", id))
		}
	}
}

// onSettingsChange re-triggers the parts/anchor pipelines when ai-enabled
// transitions false→true rather than waiting for the next journal
// mutation. The Parts Engine's Run does nothing unless the journal or the
// closed-part count changed since its last run, and it never re-summarizes
// parts closed while summarization was disabled: those keep empty summary
// and title fields.
func (o *Orchestrator) onSettingsChange() {
	if o.sv == nil {
		return
	}
	o.aiMu.Lock()
	was := o.wasAIEnabled
	now := o.sv.AIEnabled()
	o.wasAIEnabled = now
	o.aiMu.Unlock()

	if !was && now {
		o.triggerRun()
	}
}

// onCharacterChange invalidates the cached field summary for every
// character field present in ch.Keys, so the next Context Builder read
// regenerates it from the new content instead of serving a stale summary.
func (o *Orchestrator) onCharacterChange(ch store.Change) {
	if o.cache == nil {
		return
	}
	for _, key := range ch.Keys {
		o.cache.Clear(fingerprint.CharacterFieldFP(types.CharacterField(key)))
	}
}

// Stop unregisters all observers and stops the worker goroutine.
func (o *Orchestrator) Stop() {
	for _, u := range o.unregister {
		u()
	}
	close(o.done)
}

func (o *Orchestrator) triggerRun() {
	select {
	case o.runCh <- struct{}{}:
	default:
		// A run is already queued; the queued run will observe the latest
		// journal state when it executes, so dropping this trigger is safe.
	}
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		select {
		case <-o.runCh:
			if err := o.engine.Run(ctx); err != nil {
				o.log.Error("parts engine run", zap.Error(err))
				continue
			}
			if o.anchor != nil {
				if err := o.anchor.CatchUp(ctx); err != nil {
					o.log.Error("anchor catch-up", zap.Error(err))
				}
			}
		case id := <-o.entryCh:
			if err := o.summarizeEntry(ctx, id); err != nil {
				o.log.Error("structured entry summary", zap.String("entry_id", id), zap.Error(err))
			}
		case <-o.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// summarizeEntry requests and stores the structured {title, subtitle,
// summary} record for a single entry, the production caller
// CallStructuredEntrySummary otherwise lacks. It is a no-op if the gateway
// is unavailable, the entry no longer exists, or a record already exists
// under entry:<id> (a concurrent caller may have filled it first).
func (o *Orchestrator) summarizeEntry(ctx context.Context, id string) error {
	if o.gateway == nil || !o.gateway.IsAvailable() {
		return nil
	}
	entry, ok := o.doc.GetEntry(id)
	if !ok {
		return nil
	}
	fp := fingerprint.Entry(id)
	if o.cache.Exists(fp) {
		return nil
	}

	out, err := o.gateway.CallStructuredEntrySummary(ctx, entry.Content)
	if err != nil {
		return err
	}

	o.cache.Put(fp, types.SummaryRecord{
		Content: out.Summary,
		Structured: &types.StructuredSummary{
			Title:    out.Title,
			Subtitle: out.Subtitle,
			Summary:  out.Summary,
		},
		Words:         wordCount(out.Summary),
		OriginalWords: wordCount(entry.Content),
		Timestamp:     nowMillis(),
	})
	return nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

var nowMillisFunc = func() int64 { return time.Now().UnixMilli() }

func nowMillis() int64 { return nowMillisFunc() }

// publish republishes ch to JetStream, fire-and-forget: errors are
// logged but never propagated, matching the teacher's "JetStream is
// supplementary to local dispatch, not a prerequisite" discipline.
func (o *Orchestrator) publish(ch store.Change) {
	js := o.jetStream()
	if js == nil {
		return
	}

	subject := fmt.Sprintf("journal.%s.changed", o.docName)
	event := ChangedEvent{
		Document:    o.docName,
		Collection:  string(ch.Collection),
		Keys:        ch.Keys,
		PublishedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		o.log.Error("marshal changed event", zap.Error(err))
		return
	}
	if _, err := js.Publish(subject, data); err != nil {
		o.log.Error("publish", zap.String("subject", subject), zap.Error(err))
	}
}
