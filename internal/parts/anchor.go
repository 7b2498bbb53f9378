package parts

import (
	"context"
	"fmt"
	"strings"

	"github.com/pekka-poukamo/dnd-journal/internal/fingerprint"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// AnchorThreshold is the number of entries beyond the current anchor
// sequence required before the anchor pipeline advances.
const AnchorThreshold = 10

// Anchor is the optional second summarization pipeline: a single
// full-prefix summary retaken whenever AnchorThreshold new entries have
// accumulated beyond the last anchor, independent of the
// part boundaries Engine maintains. Unlike Engine's closed parts, an
// anchor is a checkpoint over everything up to its sequence number, not a
// fixed-size window.
type Anchor struct {
	engine   *Engine
	settings *settings.View
	gateway  *llm.Gateway
}

// NewAnchor constructs an Anchor pipeline sharing engine's store and
// cache.
func NewAnchor(engine *Engine, sv *settings.View, gw *llm.Gateway) *Anchor {
	return &Anchor{engine: engine, settings: sv, gateway: gw}
}

// CatchUp advances the anchor if enough new entries have accumulated
// since the last one. It is safe to call on every tick: when fewer than
// AnchorThreshold new entries exist, it is a no-op.
func (a *Anchor) CatchUp(ctx context.Context) error {
	if a.gateway == nil || !a.gateway.IsAvailable() {
		return nil
	}

	entries := a.engine.CanonicalOrder()
	if len(entries) == 0 {
		return nil
	}

	currentSeq := a.settings.LatestAnchorSeq()
	newMax := maxSeq(entries)
	if newMax <= currentSeq {
		return nil
	}

	beyond := entriesBeyondSeq(entries, currentSeq)
	if len(beyond) < AnchorThreshold {
		return nil
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Content)
		b.WriteByte('\n')
	}

	fp := fingerprint.AnchorSeq(newMax)
	rec, err := a.engine.cache.GetOrBuild(ctx, fp, func(ctx context.Context) (types.SummaryRecord, error) {
		prompt := llm.SummaryPrompt("entire campaign to date", b.String(), 400)
		text, err := a.gateway.CallSummary(ctx, prompt, llm.CallOptions{})
		if err != nil {
			return types.SummaryRecord{}, err
		}
		return types.SummaryRecord{Content: text, Timestamp: nowMillis()}, nil
	})
	if err != nil {
		return fmt.Errorf("parts: anchor catch-up: %w", err)
	}
	_ = rec

	// Advance only forward: a concurrent merge may have already moved
	// latestAnchorSeq past newMax since currentSeq was read above.
	if newMax > a.settings.LatestAnchorSeq() {
		a.settings.SetLatestAnchorSeq(newMax)
	}
	return nil
}

func maxSeq(entries []types.Entry) int64 {
	var max int64
	for _, e := range entries {
		if e.Seq != nil && *e.Seq > max {
			max = *e.Seq
		}
	}
	return max
}

func entriesBeyondSeq(entries []types.Entry, seq int64) []types.Entry {
	var out []types.Entry
	for _, e := range entries {
		if e.Seq != nil && *e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}
