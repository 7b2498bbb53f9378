package store

import (
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// EntryPatch is a partial update applied by Update. Nil fields are left
// untouched.
type EntryPatch struct {
	Content   *string
	Timestamp *int64
}

// emitLocal applies a locally-originated Op: stamps it, applies it under
// the write lock, appends it to the log, and (outside the lock) notifies
// observers of the affected collection.
func (d *Doc) emitLocal(kind OpKind, key string, payload any) {
	d.mu.Lock()
	op := Op{ReplicaID: d.replicaID, Counter: d.nextStamp(), Kind: kind, Key: key, Payload: payload}
	col := d.applyLocked(op, OriginLocal)
	d.log = append(d.log, op)
	d.mu.Unlock()

	if col != "" {
		d.notify(Change{Collection: col, Keys: []string{key}, Origin: OriginLocal})
	}
}

// GetCharacter returns a snapshot copy of the character sub-collection.
func (d *Doc) GetCharacter() types.Character {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(types.Character, len(d.character))
	for k, v := range d.character {
		out[k] = v
	}
	return out
}

// SetCharacterField writes a single character field.
func (d *Doc) SetCharacterField(field types.CharacterField, value string) {
	d.emitLocal(OpSetField, string(field), characterFieldPayload{Field: field, Value: value})
}

// GetJournal returns a snapshot copy of all entries, in insertion order
// (not canonical order — callers needing canonical order should use
// types.SortEntries).
func (d *Doc) GetJournal() []types.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Entry, len(d.journal))
	copy(out, d.journal)
	return out
}

// GetEntry returns a single entry by id.
func (d *Doc) GetEntry(id string) (types.Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.journalByID[id]
	if !ok {
		return types.Entry{}, false
	}
	return d.journal[idx], true
}

// AppendEntry appends a new entry. Appending an id that already exists is
// a no-op; ids are unique within the journal.
func (d *Doc) AppendEntry(e types.Entry) {
	d.emitLocal(OpAppendEntry, e.ID, e)
}

// UpdateEntry applies a partial update to an existing entry. A no-op if
// the id does not exist.
func (d *Doc) UpdateEntry(id string, patch EntryPatch) {
	d.emitLocal(OpUpdateEntry, id, patch)
}

// DeleteEntry removes an entry by id. A no-op if the id does not exist.
func (d *Doc) DeleteEntry(id string) {
	d.emitLocal(OpDeleteEntry, id, nil)
}

// GetSettings returns a snapshot copy of the raw settings map (string
// values; see internal/settings for the typed projection, C3).
func (d *Doc) GetSettings() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.settings))
	for k, v := range d.settings {
		out[k] = v
	}
	return out
}

// SetSetting writes a single raw settings key.
func (d *Doc) SetSetting(key, value string) {
	d.emitLocal(OpSetField, key, settingsPayload{Key: key, Value: value})
}

// SummaryExists reports whether a summary record exists for fp.
func (d *Doc) SummaryExists(fp string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.summaries[fp]
	return ok
}

// GetSummary returns the summary record for fp, if any.
func (d *Doc) GetSummary(fp string) (types.SummaryRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.summaries[fp]
	return rec, ok
}

// PutSummary writes a summary record for fp. A record is written only if
// no extant record has an equal-or-newer timestamp; applyPutSummaryLocked
// enforces that for both local and merged writes.
func (d *Doc) PutSummary(fp string, rec types.SummaryRecord) {
	d.emitLocal(OpPutSummary, fp, rec)
}

// ClearSummary removes a single summary record.
func (d *Doc) ClearSummary(fp string) {
	d.emitLocal(OpClearSummary, fp, nil)
}

// ClearAllSummaries removes every summary record.
func (d *Doc) ClearAllSummaries() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.summaries))
	for k := range d.summaries {
		keys = append(keys, k)
	}
	d.mu.Unlock()
	for _, k := range keys {
		d.ClearSummary(k)
	}
}

// GetQuestions returns the cached questions record for fp, if any.
func (d *Doc) GetQuestions(fp string) (types.QuestionsRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.questions[fp]
	return rec, ok
}

// PutQuestions writes a questions cache record for fp.
func (d *Doc) PutQuestions(fp string, rec types.QuestionsRecord) {
	d.emitLocal(OpPutQuestions, fp, rec)
}

// GetChronicle returns a snapshot copy of the chronicle sub-record.
func (d *Doc) GetChronicle() types.Chronicle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := types.Chronicle{
		LatestPartIndex: d.chronicle.LatestPartIndex,
		SoFarSummary:    d.chronicle.SoFarSummary,
		RecentSummary:   d.chronicle.RecentSummary,
		Parts:           make(map[int]*types.Part, len(d.chronicle.Parts)),
	}
	for i, p := range d.chronicle.Parts {
		out.Parts[i] = d.chronicle.ClonePart(i)
		_ = p
	}
	return out
}

// SetChronicle replaces the chronicle sub-record wholesale. The Parts
// Engine (C7) is the sole writer; it always reads, mutates a copy, and
// writes back under this single call so concurrent pipeline steps never
// interleave a torn chronicle (see internal/parts for the transaction
// discipline that makes this safe).
func (d *Doc) SetChronicle(c types.Chronicle) {
	d.emitLocal(OpSetChronicle, "chronicle", c)
}

// ObserveCharacter registers a listener for character changes.
func (d *Doc) ObserveCharacter(l Listener) Unregister { return d.Observe(CollectionCharacter, l) }

// ObserveJournal registers a listener for journal changes.
func (d *Doc) ObserveJournal(l Listener) Unregister { return d.Observe(CollectionJournal, l) }

// ObserveSettings registers a listener for settings changes.
func (d *Doc) ObserveSettings(l Listener) Unregister { return d.Observe(CollectionSettings, l) }

// ObserveSummaries registers a listener for summary-cache changes.
func (d *Doc) ObserveSummaries(l Listener) Unregister { return d.Observe(CollectionSummaries, l) }

// ObserveChronicle registers a listener for chronicle changes.
func (d *Doc) ObserveChronicle(l Listener) Unregister { return d.Observe(CollectionChronicle, l) }
