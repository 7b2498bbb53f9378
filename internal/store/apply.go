package store

import (
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// applyLocked mutates document state for a single Op and returns which
// Collection changed (empty if the op was a no-op, e.g. deleting an
// already-absent entry). Must be called with d.mu held for writing.
func (d *Doc) applyLocked(op Op, origin Origin) Collection {
	switch op.Kind {
	case OpSetField:
		return d.applySetFieldLocked(op)
	case OpAppendEntry:
		return d.applyAppendLocked(op)
	case OpUpdateEntry:
		return d.applyUpdateLocked(op)
	case OpDeleteEntry:
		return d.applyDeleteLocked(op)
	case OpPutSummary:
		return d.applyPutSummaryLocked(op)
	case OpClearSummary:
		return d.applyClearSummaryLocked(op)
	case OpPutQuestions:
		return d.applyPutQuestionsLocked(op)
	case OpSetChronicle:
		return d.applySetChronicleLocked(op)
	}
	return ""
}

func (d *Doc) applySetFieldLocked(op Op) Collection {
	d.lastStampForSlot[slotKey(op.Kind, op.Key)] = stampOf(op)

	if val, ok := op.Payload.(characterFieldPayload); ok {
		d.character[val.Field] = val.Value
		return CollectionCharacter
	}
	if val, ok := op.Payload.(settingsPayload); ok {
		d.settings[val.Key] = val.Value
		return CollectionSettings
	}
	return ""
}

type characterFieldPayload struct {
	Field types.CharacterField
	Value string
}

type settingsPayload struct {
	Key   string
	Value string
}

func (d *Doc) applyAppendLocked(op Op) Collection {
	if _, exists := d.journalByID[op.Key]; exists {
		return ""
	}
	e, ok := op.Payload.(types.Entry)
	if !ok {
		return ""
	}
	d.entrySeq++
	seq := d.entrySeq
	e.Seq = &seq
	d.journal = append(d.journal, e)
	d.journalByID[e.ID] = len(d.journal) - 1
	d.lastStampForEntry[e.ID] = stampOf(op)
	return CollectionJournal
}

func (d *Doc) applyUpdateLocked(op Op) Collection {
	idx, exists := d.journalByID[op.Key]
	if !exists {
		return ""
	}
	patch, ok := op.Payload.(EntryPatch)
	if !ok {
		return ""
	}
	e := d.journal[idx]
	if patch.Content != nil {
		e.Content = *patch.Content
	}
	if patch.Timestamp != nil {
		e.Timestamp = *patch.Timestamp
	}
	d.journal[idx] = e
	d.lastStampForEntry[op.Key] = stampOf(op)
	return CollectionJournal
}

func (d *Doc) applyDeleteLocked(op Op) Collection {
	idx, exists := d.journalByID[op.Key]
	if !exists {
		return ""
	}
	d.journal = append(d.journal[:idx], d.journal[idx+1:]...)
	delete(d.journalByID, op.Key)
	for id, i := range d.journalByID {
		if i > idx {
			d.journalByID[id] = i - 1
		}
	}
	d.lastStampForEntry[op.Key] = stampOf(op)
	return CollectionJournal
}

func (d *Doc) applyPutSummaryLocked(op Op) Collection {
	d.lastStampForSlot[slotKey(op.Kind, op.Key)] = stampOf(op)
	rec, ok := op.Payload.(types.SummaryRecord)
	if !ok {
		return ""
	}
	existing, has := d.summaries[op.Key]
	if has && existing.Timestamp >= rec.Timestamp {
		return ""
	}
	d.summaries[op.Key] = rec
	return CollectionSummaries
}

func (d *Doc) applyClearSummaryLocked(op Op) Collection {
	d.lastStampForSlot[slotKey(op.Kind, op.Key)] = stampOf(op)
	if _, ok := d.summaries[op.Key]; !ok {
		return ""
	}
	delete(d.summaries, op.Key)
	return CollectionSummaries
}

func (d *Doc) applyPutQuestionsLocked(op Op) Collection {
	d.lastStampForSlot[slotKey(op.Kind, op.Key)] = stampOf(op)
	rec, ok := op.Payload.(types.QuestionsRecord)
	if !ok {
		return ""
	}
	existing, has := d.questions[op.Key]
	if has && existing.Timestamp >= rec.Timestamp {
		return ""
	}
	d.questions[op.Key] = rec
	return CollectionQuestions
}

func (d *Doc) applySetChronicleLocked(op Op) Collection {
	d.lastStampForSlot[slotKey(op.Kind, op.Key)] = stampOf(op)
	c, ok := op.Payload.(types.Chronicle)
	if !ok {
		return ""
	}
	d.chronicle = c
	return CollectionChronicle
}
