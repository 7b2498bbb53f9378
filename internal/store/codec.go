package store

import (
	"encoding/json"
	"fmt"

	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// wireOp is Op's on-the-wire shape: Payload is deferred as raw JSON until
// Kind tells DecodeOp which concrete type to decode it into.
type wireOp struct {
	ReplicaID string          `json:"replica_id"`
	Counter   uint64          `json:"counter"`
	Kind      OpKind          `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EncodeOp serializes op as a single JSON line for the local durable log
// and the relay's update-broadcast wire format.
func EncodeOp(op Op) ([]byte, error) {
	var raw json.RawMessage
	if op.Payload != nil {
		b, err := json.Marshal(op.Payload)
		if err != nil {
			return nil, fmt.Errorf("store: encode op payload: %w", err)
		}
		raw = b
	}
	return json.Marshal(wireOp{
		ReplicaID: op.ReplicaID,
		Counter:   op.Counter,
		Kind:      op.Kind,
		Key:       op.Key,
		Payload:   raw,
	})
}

// DecodeOp reverses EncodeOp, reconstructing the concrete payload type
// EncodeOp was given for op.Kind.
func DecodeOp(data []byte) (Op, error) {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return Op{}, fmt.Errorf("store: decode op: %w", err)
	}

	op := Op{ReplicaID: w.ReplicaID, Counter: w.Counter, Kind: w.Kind, Key: w.Key}
	if len(w.Payload) == 0 {
		return op, nil
	}

	switch w.Kind {
	case OpSetField:
		// SetField's payload is one of two shapes; try the character-field
		// shape first since it is the more specific of the two (non-empty
		// Field), falling back to settings.
		var cf characterFieldPayload
		if err := json.Unmarshal(w.Payload, &cf); err == nil && cf.Field != "" {
			op.Payload = cf
			return op, nil
		}
		var sp settingsPayload
		if err := json.Unmarshal(w.Payload, &sp); err != nil {
			return Op{}, fmt.Errorf("store: decode set-field payload: %w", err)
		}
		op.Payload = sp
	case OpAppendEntry:
		var e types.Entry
		if err := json.Unmarshal(w.Payload, &e); err != nil {
			return Op{}, fmt.Errorf("store: decode append-entry payload: %w", err)
		}
		op.Payload = e
	case OpUpdateEntry:
		var p EntryPatch
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return Op{}, fmt.Errorf("store: decode update-entry payload: %w", err)
		}
		op.Payload = p
	case OpPutSummary:
		var rec types.SummaryRecord
		if err := json.Unmarshal(w.Payload, &rec); err != nil {
			return Op{}, fmt.Errorf("store: decode put-summary payload: %w", err)
		}
		op.Payload = rec
	case OpPutQuestions:
		var rec types.QuestionsRecord
		if err := json.Unmarshal(w.Payload, &rec); err != nil {
			return Op{}, fmt.Errorf("store: decode put-questions payload: %w", err)
		}
		op.Payload = rec
	case OpSetChronicle:
		var c types.Chronicle
		if err := json.Unmarshal(w.Payload, &c); err != nil {
			return Op{}, fmt.Errorf("store: decode set-chronicle payload: %w", err)
		}
		op.Payload = c
	}
	return op, nil
}
