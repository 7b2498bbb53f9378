package store

// OpKind enumerates the mutation kinds recorded in a Doc's op-log. Each Op
// is commutative and idempotent under replay, which is what lets two Docs
// merge without coordination: ordered sequence, mapping, and
// nested-structure sub-collections all reduce to the same (kind, key,
// stamp) conflict resolution.
type OpKind int

const (
	OpSetField   OpKind = iota // character field, settings key
	OpAppendEntry
	OpUpdateEntry
	OpDeleteEntry
	OpPutSummary
	OpClearSummary
	OpPutQuestions
	OpSetChronicle
)

// Op is a single stamped mutation. Stamp orders ops for merge: higher
// Counter wins; ties break on ReplicaID so merge is deterministic
// regardless of arrival order (last-writer-wins).
type Op struct {
	ReplicaID string
	Counter   uint64
	Kind      OpKind
	Key       string // entry id / field name / settings key / fingerprint
	Payload   any
}

// Stamp returns a comparable (Counter, ReplicaID) pair used to decide
// which of two conflicting Ops wins a merge.
func (o Op) Stamp() (uint64, string) {
	return o.Counter, o.ReplicaID
}

// stamp is the minimal (replicaID, counter) pair recorded per slot to
// resolve future last-writer-wins comparisons without rescanning the log.
type stamp struct {
	replicaID string
	counter   uint64
}

func stampOf(op Op) stamp {
	return stamp{replicaID: op.ReplicaID, counter: op.Counter}
}

// stampLess reports whether a should lose to b under last-writer-wins.
func stampLess(a, b Op) bool {
	ac, ar := a.Stamp()
	bc, br := b.Stamp()
	if ac != bc {
		return ac < bc
	}
	return ar < br
}

// nextStamp advances and returns this replica's local Lamport counter.
// Must be called with d.mu held.
func (d *Doc) nextStamp() uint64 {
	d.counter++
	return d.counter
}

// Log returns a snapshot copy of the op-log accumulated so far, for the
// persistence/sync adapter's state-vector exchange and update broadcast.
func (d *Doc) Log() []Op {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Op, len(d.log))
	copy(out, d.log)
	return out
}

// LogSince returns ops with Counter strictly greater than since, for this
// replica's own log — used to compute a delta to broadcast after a local
// state-vector exchange.
func (d *Doc) LogSince(since uint64) []Op {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Op
	for _, op := range d.log {
		if op.ReplicaID == d.replicaID && op.Counter > since {
			out = append(out, op)
		}
	}
	return out
}

// StateVector returns the highest Counter seen per replica. This is the
// summary a relay peer exchanges before sending deltas.
func (d *Doc) StateVector() map[string]uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sv := make(map[string]uint64)
	for _, op := range d.log {
		if op.Counter > sv[op.ReplicaID] {
			sv[op.ReplicaID] = op.Counter
		}
	}
	return sv
}

// Merge applies a batch of remote ops, skipping any already seen (by
// ReplicaID+Counter) and resolving conflicting writes to the same
// (kind,key) by last-writer-wins. It is safe to call with ops this replica
// already has; Merge is idempotent.
func (d *Doc) Merge(ops []Op) {
	if len(ops) == 0 {
		return
	}

	d.mu.Lock()
	seen := make(map[string]bool, len(d.log))
	for _, op := range d.log {
		seen[opID(op)] = true
	}

	changed := map[Collection]map[string]bool{}
	for _, op := range ops {
		if op.Counter > d.counter {
			d.counter = op.Counter
		}
		if seen[opID(op)] {
			continue
		}
		if !d.shouldApplyLocked(op) {
			d.log = append(d.log, op)
			seen[opID(op)] = true
			continue
		}
		col := d.applyLocked(op, OriginRemote)
		d.log = append(d.log, op)
		seen[opID(op)] = true
		if col != "" {
			if changed[col] == nil {
				changed[col] = map[string]bool{}
			}
			changed[col][op.Key] = true
		}
	}
	d.mu.Unlock()

	for col, keys := range changed {
		ks := make([]string, 0, len(keys))
		for k := range keys {
			ks = append(ks, k)
		}
		d.notify(Change{Collection: col, Keys: ks, Origin: OriginRemote})
	}
}

func opID(op Op) string {
	return op.ReplicaID + ":" + itoa(op.Counter)
}

func itoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// shouldApplyLocked decides, for a remote op touching a single scalar slot
// (field/settings/summary/questions), whether it beats whatever is already
// recorded for that slot under last-writer-wins. Structural ops on the
// journal (append/update/delete) are not subject to LWW at the slot level:
// appends are always merged in (entries are identified by unique id, so a
// concurrent append from two replicas never collides), and
// update/delete do use LWW against the entry's last-touching stamp.
func (d *Doc) shouldApplyLocked(op Op) bool {
	switch op.Kind {
	case OpAppendEntry:
		_, exists := d.journalByID[op.Key]
		return !exists
	case OpUpdateEntry, OpDeleteEntry:
		last, ok := d.lastStampForEntry[op.Key]
		if !ok {
			return true
		}
		return stampLess(Op{ReplicaID: last.replicaID, Counter: last.counter}, op)
	default:
		last, ok := d.lastStampForSlot[slotKey(op.Kind, op.Key)]
		if !ok {
			return true
		}
		return stampLess(Op{ReplicaID: last.replicaID, Counter: last.counter}, op)
	}
}

func slotKey(kind OpKind, key string) string {
	return itoa(uint64(kind)) + "|" + key
}
