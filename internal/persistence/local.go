// Package persistence implements C2, the Persistence & Sync Adapter: a
// local durable append-only op-log plus an optional WebSocket relay for
// cross-replica sync.
//
// Grounded on the teacher repo's cmd/bd/jsonl_lock.go (gofrs/flock guarding
// concurrent access to a line-oriented append-only file) for the local
// store, and internal/coop/watcher.go (gorilla/websocket with
// exponential-backoff reconnect) for the relay client.
package persistence

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/pekka-poukamo/dnd-journal/internal/store"
)

// ErrPersistenceUnavailable is returned when the local log cannot be read
// or written (disk full, permission denied, lock unavailable).
var ErrPersistenceUnavailable = fmt.Errorf("persistence: unavailable")

const lockTimeout = 10 * time.Second
const lockPollInterval = 25 * time.Millisecond

// Local is the local durable op-log: one JSON object per line, appended to
// under an exclusive file lock so a daemon process and a CLI invocation
// never interleave writes.
type Local struct {
	dir      string
	logPath  string
	lockPath string

	mu sync.Mutex
}

// NewLocal constructs a Local store rooted at dir, which is created if
// absent.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrPersistenceUnavailable, dir, err)
	}
	return &Local{
		dir:      dir,
		logPath:  filepath.Join(dir, "journal.jsonl"),
		lockPath: filepath.Join(dir, ".journal.lock"),
	}, nil
}

// Load reads every op recorded so far, in append order. A missing log
// file is treated as an empty log (first run), not an error.
func (l *Local) Load(ctx context.Context) ([]store.Op, error) {
	lock := flock.New(l.lockPath)
	if err := acquireShared(ctx, lock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	defer lock.Unlock()

	f, err := os.Open(l.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistenceUnavailable, l.logPath, err)
	}
	defer f.Close()

	var ops []store.Op
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		op, err := store.DecodeOp(line)
		if err != nil {
			// A torn write at the tail (process killed mid-append) decodes
			// as a parse failure on the last line; recovery stops there
			// rather than failing the whole load, since every earlier line
			// is still a valid prefix of the log.
			break
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return ops, fmt.Errorf("%w: scan %s: %v", ErrPersistenceUnavailable, l.logPath, err)
	}
	return ops, nil
}

// Append durably records ops, one JSON line each, under an exclusive
// lock. Appends are atomic per-call: either every op in the batch is
// written or (on error) none are assumed durable.
func (l *Local) Append(ctx context.Context, ops []store.Op) error {
	if len(ops) == 0 {
		return nil
	}

	lock := flock.New(l.lockPath)
	if err := acquireExclusive(ctx, lock); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrPersistenceUnavailable, l.logPath, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, op := range ops {
		data, err := store.EncodeOp(op)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrPersistenceUnavailable, l.logPath, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrPersistenceUnavailable, l.logPath, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrPersistenceUnavailable, l.logPath, err)
	}
	return f.Sync()
}

// Hydrate loads the durable log and merges it into doc. Call once at
// startup before serving any local writes.
func (l *Local) Hydrate(ctx context.Context, doc *store.Doc) error {
	ops, err := l.Load(ctx)
	if err != nil {
		return err
	}
	doc.Merge(ops)
	return nil
}

func acquireExclusive(ctx context.Context, lock *flock.Flock) error {
	return acquireWithRetry(ctx, lock, true)
}

func acquireShared(ctx context.Context, lock *flock.Flock) error {
	return acquireWithRetry(ctx, lock, false)
}

func acquireWithRetry(ctx context.Context, lock *flock.Flock, exclusive bool) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	for {
		var locked bool
		var err error
		if exclusive {
			locked, err = lock.TryLock()
		} else {
			locked, err = lock.TryRLock()
		}
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for lock %s", lock.Path())
		case <-time.After(lockPollInterval):
		}
	}
}
