package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pekka-poukamo/dnd-journal/internal/logging"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
)

// ErrInvalidSyncURL mirrors settings.ErrInvalidSyncURL for callers that
// only import this package; Relay itself trusts its caller to have
// already validated relayURL (settings.View.SetSyncServerURL does).
var ErrInvalidSyncURL = fmt.Errorf("persistence: invalid sync url")

// stateVectorMessage and opsMessage are the two wire message shapes
// exchanged with the relay: a state vector for initial reconciliation,
// then a stream of ops.
type stateVectorMessage struct {
	Type  string            `json:"type"`
	State map[string]uint64 `json:"state"`
}

type opsMessage struct {
	Type string            `json:"type"`
	Ops  []json.RawMessage `json:"ops"`
}

// Relay maintains a WebSocket connection to a sync server, exchanging
// state vectors on connect and then streaming ops bidirectionally for as
// long as the connection holds.
type Relay struct {
	doc *store.Doc
	log *zap.Logger

	mu            sync.Mutex
	url           string
	conn          *websocket.Conn
	cancel        context.CancelFunc
	stopped       chan struct{}
	lastBroadcast uint64
	unregister    []store.Unregister
}

// NewRelay constructs a Relay bound to doc and registers observers that
// broadcast local mutations to whatever connection is currently live.
// Call SetURL (directly, or via settings.View's reconnect hook) to start
// or change the connection. logger may be nil.
func NewRelay(doc *store.Doc, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Relay{doc: doc, log: logging.Named(logger, "relay")}
	onLocalChange := func(ch store.Change) {
		if ch.Origin == store.OriginLocal {
			r.broadcastNew()
		}
	}
	r.unregister = []store.Unregister{
		doc.ObserveCharacter(onLocalChange),
		doc.ObserveJournal(onLocalChange),
		doc.ObserveSettings(onLocalChange),
		doc.ObserveSummaries(onLocalChange),
		doc.ObserveChronicle(onLocalChange),
	}
	return r
}

// broadcastNew sends any locally-originated ops not yet pushed to the
// current connection. A no-op if nothing is connected; the next
// connection's initial state exchange will pick up the backlog instead.
func (r *Relay) broadcastNew() {
	r.mu.Lock()
	conn := r.conn
	since := r.lastBroadcast
	r.mu.Unlock()
	if conn == nil {
		return
	}

	delta := r.doc.LogSince(since)
	if len(delta) == 0 {
		return
	}
	if err := r.sendOps(conn, delta); err != nil {
		r.log.Error("broadcast", zap.Error(err))
		return
	}
	r.mu.Lock()
	r.lastBroadcast = delta[len(delta)-1].Counter
	r.mu.Unlock()
}

// SetURL tears down any existing connection and, if url is non-empty,
// starts a new one in the background. This is the method settings.View's
// ReconnectHook wires up.
func (r *Relay) SetURL(url string) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	if url == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.url = url
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, url)
}

// Connected reports whether a WebSocket connection is currently live.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Close tears down the relay connection permanently and unregisters its
// document observers.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	for _, u := range r.unregister {
		u()
	}
}

// run owns the reconnect loop: connect, exchange state, stream ops until
// the connection drops or ctx is cancelled, then back off and retry.
func (r *Relay) run(ctx context.Context, rawURL string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever; only ctx cancellation stops us

	defer close(r.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.connectAndServe(ctx, rawURL); err != nil {
			r.log.Warn("relay connection", zap.String("url", rawURL), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (r *Relay) connectAndServe(ctx context.Context, rawURL string) error {
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSyncURL, err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := r.exchangeState(conn); err != nil {
		return fmt.Errorf("state exchange: %w", err)
	}

	return r.readLoop(ctx, conn)
}

// exchangeState sends this replica's state vector, computes the delta
// against whatever state vector the peer reports, and sends that delta.
func (r *Relay) exchangeState(conn *websocket.Conn) error {
	sv := r.doc.StateVector()
	if err := conn.WriteJSON(stateVectorMessage{Type: "state", State: sv}); err != nil {
		return fmt.Errorf("send state vector: %w", err)
	}

	var peer stateVectorMessage
	if err := conn.ReadJSON(&peer); err != nil {
		return fmt.Errorf("read peer state vector: %w", err)
	}

	since := peer.State[r.doc.ReplicaID()]
	delta := r.doc.LogSince(since)
	if err := r.sendOps(conn, delta); err != nil {
		return err
	}

	r.mu.Lock()
	if len(delta) > 0 {
		r.lastBroadcast = delta[len(delta)-1].Counter
	} else {
		r.lastBroadcast = since
	}
	r.mu.Unlock()
	return nil
}

func (r *Relay) sendOps(conn *websocket.Conn, ops []store.Op) error {
	if len(ops) == 0 {
		return nil
	}
	raw := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		data, err := store.EncodeOp(op)
		if err != nil {
			return fmt.Errorf("encode op: %w", err)
		}
		raw = append(raw, data)
	}
	return conn.WriteJSON(opsMessage{Type: "ops", Ops: raw})
}

func (r *Relay) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg opsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if msg.Type != "ops" || len(msg.Ops) == 0 {
			continue
		}

		ops := make([]store.Op, 0, len(msg.Ops))
		for _, raw := range msg.Ops {
			op, err := store.DecodeOp(raw)
			if err != nil {
				r.log.Warn("dropping undecodable op", zap.Error(err))
				continue
			}
			ops = append(ops, op)
		}
		r.doc.Merge(ops)
	}
}
