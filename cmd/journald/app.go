package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pekka-poukamo/dnd-journal/internal/cache"
	"github.com/pekka-poukamo/dnd-journal/internal/config"
	"github.com/pekka-poukamo/dnd-journal/internal/llm"
	"github.com/pekka-poukamo/dnd-journal/internal/logging"
	"github.com/pekka-poukamo/dnd-journal/internal/orchestrator"
	"github.com/pekka-poukamo/dnd-journal/internal/parts"
	"github.com/pekka-poukamo/dnd-journal/internal/persistence"
	"github.com/pekka-poukamo/dnd-journal/internal/promptctx"
	"github.com/pekka-poukamo/dnd-journal/internal/questions"
	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/telemetry"
)

// app bundles every component a journald subcommand might need, wired
// together once at startup and hydrated from the local durable log.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	doc    *store.Doc
	local  *persistence.Local
	relay  *persistence.Relay
	sv     *settings.View
	cache  *cache.Cache
	gw     *llm.Gateway
	engine *parts.Engine
	anchor *parts.Anchor
	qgen   *questions.Generator
	orch   *orchestrator.Orchestrator
	tel    *telemetry.Providers
	nc     *nats.Conn

	// persistedSV is the per-replica state vector already durable in the
	// local log (seeded from hydration, advanced by every persist call).
	// Counter alone cannot gate a persist: each replica's Op.Counter is a
	// local sequence, so two replicas' ops collide on the same numbers.
	persistedSV map[string]uint64
}

// newApp constructs every component and hydrates doc from the local
// durable log. The caller is responsible for calling close when done.
func newApp(ctx context.Context, cfg config.Config, debug bool) (*app, error) {
	base, err := logging.New(debug)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	replicaID := cfg.ReplicaID
	if replicaID == "" {
		replicaID = uuid.NewString()
	}

	local, err := persistence.NewLocal(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("build local store: %w", err)
	}

	doc := store.New(replicaID)
	if err := doc.Init(); err != nil {
		return nil, fmt.Errorf("init document: %w", err)
	}
	if err := local.Hydrate(ctx, doc); err != nil {
		return nil, fmt.Errorf("hydrate document: %w", err)
	}
	persistedSV := doc.StateVector()

	relay := persistence.NewRelay(doc, base)
	sv := settings.New(doc, relay.SetURL)

	syncSeeded := false
	if cfg.SyncServerURL != "" && sv.SyncServerURL() == "" {
		if err := sv.SetSyncServerURL(cfg.SyncServerURL); err != nil {
			return nil, fmt.Errorf("seed sync-server-url: %w", err)
		}
		syncSeeded = true
	}
	if cfg.OpenAIAPIKey != "" && sv.OpenAIAPIKey() == "" {
		sv.SetOpenAIAPIKey(cfg.OpenAIAPIKey)
	}
	if cfg.AIEnabled {
		sv.SetAIEnabled(true)
	}
	// SetSyncServerURL above already connected the relay via the reconnect
	// hook; a URL hydrated from a previous run still needs an explicit
	// connect since no write (and thus no hook call) happens for it here.
	if !syncSeeded && sv.SyncServerURL() != "" {
		relay.SetURL(sv.SyncServerURL())
	}

	tel, err := telemetry.New(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("build telemetry: %w", err)
	}

	gwOpts := []llm.Option{llm.WithTelemetry(tel.Meter, tel.Tracer)}
	if cfg.AnthropicModel != "" {
		gwOpts = append(gwOpts, llm.WithModel(cfg.AnthropicModel))
	}
	if cfg.AnthropicBaseURL != "" {
		gwOpts = append(gwOpts, llm.WithBaseURL(cfg.AnthropicBaseURL))
	}
	gw := llm.New(sv, gwOpts...)

	c := cache.New(doc)
	builder := promptctx.New(doc, c, gw)
	engine := parts.New(doc, c, gw)
	anchor := parts.NewAnchor(engine, sv, gw)
	qgen := questions.New(doc, c, builder, gw)
	orch := orchestrator.New(doc, engine, anchor, sv, gw, c, "default", base)

	// Run the parts engine and anchor pipeline once against whatever was
	// just hydrated, so a journal that accumulated entries while this
	// replica was offline has all its full parts closed before serve starts
	// taking new appends, rather than waiting for the next journal mutation
	// to trigger it. Parts already closed without summaries are not
	// re-summarized here.
	if err := engine.Run(ctx); err != nil {
		return nil, fmt.Errorf("initial parts backfill: %w", err)
	}
	if err := anchor.CatchUp(ctx); err != nil {
		return nil, fmt.Errorf("initial anchor catch-up: %w", err)
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats jetstream: %w", err)
		}
		orch.SetJetStream(js)
	}

	return &app{
		cfg:         cfg,
		log:         logging.Named(base, "journald"),
		doc:         doc,
		local:       local,
		relay:       relay,
		sv:          sv,
		cache:       c,
		gw:          gw,
		engine:      engine,
		anchor:      anchor,
		qgen:        qgen,
		orch:        orch,
		tel:         tel,
		nc:          nc,
		persistedSV: persistedSV,
	}, nil
}

// persist appends every op recorded (locally or merged in) since the last
// persist call, then advances the per-replica watermark. journald persists
// eagerly after every mutating subcommand and periodically while serve
// runs, rather than on every single op, since Local.Append already batches
// and fsyncs per call.
func (a *app) persist(ctx context.Context) error {
	var delta []store.Op
	for _, op := range a.doc.Log() {
		if op.Counter > a.persistedSV[op.ReplicaID] {
			delta = append(delta, op)
		}
	}
	if len(delta) == 0 {
		return nil
	}
	if err := a.local.Append(ctx, delta); err != nil {
		return err
	}
	for _, op := range delta {
		if op.Counter > a.persistedSV[op.ReplicaID] {
			a.persistedSV[op.ReplicaID] = op.Counter
		}
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	a.relay.Close()
	if a.orch != nil {
		a.orch.Stop()
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.log.Warn("telemetry shutdown", zap.Error(err))
	}
	a.doc.Close()
}
