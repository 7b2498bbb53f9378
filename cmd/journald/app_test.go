package main

import (
	"context"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/config"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func newTestConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.ReplicaID = "replica-test"
	return cfg
}

func TestNewAppWiresEveryComponent(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := newApp(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close(context.Background())

	if a.doc == nil || a.local == nil || a.relay == nil || a.sv == nil {
		t.Fatalf("expected core components wired, got %+v", a)
	}
	if a.cache == nil || a.gw == nil || a.engine == nil || a.anchor == nil || a.qgen == nil || a.orch == nil {
		t.Fatalf("expected derived-state components wired, got %+v", a)
	}
	if a.nc != nil {
		t.Fatalf("expected no NATS connection without nats-url configured")
	}
}

func TestNewAppSeedsSettingsFromConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.OpenAIAPIKey = "sk-from-config"
	cfg.AIEnabled = true

	a, err := newApp(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close(context.Background())

	if a.sv.OpenAIAPIKey() != "sk-from-config" {
		t.Fatalf("expected API key seeded from config, got %q", a.sv.OpenAIAPIKey())
	}
	if !a.sv.AIEnabled() {
		t.Fatalf("expected AI enabled seeded from config")
	}
}

func TestPersistOnlyWritesUnpersistedOps(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := newApp(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close(context.Background())

	if err := a.persist(context.Background()); err != nil {
		t.Fatalf("persist (no-op): %v", err)
	}

	a.doc.SetCharacterField(types.FieldName, "Elowen")
	if err := a.persist(context.Background()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	for replicaID, counter := range a.doc.StateVector() {
		if a.persistedSV[replicaID] != counter {
			t.Fatalf("expected persistedSV to track the document's state vector after persist, got %v want %v", a.persistedSV, a.doc.StateVector())
		}
	}

	// A second persist with no new ops must be a no-op, not re-append.
	before := a.persistedSV[a.doc.ReplicaID()]
	if err := a.persist(context.Background()); err != nil {
		t.Fatalf("persist (second, no-op): %v", err)
	}
	if a.persistedSV[a.doc.ReplicaID()] != before {
		t.Fatalf("expected persistedSV unchanged on a no-op persist")
	}
}

func TestCloseIsSafeWithoutNATS(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := newApp(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	a.close(context.Background())
}
