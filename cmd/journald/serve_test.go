package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(context.Background(), newTestConfig(t), false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.close(context.Background()) })
	return a
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestHandleCharacterGetAndPost(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()

	w := doJSON(t, mux, http.MethodPost, "/api/character", map[string]string{"field": string(types.FieldName), "value": "Elowen"})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/character status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, mux, http.MethodGet, "/api/character", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/character status = %d", w.Code)
	}
	var character types.Character
	if err := json.Unmarshal(w.Body.Bytes(), &character); err != nil {
		t.Fatalf("decode character: %v", err)
	}
	if character.Get(types.FieldName) != "Elowen" {
		t.Fatalf("expected name Elowen, got %q", character.Get(types.FieldName))
	}
}

func TestHandleCharacterMethodNotAllowed(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodDelete, "/api/character", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleJournalCollectionCreateAndList(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()

	w := doJSON(t, mux, http.MethodPost, "/api/journal", map[string]any{"content": "met a dragon", "timestamp": 1000})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/journal status = %d, body = %s", w.Code, w.Body.String())
	}
	var created types.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created entry: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected a generated entry id")
	}

	w = doJSON(t, mux, http.MethodGet, "/api/journal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/journal status = %d", w.Code)
	}
	var list []types.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode journal list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}
}

func TestHandleJournalItemGetUpdateDelete(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()

	w := doJSON(t, mux, http.MethodPost, "/api/journal", map[string]any{"content": "first draft", "timestamp": 1000})
	var created types.Entry
	json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, mux, http.MethodGet, "/api/journal/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/journal/<id> status = %d", w.Code)
	}

	newContent := "revised draft"
	w = doJSON(t, mux, http.MethodPatch, "/api/journal/"+created.ID, map[string]any{"content": newContent})
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated types.Entry
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Content != newContent {
		t.Fatalf("expected updated content %q, got %q", newContent, updated.Content)
	}

	w = doJSON(t, mux, http.MethodDelete, "/api/journal/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}

	w = doJSON(t, mux, http.MethodGet, "/api/journal/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestHandleJournalItemMissingIDIsBadRequest(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodGet, "/api/journal/", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", w.Code)
	}
}

func TestHandleChronicleGet(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodGet, "/api/chronicle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/chronicle status = %d", w.Code)
	}
}

func TestHandleQuestionsUnavailableWithoutAI(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodGet, "/api/questions", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without AI configured, got %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleSyncServerURLGetSetRoundTrip(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()

	w := doJSON(t, mux, http.MethodPost, "/api/settings/sync-server-url", map[string]string{"url": "ws://localhost:9999"})
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, mux, http.MethodGet, "/api/settings/sync-server-url", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["url"] != "ws://localhost:9999" {
		t.Fatalf("expected round-tripped url, got %q", body["url"])
	}
}

func TestHandleSyncServerURLRejectsInvalidScheme(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodPost, "/api/settings/sync-server-url", map[string]string{"url": "http://localhost"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid scheme, got %d", w.Code)
	}
}

func TestHandleDoctorGet(t *testing.T) {
	a := newTestApp(t)
	mux := a.buildMux()
	w := doJSON(t, mux, http.MethodGet, "/api/doctor", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/doctor status = %d", w.Code)
	}
}
