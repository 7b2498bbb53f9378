package main

import (
	"context"
	"encoding/json"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pekka-poukamo/dnd-journal/internal/doctor"
	"github.com/pekka-poukamo/dnd-journal/internal/idgen"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP bridge a frontend talks to, plus the background pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig, flagDebug)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		a.orch.Start(ctx)

		stopPersist := a.startPeriodicPersist(ctx, 2*time.Second)
		defer stopPersist()

		if appConfig.MetricsAddr != "" {
			go a.serveDebugPprof(appConfig.MetricsAddr)
		}

		srv := &http.Server{Addr: serveAddr, Handler: a.buildMux()}
		a.log.Info("serving", zap.String("addr", serveAddr))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8777", "address the HTTP bridge listens on")
	rootCmd.AddCommand(serveCmd)
}

// serveDebugPprof runs a separate net/http/pprof listener on addr, used
// for operator profiling; never reachable from the bridge's own mux.
func (a *app) serveDebugPprof(addr string) {
	if err := http.ListenAndServe(addr, nil); err != nil && err != http.ErrServerClosed {
		a.log.Warn("debug pprof listener", zap.Error(err))
	}
}

// startPeriodicPersist flushes newly recorded ops to the local durable log
// on a fixed interval, catching mutations the background pipeline (C9)
// makes that no HTTP request triggers directly. Returns a stop function.
func (a *app) startPeriodicPersist(ctx context.Context, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := a.persist(ctx); err != nil {
					a.log.Warn("periodic persist", zap.Error(err))
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func (a *app) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/character", a.handleCharacter)
	mux.HandleFunc("/api/journal", a.handleJournalCollection)
	mux.HandleFunc("/api/journal/", a.handleJournalItem)
	mux.HandleFunc("/api/chronicle", a.handleChronicle)
	mux.HandleFunc("/api/questions", a.handleQuestions)
	mux.HandleFunc("/api/settings/sync-server-url", a.handleSyncServerURL)
	mux.HandleFunc("/api/doctor", a.handleDoctor)

	return mux
}

func (a *app) handleCharacter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httpJSON(w, http.StatusOK, a.doc.GetCharacter())
	case http.MethodPost:
		var body struct {
			Field types.CharacterField `json:"field"`
			Value string                `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		a.doc.SetCharacterField(body.Field, body.Value)
		a.persistOrWarn(r.Context())
		httpJSON(w, http.StatusOK, a.doc.GetCharacter())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleJournalCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httpJSON(w, http.StatusOK, types.SortEntries(a.doc.GetJournal()))
	case http.MethodPost:
		var body struct {
			Content   string `json:"content"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if body.Timestamp == 0 {
			body.Timestamp = time.Now().UnixMilli()
		}

		ts := time.UnixMilli(body.Timestamp)
		id := idgen.NewEntryID(a.doc.ReplicaID(), body.Content, ts, 0)
		for nonce := 1; ; nonce++ {
			if _, exists := a.doc.GetEntry(id); !exists {
				break
			}
			id = idgen.NewEntryID(a.doc.ReplicaID(), body.Content, ts, nonce)
		}

		entry := types.Entry{ID: id, Content: body.Content, Timestamp: body.Timestamp}
		a.doc.AppendEntry(entry)
		a.persistOrWarn(r.Context())
		httpJSON(w, http.StatusCreated, entry)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleJournalItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/journal/")
	if id == "" {
		http.Error(w, "entry id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, ok := a.doc.GetEntry(id)
		if !ok {
			httpJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		httpJSON(w, http.StatusOK, entry)
	case http.MethodPatch:
		var body struct {
			Content   *string `json:"content"`
			Timestamp *int64  `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		a.doc.UpdateEntry(id, store.EntryPatch{Content: body.Content, Timestamp: body.Timestamp})
		a.persistOrWarn(r.Context())
		entry, _ := a.doc.GetEntry(id)
		httpJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		a.doc.DeleteEntry(id)
		a.persistOrWarn(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleChronicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	httpJSON(w, http.StatusOK, a.doc.GetChronicle())
}

func (a *app) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	rec, err := a.qgen.Get(r.Context(), force)
	if err != nil {
		httpJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	a.persistOrWarn(r.Context())
	httpJSON(w, http.StatusOK, rec)
}

func (a *app) handleSyncServerURL(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httpJSON(w, http.StatusOK, map[string]string{"url": a.sv.SyncServerURL()})
	case http.MethodPost:
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := a.sv.SetSyncServerURL(body.URL); err != nil {
			httpJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		a.persistOrWarn(r.Context())
		httpJSON(w, http.StatusOK, map[string]string{"url": body.URL})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleDoctor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report := doctor.Run(r.Context(), a.doc, a.local, a.sv, a.gw, a.relay.Connected())
	httpJSON(w, http.StatusOK, report)
}

func (a *app) persistOrWarn(ctx context.Context) {
	if err := a.persist(ctx); err != nil {
		a.log.Warn("persist", zap.Error(err))
	}
}
