// Package settings implements C3, a typed read/write view over the
// document's settings sub-collection: API key, enablement flag, sync URL,
// and the anchor pipeline's progress counter.
//
// Grounded on the teacher repo's internal/config/local_config.go
// (validate-before-write, typed struct over a loosely-typed source) and
// internal/config/decision.go's pattern of surfacing a reconnect hook on
// write.
package settings

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// Defaults applied when a settings key has never been written.
const (
	DefaultAIEnabled      = false
	DefaultOpenAIAPIKey   = ""
	DefaultSyncServerURL  = ""
	DefaultLatestAnchorSeq = int64(0)
)

// ErrInvalidSyncURL is returned when a sync-server-url write fails
// validation.
var ErrInvalidSyncURL = fmt.Errorf("settings: invalid sync url")

// ReconnectHook is invoked synchronously after a successful SetSyncServerURL
// write, letting the persistence/sync adapter (C2) tear down and
// re-establish its relay connection.
type ReconnectHook func(newURL string)

// View is the typed settings projection over a *store.Doc.
type View struct {
	doc     *store.Doc
	onSyncURLChange ReconnectHook
}

// New constructs a View over doc. onSyncURLChange may be nil.
func New(doc *store.Doc, onSyncURLChange ReconnectHook) *View {
	return &View{doc: doc, onSyncURLChange: onSyncURLChange}
}

func (v *View) raw() map[string]string {
	return v.doc.GetSettings()
}

// AIEnabled returns the ai-enabled flag, defaulting to false.
func (v *View) AIEnabled() bool {
	s, ok := v.raw()[string(types.SettingAIEnabled)]
	if !ok {
		return DefaultAIEnabled
	}
	return s == "true"
}

// OpenAIAPIKey returns the configured API key, defaulting to "".
func (v *View) OpenAIAPIKey() string {
	if s, ok := v.raw()[string(types.SettingOpenAIAPIKey)]; ok {
		return s
	}
	return DefaultOpenAIAPIKey
}

// SyncServerURL returns the configured relay URL, defaulting to "".
func (v *View) SyncServerURL() string {
	if s, ok := v.raw()[string(types.SettingSyncServerURL)]; ok {
		return s
	}
	return DefaultSyncServerURL
}

// LatestAnchorSeq returns the anchor pipeline's progress counter,
// defaulting to 0.
func (v *View) LatestAnchorSeq() int64 {
	s, ok := v.raw()[string(types.SettingLatestAnchorSeq)]
	if !ok {
		return DefaultLatestAnchorSeq
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return DefaultLatestAnchorSeq
	}
	return n
}

// SetAIEnabled writes the ai-enabled flag.
func (v *View) SetAIEnabled(enabled bool) {
	v.doc.SetSetting(string(types.SettingAIEnabled), strconv.FormatBool(enabled))
}

// SetOpenAIAPIKey writes the API key.
func (v *View) SetOpenAIAPIKey(key string) {
	v.doc.SetSetting(string(types.SettingOpenAIAPIKey), key)
}

// SetSyncServerURL validates and writes the relay URL, then invokes the
// reconnect hook. An empty string is always valid (it disables sync).
// Non-empty values must be well-formed ws:// or wss:// URLs.
func (v *View) SetSyncServerURL(raw string) error {
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidSyncURL, raw)
		}
	}
	v.doc.SetSetting(string(types.SettingSyncServerURL), raw)
	if v.onSyncURLChange != nil {
		v.onSyncURLChange(raw)
	}
	return nil
}

// SetLatestAnchorSeq writes the anchor pipeline's progress counter. The
// caller (internal/parts's anchor pipeline) is responsible for enforcing
// monotone advancement; this setter only persists the value.
func (v *View) SetLatestAnchorSeq(seq int64) {
	v.doc.SetSetting(string(types.SettingLatestAnchorSeq), strconv.FormatInt(seq, 10))
}
