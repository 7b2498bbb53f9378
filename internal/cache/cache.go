// Package cache implements C4, the fingerprint-keyed summary cache: a
// convergent view over the document's summaries sub-collection plus a
// process-local guarantee of at-most-one in-flight build per fingerprint.
//
// Grounded on the teacher repo's go.mod dependency on golang.org/x/sync —
// singleflight.Group gives a build request either a shared pending
// promise or a fresh ticket, the same concern the pack's other repos
// reach for rather than hand-rolling a mutex-guarded map of pending
// channels.
package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/pekka-poukamo/dnd-journal/internal/store"
	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// Cache is the summary cache handle.
type Cache struct {
	doc   *store.Doc
	group singleflight.Group
}

// New constructs a Cache over doc.
func New(doc *store.Doc) *Cache {
	return &Cache{doc: doc}
}

// Exists reports whether a record exists for fp.
func (c *Cache) Exists(fp string) bool {
	return c.doc.SummaryExists(fp)
}

// Get returns the record for fp, if any.
func (c *Cache) Get(fp string) (types.SummaryRecord, bool) {
	return c.doc.GetSummary(fp)
}

// Put writes a record for fp.
func (c *Cache) Put(fp string, rec types.SummaryRecord) {
	c.doc.PutSummary(fp, rec)
}

// Clear removes the record for fp.
func (c *Cache) Clear(fp string) {
	c.doc.ClearSummary(fp)
}

// ClearAll removes every summary record.
func (c *Cache) ClearAll() {
	c.doc.ClearAllSummaries()
}

// BuildFunc produces a fresh SummaryRecord for a fingerprint that is
// either missing or being explicitly rebuilt.
type BuildFunc func(ctx context.Context) (types.SummaryRecord, error)

// GetOrBuild returns the cached record for fp if present; otherwise it
// calls build, coalescing concurrent callers for the same fp into a
// single in-flight call, writes the result into the document, and
// returns it. A build error is returned to every coalesced caller and
// nothing is written to the cache.
func (c *Cache) GetOrBuild(ctx context.Context, fp string, build BuildFunc) (types.SummaryRecord, error) {
	if rec, ok := c.doc.GetSummary(fp); ok {
		return rec, nil
	}

	v, err, _ := c.group.Do(fp, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// completed a build for this fp while we were queued to enter Do.
		if rec, ok := c.doc.GetSummary(fp); ok {
			return rec, nil
		}
		rec, err := build(ctx)
		if err != nil {
			return types.SummaryRecord{}, err
		}
		c.doc.PutSummary(fp, rec)
		return rec, nil
	})
	if err != nil {
		return types.SummaryRecord{}, err
	}
	return v.(types.SummaryRecord), nil
}

// Ticket lets a caller join or start a single in-flight build for a
// fingerprint without handing GetOrBuild a build function up front.
type Ticket struct {
	fp    string
	group *singleflight.Group
}

// AcquireBuild returns a ticket for fp. Call Do on it to run (or join) the
// single in-flight build for that fingerprint.
func (c *Cache) AcquireBuild(fp string) *Ticket {
	return &Ticket{fp: fp, group: &c.group}
}

// Do runs fn under this ticket's dedup key and returns its result to every
// concurrent caller coalesced onto the same fingerprint. It does not write
// the result into the cache.
func (t *Ticket) Do(fn func() (types.SummaryRecord, error)) (types.SummaryRecord, error, bool) {
	v, err, shared := t.group.Do(t.fp, func() (any, error) {
		return fn()
	})
	if err != nil {
		return types.SummaryRecord{}, err, shared
	}
	return v.(types.SummaryRecord), nil, shared
}
