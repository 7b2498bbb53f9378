// Package fingerprint builds the canonical cache-key strings the summary
// cache (C4) and question generator (C8) key their records on, plus the
// stable content digests that back them.
//
// Grounded on internal/idgen's base36/sha256 hash-id approach (teacher
// repo): a stable serializer over sorted/fixed-order inputs feeding a
// SHA-256 digest, base64-encoded for the questions fingerprint's
// cache-key alphabet.
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/pekka-poukamo/dnd-journal/internal/types"
)

// Entry returns the fingerprint for a single journal entry's summary.
func Entry(id string) string {
	return "entry:" + id
}

// CharacterFieldFP returns the fingerprint for a character field's summary.
func CharacterFieldFP(field types.CharacterField) string {
	return "character:" + string(field)
}

// Part returns the fingerprint for a part's summary.
func Part(index int) string {
	return fmt.Sprintf("journal:part:%d", index)
}

// PartTitle returns the fingerprint for a part's generated title.
func PartTitle(index int) string {
	return fmt.Sprintf("journal:part:%d:title", index)
}

// PartEntries returns the fingerprint under which a part's ordered
// entry-id list is recorded.
func PartEntries(index int) string {
	return fmt.Sprintf("journal:part:%d:entries", index)
}

// RecentSummary is the fingerprint for the open-tail summary.
const RecentSummary = "journal:recent-summary"

// SoFarLatest is the fingerprint for the cumulative closed-parts summary.
const SoFarLatest = "journal:so-far-latest"

// MetaSummary is the fingerprint for the >10-entries-no-parts fallback
// meta-summary the context builder falls back to before any part exists.
const MetaSummary = "journal:meta-summary"

// AnchorSeq returns the fingerprint for an anchor-pipeline summary.
func AnchorSeq(seq int64) string {
	return fmt.Sprintf("journal:anchor:seq:%d", seq)
}

// Questions returns the fingerprint for a cached question set, given the
// canonical digest of its inputs (see Canonicalize/Digest below).
func Questions(digest string) string {
	return "questions:" + digest
}

// QuestionsContext canonicalizes a character + entry set into a stable
// string, then digests it, for use with Questions. Field and entry order
// never affects the result: character fields are emitted in a fixed order,
// entries are sorted into canonical order first.
func QuestionsContext(character types.Character, entries []types.Entry) string {
	var b strings.Builder
	for _, f := range []types.CharacterField{
		types.FieldName, types.FieldRace, types.FieldClass,
		types.FieldBackstory, types.FieldNotes,
	} {
		b.WriteString(string(f))
		b.WriteByte('=')
		b.WriteString(character.Get(f))
		b.WriteByte('\n')
	}

	ordered := types.SortEntries(entries)
	for _, e := range ordered {
		fmt.Fprintf(&b, "%s|%s|%d\n", e.ID, e.Content, e.Timestamp)
	}

	return Digest(b.String())
}

// Digest returns a stable, URL-safe base64 SHA-256 digest of s, used as the
// opaque component of fingerprints that must not leak raw content (e.g.
// Questions).
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// CanonicalizeSettings produces a stable, sorted "key=value" serialization
// of a settings map, used when settings must be folded into a digest (e.g.
// diagnostics snapshots). Not used for cache fingerprints directly, but
// follows the same sorted-keys, fixed-field-order discipline any
// fingerprinting scheme here needs to stay independent of map iteration
// order.
func CanonicalizeSettings(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return b.String()
}
