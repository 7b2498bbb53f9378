// Package idgen generates short, content-derived ids for journal entries.
// An id is deterministic given its inputs (replica id, content, timestamp
// and nonce). The replica id is part of the hash, so two replicas that
// append the same content at the same timestamp get different ids; a
// caller that does hit a collision bumps nonce and tries again.
//
// Grounded on the teacher repo's internal hash-id generator: base36
// encoding over a truncated sha256 digest, prefixed with a short tag.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EntryLength is the base36 digit count used for journal entry ids.
const EntryLength = 7

// EncodeBase36 converts data to a base36 string padded/truncated to length,
// keeping the least-significant digits if data encodes to more than length.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}

	str := b.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// byteWidth returns how many bytes of the digest to feed EncodeBase36 for
// a given desired output length; matches the bit budget of the teacher's
// hash-id generator (roughly 5.2 bits per base36 digit rounded up to a
// byte boundary, capped at 5 bytes).
func byteWidth(length int) int {
	switch {
	case length <= 3:
		return 2
	case length == 4:
		return 3
	case length <= 6:
		return 4
	default:
		return 5
	}
}

// NewEntryID derives a journal entry id from replicaID (the author), the
// entry content, its timestamp, and nonce (bumped by the caller on a
// collision against an existing id in the same journal).
func NewEntryID(replicaID, content string, timestamp time.Time, nonce int) string {
	return newHashID("e", replicaID, content, timestamp, EntryLength, nonce)
}

func newHashID(prefix, replicaID, content string, timestamp time.Time, length, nonce int) string {
	raw := fmt.Sprintf("%s|%s|%d|%d", replicaID, content, timestamp.UnixNano(), nonce)
	digest := sha256.Sum256([]byte(raw))
	short := EncodeBase36(digest[:byteWidth(length)], length)
	return fmt.Sprintf("%s-%s", prefix, short)
}
