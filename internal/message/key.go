package message

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Key derives the idempotency key for a logical send: a SHA-256 hex digest
// over the author, the sorted recipient set, the trimmed text, and the
// creation timestamp (milliseconds). Identical logical sends yield the same
// key regardless of recipient order or surrounding whitespace in the text;
// any other difference changes the key.
//
// The key is a dedup token for callers, not a secret, and this function does
// not itself enforce at-most-once writes.
func Key(author string, recipients []string, text string, at int64) string {
	sorted := make([]string, len(recipients))
	copy(sorted, recipients)
	sort.Strings(sorted)

	h := sha256.New()
	writeField(h, author)
	for _, r := range sorted {
		writeField(h, r)
	}
	writeField(h, strings.TrimSpace(text))
	writeField(h, strconv.FormatInt(at, 10))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField appends a field with a NUL terminator so adjacent fields cannot
// collide by concatenation.
func writeField(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
	_, _ = w.Write([]byte{0})
}
