// Package rowhash computes the deterministic content fingerprint of a row,
// used as the optimistic-concurrency token. Two rows with identical data
// columns always hash identically, regardless of map iteration order or
// attribution metadata.
package rowhash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// Prefix marks every hash produced by this package.
const Prefix = "0x"

// Hash fingerprints the data columns of a row. Attribution columns and
// internal metadata columns contribute nothing; absent columns contribute
// nothing. The digest is SHA-256 over the sorted "name|canonical" pairs
// joined with "|", hex-encoded with the fixed prefix.
func Hash(row schema.Row) string {
	names := make([]string, 0, len(row))
	for name := range row {
		if schema.IsMetadataColumn(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
		b.WriteByte('|')
		b.WriteString(row[name].Canonical())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Prefix + hex.EncodeToString(sum[:])
}
