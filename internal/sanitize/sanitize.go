// Package sanitize provides identifier sanitization and free-text scrubbing.
//
// Vector store backends (Qdrant, chromem) accept collection names matching
// ^[a-z0-9_]{1,64}$; Identifier and CollectionName map arbitrary
// operator-supplied strings into that space deterministically. Scrub (see
// prompt.go) removes prompt-injection patterns from text that is
// concatenated into a generation prompt.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength is the backend limit on collection name length.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the "_<8-char-hash>" suffix that
	// keeps truncated identifiers unique.
	HashSuffixLength = 9

	// DefaultIdentifier stands in when sanitization leaves nothing.
	DefaultIdentifier = "default"
)

// Identifier maps s into the collection-name alphabet: lowercased, every
// run of invalid characters becomes one underscore, no leading or trailing
// underscores, at most MaxIdentifierLength characters. Over-long inputs are
// truncated with a hash suffix so distinct inputs stay distinct. An input
// that sanitizes to nothing yields DefaultIdentifier.
//
//	"Acme Corp!"  -> "acme_corp"
//	"user@ex.com" -> "user_ex_com"
//	"!!!"         -> "default"
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.ToLower(s) {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		if !valid || r == '_' {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

// truncateWithHash shortens s to MaxIdentifierLength, replacing the tail
// with "_<8-char-hash>" of the full string so two long inputs sharing a
// prefix do not collide.
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:])[:HashSuffixLength-1]

	head := strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_")
	return head + suffix
}

// CollectionName derives a valid backend collection name from an
// operator-supplied base and a fixed suffix:
//
//	CollectionName("Acme Corp!", "chunks") -> "acme_corp_chunks"
//
// The result always matches ^[a-z0-9_]{1,64}$.
func CollectionName(base, suffix string) string {
	name := Identifier(base)
	if suffix != "" {
		name += "_" + suffix
	}
	if len(name) > MaxIdentifierLength {
		name = truncateWithHash(name)
	}
	return name
}
