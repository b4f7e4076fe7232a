// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 keyed digest of object content.
type Hash [32]byte

// contentDomainKey is "artefacta.content" zero-padded to 32 bytes.
// Changing it invalidates every published object.
var contentDomainKey = [32]byte{
	'a', 'r', 't', 'e', 'f', 'a', 'c', 't', 'a', '.', 'c', 'o', 'n', 't', 'e', 'n',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashContent returns the content hash of data.
func HashContent(data []byte) Hash {
	hasher := NewHasher()
	hasher.Write(data)
	return hasher.Sum()
}

// Hasher computes a content hash incrementally and counts the bytes
// written.
type Hasher struct {
	state *blake3.Hasher
	size  int64
}

// NewHasher returns a Hasher in the content domain.
func NewHasher() *Hasher {
	state, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("artifact: blake3 keyed hasher: " + err.Error())
	}
	return &Hasher{state: state}
}

// Write implements io.Writer. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	h.state.Write(p)
	h.size += int64(len(p))
	return len(p), nil
}

// Sum returns the hash of everything written so far.
func (h *Hasher) Sum() Hash {
	var out Hash
	h.state.Sum(out[:0])
	return out
}

// Size returns the number of bytes written so far.
func (h *Hasher) Size() int64 { return h.size }

// IsZero reports whether h is the all-zero hash, which no content
// produces in practice and which marks an absent hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the lowercase hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 12 hex digits, for log lines.
func (h Hash) Short() string { return h.String()[:12] }

// ParseHash parses a 64-digit hex string.
func ParseHash(text string) (Hash, error) {
	var h Hash
	if len(text) != hex.EncodedLen(len(h)) {
		return Hash{}, fmt.Errorf("hash %q: want %d hex digits, got %d", text, hex.EncodedLen(len(h)), len(text))
	}
	if _, err := hex.Decode(h[:], []byte(text)); err != nil {
		return Hash{}, fmt.Errorf("hash %q: %w", text, err)
	}
	return h, nil
}

// MarshalText implements encoding.TextMarshaler. The zero hash encodes
// as the empty string.
func (h Hash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
