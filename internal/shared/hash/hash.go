package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	gohash "hash"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"
)

// Hasher computes stable content fingerprints
type Hasher struct {
	algorithm Algorithm
}

// NewHasher creates a new hasher with the specified algorithm.
// Unknown algorithms fall back to SHA256.
func NewHasher(algorithm Algorithm) *Hasher {
	switch algorithm {
	case SHA256, BLAKE2b:
	default:
		algorithm = SHA256
	}
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Algorithm returns the algorithm in use
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) new() gohash.Hash {
	if h.algorithm == BLAKE2b {
		d, err := blake2b.New256(nil)
		if err == nil {
			return d
		}
	}
	return sha256.New()
}

// Hash computes a hex digest of data
func (h *Hasher) Hash(data []byte) string {
	d := h.new()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// HashParts hashes an ordered list of byte slices. Each part is length
// prefixed so ("ab","c") and ("a","bc") never collide.
func (h *Hasher) HashParts(parts ...[]byte) string {
	d := h.new()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		d.Write(size[:])
		d.Write(p)
	}
	return hex.EncodeToString(d.Sum(nil))
}

// Frame joins parts into one slice, each prefixed with its length, so the
// result can be passed where a single payload is expected without parts
// bleeding into each other
func Frame(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += 8 + len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = binary.BigEndian.AppendUint64(out, uint64(len(p)))
		out = append(out, p...)
	}
	return out
}

// HashMap hashes a string map independent of iteration order
func (h *Hasher) HashMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([][]byte, 0, 2*len(keys))
	for _, k := range keys {
		parts = append(parts, []byte(k), []byte(m[k]))
	}
	return h.HashParts(parts...)
}
