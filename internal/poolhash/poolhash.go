// Package poolhash implements the pool's hashing primitives (spec component C2):
// single/streaming SHA-256, Bitcoin double-SHA-256, share-header assembly and the
// fulltest difficulty comparison.
package poolhash

import (
	"crypto/sha256"
	"hash"
)

// Size is the length in bytes of a SHA-256 digest.
const Size = sha256.Size

// Sum256 is single-shot SHA-256, provided so callers never need to reach for
// crypto/sha256 directly and so streaming/single-shot call sites stay symmetric.
func Sum256(data []byte) [Size]byte {
	return sha256.Sum256(data)
}

// Hasher wraps crypto/sha256's streaming hash.Hash for incremental header assembly
// (e.g. writing header fields one at a time before finalizing).
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a fresh streaming SHA-256 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the running hash without mutating it further, matching
// hash.Hash.Sum's append semantics.
func (h *Hasher) Sum() [Size]byte {
	var out [Size]byte
	copy(out[:], h.h.Sum(nil))
	return out
}

// DoubleSha256 computes SHA256(SHA256(data)), the Bitcoin block/share digest.
func DoubleSha256(data []byte) [Size]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// DoubleSha256Streaming computes the same digest as DoubleSha256 but by feeding
// data through the streaming Hasher first; single-shot and streaming must always
// agree byte for byte, and this function exists to let tests exercise that
// invariant against arbitrarily chunked writes.
func DoubleSha256Streaming(chunks ...[]byte) [Size]byte {
	h := NewHasher()
	for _, c := range chunks {
		_, _ = h.Write(c)
	}
	first := h.Sum()
	return sha256.Sum256(first[:])
}

// HeaderSize is the width in bytes of a serialized Bitcoin-style share header:
// version(4) + prevhash(32) + merkle root(32) + ntime(4) + nbits(4) + nonce(4).
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// Header holds the fields assembled into a share header prior to hashing.
// All multi-byte integer fields are already in their on-wire byte order
// (little-endian, per Bitcoin header serialization); callers are responsible for
// endianness conversion before populating this struct.
type Header struct {
	VersionLE    [4]byte
	PrevHashLE   [32]byte
	MerkleRootLE [32]byte
	NtimeLE      [4]byte
	NBitsLE      [4]byte
	NonceLE      [4]byte
}

// Serialize concatenates the header fields in on-wire order.
func (h Header) Serialize() [HeaderSize]byte {
	var out [HeaderSize]byte
	n := 0
	n += copy(out[n:], h.VersionLE[:])
	n += copy(out[n:], h.PrevHashLE[:])
	n += copy(out[n:], h.MerkleRootLE[:])
	n += copy(out[n:], h.NtimeLE[:])
	n += copy(out[n:], h.NBitsLE[:])
	copy(out[n:], h.NonceLE[:])
	return out
}

// HashLE computes the little-endian double-SHA-256 digest of the serialized header,
// exactly as would be compared against a target via Fulltest.
func (h Header) HashLE() [Size]byte {
	serialized := h.Serialize()
	digest := DoubleSha256(serialized[:])
	return reverse(digest)
}

func reverse(b [Size]byte) [Size]byte {
	var out [Size]byte
	for i, v := range b {
		out[Size-1-i] = v
	}
	return out
}

// ComputeMerkleRoot folds a coinbase hash through a merkle branch: at each
// level the coinbase (or its running combination) is always the left leaf,
// combined with the next sibling via double-SHA-256.
func ComputeMerkleRoot(coinbaseHash [Size]byte, branch [][Size]byte) [Size]byte {
	current := coinbaseHash
	for _, sibling := range branch {
		combined := make([]byte, 0, Size*2)
		combined = append(combined, current[:]...)
		combined = append(combined, sibling[:]...)
		current = DoubleSha256(combined)
	}
	return current
}

// Fulltest reports whether hashLE, interpreted as a little-endian 256-bit unsigned
// integer, is <= targetLE interpreted the same way. It is monotone: flipping any
// bit of hashLE from 0 to 1 can never turn a false result into true.
func Fulltest(hashLE, targetLE [32]byte) bool {
	// Compare most-significant byte first; in little-endian storage that is the
	// last byte of the array.
	for i := 31; i >= 0; i-- {
		if hashLE[i] != targetLE[i] {
			return hashLE[i] < targetLE[i]
		}
	}
	return true // equal
}
