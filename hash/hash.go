// Package hash defines the content address used throughout cairn: a
// 256-bit BLAKE3 digest. Two roles are tracked only by convention, not by
// separate Go types (see DESIGN.md, "polymorphism over hash owners") —
// hash-of-Block and hash-of-Archive are both plain Hash values, produced
// by different constructors below.
package hash

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

// Size is the byte length of a Hash.
const Size = 32

// Hash is a 256-bit BLAKE3 digest.
type Hash [Size]byte

// Zero is the all-zero hash. Empty files carry a nil root hash, not Zero.
var Zero Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Compare orders two hashes lexicographically by byte value.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// Bytes returns the raw digest bytes.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String renders the hash as lowercase hex, the form used in blob keys.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short renders the first n hex characters of the hash, used for the
// CLI's short-hash arguments.
func (h Hash) Short(n int) string {
	s := h.String()
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// Parse decodes a full 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf("hash: invalid length %d, want %d", len(s), Size*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hash: invalid hex %q: %w", s, err)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// OfLeaf computes hash-of-Block for a leaf: BLAKE3 of the plaintext.
func OfLeaf(plaintext []byte) Hash {
	return Hash(blake3.Sum256(plaintext))
}

// OfBranch computes hash-of-Block for a branch: BLAKE3 of the
// concatenated child hashes, in order.
func OfBranch(children []Hash) Hash {
	buf := make([]byte, 0, len(children)*Size)
	for _, c := range children {
		buf = append(buf, c[:]...)
	}
	return Hash(blake3.Sum256(buf))
}

// OfArchive computes hash-of-Archive: BLAKE3 of the created timestamp
// (RFC3339 with nanoseconds, in UTC) concatenated with the little-endian u64 size.
func OfArchive(created time.Time, size uint64) Hash {
	ts := created.UTC().Format(time.RFC3339Nano)
	buf := make([]byte, 0, len(ts)+8)
	buf = append(buf, ts...)
	buf = binary.LittleEndian.AppendUint64(buf, size)
	return Hash(blake3.Sum256(buf))
}
