// Package digest implements the content hash used to identify every tree
// node stored in astraea. A digest is the SHA3-512 of a node's canonical
// encoding; it is the sole identity of a persisted value.
package digest

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Size is the length in bytes of a Digest.
const Size = 64

// HexLength is the length of a Digest's hexadecimal string form.
const HexLength = Size * 2

// Digest is a 512-bit content hash. Equality is bytewise.
type Digest [Size]byte

// Zero is the all-zero digest, occasionally useful as a sentinel in tests.
var Zero Digest

// Hash computes the SHA3-512 digest of input.
func Hash(input []byte) Digest {
	var d Digest
	sum := sha3.Sum512(input)
	copy(d[:], sum[:])
	return d
}

// String returns the 128-character lowercase hexadecimal representation.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ToBytes returns a copy of the digest's raw bytes.
func (d Digest) ToBytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])
	return out
}

// FromBytes builds a Digest from exactly Size bytes.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("digest: expected %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ParseHex parses a 128-character hexadecimal string into a Digest.
func ParseHex(s string) (Digest, error) {
	var d Digest
	if len(s) != HexLength {
		return d, fmt.Errorf("digest: expected %d hex characters, got %d", HexLength, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: malformed hex string: %w", err)
	}
	copy(d[:], decoded)
	return d, nil
}
