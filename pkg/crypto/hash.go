// Package crypto provides the cryptographic primitives for the Umbra
// wallet: BLAKE3 hashing, secp256k1 scalar/point arithmetic, onetime key
// and subaddress recovery, key images, Pedersen amount commitments, and a
// compact key-image ring signature.
package crypto

import (
	"github.com/zeebo/blake3"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of a domain-separation tag and any
// number of byte slices. Every hash used in a protocol role goes through
// this so that roles can never collide.
func HashParts(tag string, parts ...[]byte) types.Hash {
	h := blake3.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Digest().Read(out[:])
	return out
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
