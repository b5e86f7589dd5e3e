package crypto

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

var (
	pedersenOnce sync.Once
	pedersenH    *Point
)

// PedersenH returns the value generator H used by amount commitments.
// Its discrete log with respect to G is unknown (hash-to-point).
func PedersenH() *Point {
	pedersenOnce.Do(func() {
		pedersenH = HashToPoint("umbra.pedersen.H")
	})
	return pedersenH
}

// CommitTo computes the Pedersen commitment value*H + blinding*G.
// Commitments are additively homomorphic, which is what lets the builder
// balance inputs against outputs plus fee without revealing values.
func CommitTo(value uint64, blinding *Scalar) *Point {
	var buf [ScalarSize]byte
	binary.BigEndian.PutUint64(buf[ScalarSize-8:], value)
	var v Scalar
	v.s.SetByteSlice(buf[:])
	return v.Mult(PedersenH()).Add(blinding.BaseMult())
}

// AmountSecrets are the per-output secrets derived from the txout shared
// secret: the masks hiding the value and token id, the commitment
// blinding, and the memo authentication key.
type AmountSecrets struct {
	ValueMask   uint64
	TokenIDMask uint64
	Blinding    *Scalar
	MemoKey     [32]byte
}

// DeriveAmountSecrets expands the shared secret into the amount secrets
// via HKDF-BLAKE3.
func DeriveAmountSecrets(sharedSecret *Point) (*AmountSecrets, error) {
	r := hkdf.New(func() hash.Hash { return blake3.New() }, sharedSecret.Bytes(), nil, []byte("umbra.amount.secrets"))

	var buf [80]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("derive amount secrets: %w", err)
	}

	blinding, err := NewScalarFromBytes(buf[16:48])
	if err != nil {
		// A zero HKDF block is effectively impossible; fall back to hashing.
		blinding = ScalarFromHash("umbra.amount.blinding", sharedSecret.Bytes())
	}

	secrets := &AmountSecrets{
		ValueMask:   binary.LittleEndian.Uint64(buf[0:8]),
		TokenIDMask: binary.LittleEndian.Uint64(buf[8:16]),
		Blinding:    blinding,
	}
	copy(secrets.MemoKey[:], buf[48:80])
	return secrets, nil
}
