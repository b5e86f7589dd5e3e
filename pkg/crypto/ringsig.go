package crypto

import (
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Ring signature errors.
var (
	ErrEmptyRing      = errors.New("ring is empty")
	ErrBadRealIndex   = errors.New("real index out of ring bounds")
	ErrRingKeyMismatch = errors.New("onetime key does not match ring member at real index")
)

const tagRingChallenge = "umbra.ring.challenge"

// RingSignature is a key-image linkable ring signature over a ring of
// onetime target keys. It proves the signer owns one ring member without
// revealing which, and binds the spend to the member's key image.
type RingSignature struct {
	C0        [ScalarSize]byte   `json:"c0"`
	Responses [][ScalarSize]byte `json:"responses"`
	KeyImage  KeyImage           `json:"key_image"`
}

// challenge computes c_{i+1} = Hs(m, L, R).
func ringChallenge(message types.Hash, l, r *Point) *Scalar {
	return ScalarFromHash(tagRingChallenge, message[:], l.Bytes(), r.Bytes())
}

// SignRing produces a ring signature on message for the ring of target
// keys, where ring[realIndex] is the signer's onetime public key and
// onetimePrivate its private key.
func SignRing(message types.Hash, ring []*Point, realIndex int, onetimePrivate *Scalar) (*RingSignature, error) {
	n := len(ring)
	if n == 0 {
		return nil, ErrEmptyRing
	}
	if realIndex < 0 || realIndex >= n {
		return nil, ErrBadRealIndex
	}
	if !onetimePrivate.BaseMult().Equal(ring[realIndex]) {
		return nil, ErrRingKeyMismatch
	}

	keyImage := NewKeyImage(onetimePrivate)
	imagePoint, err := ParsePoint(keyImage[:])
	if err != nil {
		return nil, fmt.Errorf("parse key image: %w", err)
	}

	alpha, err := RandomScalar()
	if err != nil {
		return nil, err
	}

	challenges := make([]*Scalar, n)
	responses := make([]*Scalar, n)

	// Seed the chain at the real index with the commitment nonce.
	realBase := HashToPoint(tagKeyImageBase, ring[realIndex].Bytes())
	challenges[(realIndex+1)%n] = ringChallenge(message, alpha.BaseMult(), alpha.Mult(realBase))

	// Walk the ring with random responses for the decoys.
	for off := 1; off < n; off++ {
		i := (realIndex + off) % n
		responses[i], err = RandomScalar()
		if err != nil {
			return nil, err
		}
		base := HashToPoint(tagKeyImageBase, ring[i].Bytes())
		l := responses[i].BaseMult().Add(challenges[i].Mult(ring[i]))
		r := responses[i].Mult(base).Add(challenges[i].Mult(imagePoint))
		challenges[(i+1)%n] = ringChallenge(message, l, r)
	}

	// Close the ring: r_real = alpha - c_real * x.
	responses[realIndex] = alpha.Sub(challenges[realIndex].Mul(onetimePrivate))

	sig := &RingSignature{
		Responses: make([][ScalarSize]byte, n),
		KeyImage:  keyImage,
	}
	copy(sig.C0[:], challenges[0].Bytes())
	for i, r := range responses {
		copy(sig.Responses[i][:], r.Bytes())
	}
	return sig, nil
}

// Verify checks the signature against the message and ring, recomputing
// the challenge chain and confirming it closes on C0.
func (sig *RingSignature) Verify(message types.Hash, ring []*Point) bool {
	n := len(ring)
	if n == 0 || len(sig.Responses) != n {
		return false
	}
	imagePoint, err := ParsePoint(sig.KeyImage[:])
	if err != nil {
		return false
	}

	c, err := NewScalarFromBytes(sig.C0[:])
	if err != nil {
		return false
	}
	c0 := c

	for i := 0; i < n; i++ {
		r, err := NewScalarFromBytes(sig.Responses[i][:])
		if err != nil {
			return false
		}
		base := HashToPoint(tagKeyImageBase, ring[i].Bytes())
		l := r.BaseMult().Add(c.Mult(ring[i]))
		rr := r.Mult(base).Add(c.Mult(imagePoint))
		c = ringChallenge(message, l, rr)
	}
	return c.Equal(c0)
}
