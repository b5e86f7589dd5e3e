package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ScalarSize is the length of a serialized scalar in bytes.
const ScalarSize = 32

// PointSize is the length of a serialized (compressed) curve point in bytes.
const PointSize = 33

// Scalar is a secp256k1 group-order scalar. It is the private half of
// every key in the wallet: view keys, spend keys, onetime keys, blindings.
type Scalar struct {
	s secp256k1.ModNScalar
}

// NewScalarFromBytes builds a scalar from a 32-byte big-endian value,
// reducing it mod the group order.
func NewScalarFromBytes(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, fmt.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(b))
	}
	var s Scalar
	s.s.SetByteSlice(b)
	if s.s.IsZero() {
		return nil, fmt.Errorf("scalar is zero")
	}
	return &s, nil
}

// ScalarFromHash derives a scalar by hashing the tagged input and reducing
// mod the group order. This is the hash-to-scalar used throughout the
// onetime-key and commitment math.
func ScalarFromHash(tag string, parts ...[]byte) *Scalar {
	h := HashParts(tag, parts...)
	var s Scalar
	s.s.SetByteSlice(h[:])
	if s.s.IsZero() {
		// Vanishingly unlikely; re-hash so callers never see zero.
		h = Hash(h[:])
		s.s.SetByteSlice(h[:])
	}
	return &s
}

// ZeroScalar returns the zero scalar, used as the conventional blinding
// of fee commitments.
func ZeroScalar() *Scalar {
	return &Scalar{}
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (*Scalar, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate scalar: %w", err)
	}
	return &Scalar{s: priv.Key}, nil
}

// Bytes returns the 32-byte big-endian serialization.
func (s *Scalar) Bytes() []byte {
	b := s.s.Bytes()
	return b[:]
}

// Add returns s + o.
func (s *Scalar) Add(o *Scalar) *Scalar {
	var r Scalar
	r.s.Set(&s.s)
	r.s.Add(&o.s)
	return &r
}

// Sub returns s - o.
func (s *Scalar) Sub(o *Scalar) *Scalar {
	var neg Scalar
	neg.s.Set(&o.s)
	neg.s.Negate()
	return s.Add(&neg)
}

// Mul returns s * o.
func (s *Scalar) Mul(o *Scalar) *Scalar {
	var r Scalar
	r.s.Set(&s.s)
	r.s.Mul(&o.s)
	return &r
}

// Negate returns -s.
func (s *Scalar) Negate() *Scalar {
	var r Scalar
	r.s.Set(&s.s)
	r.s.Negate()
	return &r
}

// IsZero reports whether the scalar is zero.
func (s *Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Equal reports whether two scalars are equal.
func (s *Scalar) Equal(o *Scalar) bool {
	return s.s.Equals(&o.s)
}

// BaseMult returns s*G.
func (s *Scalar) BaseMult() *Point {
	var p Point
	secp256k1.ScalarBaseMultNonConst(&s.s, &p.p)
	return &p
}

// Mult returns s*P.
func (s *Scalar) Mult(p *Point) *Point {
	var r Point
	secp256k1.ScalarMultNonConst(&s.s, &p.p, &r.p)
	return &r
}

// Point is a secp256k1 curve point. It is the public half of every key:
// view/spend public keys, txout public and target keys, key image points,
// commitments.
type Point struct {
	p secp256k1.JacobianPoint
}

// ParsePoint decodes a 33-byte compressed point.
func ParsePoint(b []byte) (*Point, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse point: %w", err)
	}
	var p Point
	pub.AsJacobian(&p.p)
	return &p, nil
}

// Bytes returns the 33-byte compressed serialization.
func (p *Point) Bytes() []byte {
	var a secp256k1.JacobianPoint
	a.Set(&p.p)
	a.ToAffine()
	return secp256k1.NewPublicKey(&a.X, &a.Y).SerializeCompressed()
}

// Add returns p + q.
func (p *Point) Add(q *Point) *Point {
	var r Point
	secp256k1.AddNonConst(&p.p, &q.p, &r.p)
	return &r
}

// Sub returns p - q.
func (p *Point) Sub(q *Point) *Point {
	var negQ secp256k1.JacobianPoint
	negQ.Set(&q.p)
	negQ.Y.Negate(1)
	negQ.Y.Normalize()
	var r Point
	secp256k1.AddNonConst(&p.p, &negQ, &r.p)
	return &r
}

// Equal reports whether two points are equal.
func (p *Point) Equal(q *Point) bool {
	var a, b secp256k1.JacobianPoint
	a.Set(&p.p)
	a.ToAffine()
	b.Set(&q.p)
	b.ToAffine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y) && a.Z.Equals(&b.Z)
}

// HashToPoint maps tagged input onto the curve by incrementing a counter
// until the hash decodes as a valid x coordinate. The resulting point has
// an unknown discrete log with respect to G.
func HashToPoint(tag string, parts ...[]byte) *Point {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.LittleEndian.PutUint32(ctr[:], i)
		h := HashParts(tag, append(append([][]byte{}, parts...), ctr[:])...)

		var x secp256k1.FieldVal
		if x.SetByteSlice(h[:]) {
			continue // Overflows the field prime.
		}
		var y secp256k1.FieldVal
		if !secp256k1.DecompressY(&x, false, &y) {
			continue // Not on the curve.
		}
		y.Normalize()

		var p Point
		p.p.X.Set(&x)
		p.p.Y.Set(&y)
		p.p.Z.SetInt(1)
		return &p
	}
}
