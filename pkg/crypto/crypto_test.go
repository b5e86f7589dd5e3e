package crypto

import (
	"testing"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

func TestScalarRoundTrip(t *testing.T) {
	s, err := RandomScalar()
	if err != nil {
		t.Fatalf("RandomScalar: %v", err)
	}
	parsed, err := NewScalarFromBytes(s.Bytes())
	if err != nil {
		t.Fatalf("NewScalarFromBytes: %v", err)
	}
	if !s.Equal(parsed) {
		t.Error("scalar changed across serialize/parse")
	}
}

func TestNewScalarFromBytesRejectsZero(t *testing.T) {
	if _, err := NewScalarFromBytes(make([]byte, ScalarSize)); err == nil {
		t.Error("expected error for zero scalar")
	}
}

func TestScalarArithmetic(t *testing.T) {
	a, _ := RandomScalar()
	b, _ := RandomScalar()

	if !a.Add(b).Sub(b).Equal(a) {
		t.Error("a + b - b != a")
	}
	if !a.Add(a.Negate()).IsZero() {
		t.Error("a + (-a) != 0")
	}
}

func TestPointRoundTrip(t *testing.T) {
	s, _ := RandomScalar()
	p := s.BaseMult()

	parsed, err := ParsePoint(p.Bytes())
	if err != nil {
		t.Fatalf("ParsePoint: %v", err)
	}
	if !p.Equal(parsed) {
		t.Error("point changed across serialize/parse")
	}
}

func TestPointAddSub(t *testing.T) {
	a, _ := RandomScalar()
	b, _ := RandomScalar()
	p := a.BaseMult()
	q := b.BaseMult()

	if !p.Add(q).Sub(q).Equal(p) {
		t.Error("P + Q - Q != P")
	}
	// (a+b)*G == a*G + b*G
	if !a.Add(b).BaseMult().Equal(p.Add(q)) {
		t.Error("scalar addition does not distribute over base mult")
	}
}

func TestHashToPointDeterministic(t *testing.T) {
	p1 := HashToPoint("test.tag", []byte("data"))
	p2 := HashToPoint("test.tag", []byte("data"))
	if !p1.Equal(p2) {
		t.Error("HashToPoint not deterministic")
	}
	p3 := HashToPoint("test.tag", []byte("other"))
	if p1.Equal(p3) {
		t.Error("different input mapped to same point")
	}
}

func TestSharedSecretSymmetry(t *testing.T) {
	txPriv, _ := RandomScalar()
	viewPriv, _ := RandomScalar()

	senderSide := SharedSecret(txPriv, viewPriv.BaseMult())
	recipientSide := SharedSecret(viewPriv, txPriv.BaseMult())
	if !senderSide.Equal(recipientSide) {
		t.Error("sender and recipient derive different shared secrets")
	}
}

func TestOnetimeKeyRecovery(t *testing.T) {
	viewPriv, _ := RandomScalar()
	spendPriv, _ := RandomScalar()
	txPriv, _ := RandomScalar()

	const index = uint64(3)
	subSpendPriv := spendPriv.Add(SubaddressScalar(viewPriv, index))
	subSpendPub := subSpendPriv.BaseMult()

	target := OnetimeTargetKey(txPriv, viewPriv.BaseMult(), subSpendPub)
	txPub := txPriv.BaseMult()

	// The recipient recovers the subaddress the output was sent to.
	recovered := RecoverSubaddressSpendKey(viewPriv, target, txPub)
	if !recovered.Equal(subSpendPub) {
		t.Error("recovered subaddress spend key does not match")
	}

	// And the onetime private key opens the target key.
	onetime := RecoverOnetimePrivateKey(txPub, viewPriv, subSpendPriv)
	if !onetime.BaseMult().Equal(target) {
		t.Error("recovered onetime private key does not open target key")
	}
}

func TestKeyImageStable(t *testing.T) {
	x, _ := RandomScalar()
	if !NewKeyImage(x).Equal(NewKeyImage(x)) {
		t.Error("key image not stable for the same key")
	}
	y, _ := RandomScalar()
	if NewKeyImage(x).Equal(NewKeyImage(y)) {
		t.Error("different keys produced the same image")
	}
}

func TestCommitmentOpens(t *testing.T) {
	b1, _ := RandomScalar()
	b2, _ := RandomScalar()

	c1 := CommitTo(100, b1)
	c2 := CommitTo(100, b1)
	if !c1.Equal(c2) {
		t.Error("commitment not deterministic")
	}
	if c1.Equal(CommitTo(101, b1)) {
		t.Error("different values committed to same point")
	}
	if c1.Equal(CommitTo(100, b2)) {
		t.Error("different blindings committed to same point")
	}
}

func TestCommitmentHomomorphic(t *testing.T) {
	b1, _ := RandomScalar()
	b2, _ := RandomScalar()

	// C(a, r) + C(b, s) == C(a+b, r+s)
	sum := CommitTo(30, b1).Add(CommitTo(12, b2))
	if !sum.Equal(CommitTo(42, b1.Add(b2))) {
		t.Error("commitments are not additively homomorphic")
	}
}

func TestAmountSecretsDeterministic(t *testing.T) {
	s, _ := RandomScalar()
	secret := s.BaseMult()

	a, err := DeriveAmountSecrets(secret)
	if err != nil {
		t.Fatalf("DeriveAmountSecrets: %v", err)
	}
	b, err := DeriveAmountSecrets(secret)
	if err != nil {
		t.Fatalf("DeriveAmountSecrets: %v", err)
	}
	if a.ValueMask != b.ValueMask || a.TokenIDMask != b.TokenIDMask || !a.Blinding.Equal(b.Blinding) || a.MemoKey != b.MemoKey {
		t.Error("amount secrets not deterministic")
	}
}

func TestConfirmationNumber(t *testing.T) {
	txPriv, _ := RandomScalar()
	viewPriv, _ := RandomScalar()

	conf := NewConfirmationNumber(SharedSecret(txPriv, viewPriv.BaseMult()))
	if !conf.Validate(viewPriv, txPriv.BaseMult()) {
		t.Error("confirmation number failed validation by recipient")
	}

	otherView, _ := RandomScalar()
	if conf.Validate(otherView, txPriv.BaseMult()) {
		t.Error("confirmation number validated against wrong view key")
	}
}

func makeRing(t *testing.T, size int) ([]*Point, []*Scalar) {
	t.Helper()
	ring := make([]*Point, size)
	privs := make([]*Scalar, size)
	for i := range ring {
		s, err := RandomScalar()
		if err != nil {
			t.Fatalf("RandomScalar: %v", err)
		}
		privs[i] = s
		ring[i] = s.BaseMult()
	}
	return ring, privs
}

func TestRingSignatureRoundTrip(t *testing.T) {
	ring, privs := makeRing(t, 11)
	message := types.Hash{1, 2, 3}

	for _, realIndex := range []int{0, 5, 10} {
		sig, err := SignRing(message, ring, realIndex, privs[realIndex])
		if err != nil {
			t.Fatalf("SignRing(real=%d): %v", realIndex, err)
		}
		if !sig.Verify(message, ring) {
			t.Errorf("signature with real index %d failed verification", realIndex)
		}
		if sig.KeyImage != NewKeyImage(privs[realIndex]) {
			t.Errorf("signature key image mismatch for real index %d", realIndex)
		}
	}
}

func TestRingSignatureRejectsWrongMessage(t *testing.T) {
	ring, privs := makeRing(t, 5)
	sig, err := SignRing(types.Hash{1}, ring, 2, privs[2])
	if err != nil {
		t.Fatalf("SignRing: %v", err)
	}
	if sig.Verify(types.Hash{2}, ring) {
		t.Error("signature verified against a different message")
	}
}

func TestRingSignatureRejectsWrongRing(t *testing.T) {
	ring, privs := makeRing(t, 5)
	sig, err := SignRing(types.Hash{1}, ring, 0, privs[0])
	if err != nil {
		t.Fatalf("SignRing: %v", err)
	}

	other, _ := makeRing(t, 5)
	if sig.Verify(types.Hash{1}, other) {
		t.Error("signature verified against a different ring")
	}
}

func TestRingSignatureErrors(t *testing.T) {
	ring, privs := makeRing(t, 3)
	if _, err := SignRing(types.Hash{}, nil, 0, privs[0]); err == nil {
		t.Error("expected error for empty ring")
	}
	if _, err := SignRing(types.Hash{}, ring, 3, privs[0]); err == nil {
		t.Error("expected error for out-of-range real index")
	}
	// Private key that does not open ring[1].
	if _, err := SignRing(types.Hash{}, ring, 1, privs[0]); err == nil {
		t.Error("expected error for mismatched real key")
	}
}
