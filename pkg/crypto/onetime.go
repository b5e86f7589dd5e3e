package crypto

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain-separation tags for the onetime-key math.
const (
	tagOnetime       = "umbra.onetime"
	tagSubaddress    = "umbra.subaddr"
	tagKeyImageBase  = "umbra.keyimage.base"
	tagConfirmation  = "umbra.confirmation"
)

// KeyImage uniquely and unlinkably marks an output as spent on chain.
// It is the compressed point x*Hp(x*G) for onetime private key x.
type KeyImage [PointSize]byte

// SharedSecret computes the txout shared secret priv*Pub. The sender calls
// it with (txPrivate, recipientViewPublic); the recipient with
// (viewPrivate, txPublicKey). Both arrive at the same point.
func SharedSecret(priv *Scalar, pub *Point) *Point {
	return priv.Mult(pub)
}

// onetimeScalar is Hs(sharedSecret), the scalar that blinds the
// recipient's subaddress spend key into the onetime target key.
func onetimeScalar(sharedSecret *Point) *Scalar {
	return ScalarFromHash(tagOnetime, sharedSecret.Bytes())
}

// OnetimeTargetKey constructs the target key of an output sent to the
// given subaddress spend public key: Hs(r*ViewPub)*G + SpendPub.
// Only public recipient keys are needed, so view-only builders can
// construct outputs.
func OnetimeTargetKey(txPrivate *Scalar, recipientView, recipientSpend *Point) *Point {
	secret := SharedSecret(txPrivate, recipientView)
	return onetimeScalar(secret).BaseMult().Add(recipientSpend)
}

// RecoverSubaddressSpendKey recovers the subaddress spend public key an
// output was addressed to: TargetKey - Hs(viewPriv*R)*G. If the result
// matches one of the account's assigned subaddress spend keys, the output
// belongs to that account.
func RecoverSubaddressSpendKey(viewPrivate *Scalar, targetKey, txPublicKey *Point) *Point {
	secret := SharedSecret(viewPrivate, txPublicKey)
	return targetKey.Sub(onetimeScalar(secret).BaseMult())
}

// RecoverOnetimePrivateKey recovers the private key of a received output:
// Hs(viewPriv*R) + subaddressSpendPrivate. Requires the spend private key,
// so view-only accounts cannot call this.
func RecoverOnetimePrivateKey(txPublicKey *Point, viewPrivate, subaddressSpendPrivate *Scalar) *Scalar {
	secret := SharedSecret(viewPrivate, txPublicKey)
	return onetimeScalar(secret).Add(subaddressSpendPrivate)
}

// SubaddressScalar derives the per-index offset Hs(viewPriv || index) that
// turns the root spend key into a subaddress spend key. It depends only on
// the view private key, so view-only accounts can enumerate their
// subaddress spend public keys.
func SubaddressScalar(viewPrivate *Scalar, index uint64) *Scalar {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return ScalarFromHash(tagSubaddress, viewPrivate.Bytes(), idx[:])
}

// NewKeyImage derives the key image of the given onetime private key.
// The image is stable: the same key always produces the same image.
func NewKeyImage(onetimePrivate *Scalar) KeyImage {
	public := onetimePrivate.BaseMult()
	base := HashToPoint(tagKeyImageBase, public.Bytes())
	var ki KeyImage
	copy(ki[:], onetimePrivate.Mult(base).Bytes())
	return ki
}

// ConfirmationNumber is the sender-retained commitment to an output's
// shared secret. Revealing it lets the sender prove participation in the
// transaction to the recipient.
type ConfirmationNumber [32]byte

// NewConfirmationNumber derives the confirmation number for an output's
// shared secret.
func NewConfirmationNumber(sharedSecret *Point) ConfirmationNumber {
	return ConfirmationNumber(HashParts(tagConfirmation, sharedSecret.Bytes()))
}

// Validate checks the confirmation number against the recipient's view of
// the shared secret (viewPriv * txPublicKey).
func (c ConfirmationNumber) Validate(viewPrivate *Scalar, txPublicKey *Point) bool {
	want := NewConfirmationNumber(SharedSecret(viewPrivate, txPublicKey))
	return c == want
}

// IsZero reports whether the confirmation number is unset.
func (c ConfirmationNumber) IsZero() bool {
	return c == ConfirmationNumber{}
}

// IsZero reports whether the key image is unset.
func (k KeyImage) IsZero() bool {
	return k == KeyImage{}
}

// String returns the hex-encoded key image.
func (k KeyImage) String() string {
	return hex.EncodeToString(k[:])
}

// Equal reports whether two key images are identical.
func (k KeyImage) Equal(o KeyImage) bool {
	return bytes.Equal(k[:], o[:])
}

// MarshalJSON encodes the key image as a hex string.
func (k KeyImage) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key image.
func (k *KeyImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*k = KeyImage{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid key image hex: %w", err)
	}
	if len(decoded) != PointSize {
		return fmt.Errorf("key image must be %d bytes, got %d", PointSize, len(decoded))
	}
	copy(k[:], decoded)
	return nil
}
