// Package keys implements wallet account key material: the view/spend key
// pair, view-only variants, deterministic subaddresses, and mnemonic
// import.
package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Reserved subaddress indexes.
const (
	// MainSubaddressIndex receives ordinary payments.
	MainSubaddressIndex uint64 = 0

	// ChangeSubaddressIndex receives transaction change.
	ChangeSubaddressIndex uint64 = 1

	// DefaultNextSubaddressIndex is the first index available for
	// caller-assigned subaddresses.
	DefaultNextSubaddressIndex uint64 = 2
)

const tagAccountID = "umbra.account.id"

// AccountKey holds the private view and spend keys of a full account.
type AccountKey struct {
	viewPrivate  *crypto.Scalar
	spendPrivate *crypto.Scalar
}

// NewAccountKey builds an account key from its two private scalars.
func NewAccountKey(viewPrivate, spendPrivate *crypto.Scalar) *AccountKey {
	return &AccountKey{viewPrivate: viewPrivate, spendPrivate: spendPrivate}
}

// RandomAccountKey generates a fresh account key. Used mostly in tests.
func RandomAccountKey() (*AccountKey, error) {
	view, err := crypto.RandomScalar()
	if err != nil {
		return nil, err
	}
	spend, err := crypto.RandomScalar()
	if err != nil {
		return nil, err
	}
	return NewAccountKey(view, spend), nil
}

// ViewPrivate returns the private view key.
func (k *AccountKey) ViewPrivate() *crypto.Scalar { return k.viewPrivate }

// SpendPrivate returns the private spend key.
func (k *AccountKey) SpendPrivate() *crypto.Scalar { return k.spendPrivate }

// ViewPublic returns the public view key a*G.
func (k *AccountKey) ViewPublic() *crypto.Point { return k.viewPrivate.BaseMult() }

// SpendPublic returns the public spend key b*G.
func (k *AccountKey) SpendPublic() *crypto.Point { return k.spendPrivate.BaseMult() }

// SubaddressSpendPrivate derives the spend private key of subaddress i:
// b + Hs(a || i).
func (k *AccountKey) SubaddressSpendPrivate(index uint64) *crypto.Scalar {
	return k.spendPrivate.Add(crypto.SubaddressScalar(k.viewPrivate, index))
}

// SubaddressSpendPublic derives the spend public key of subaddress i.
func (k *AccountKey) SubaddressSpendPublic(index uint64) *crypto.Point {
	return k.SubaddressSpendPrivate(index).BaseMult()
}

// Subaddress returns the public address of subaddress i.
func (k *AccountKey) Subaddress(index uint64) *PublicAddress {
	return &PublicAddress{
		ViewPublic:  k.ViewPublic(),
		SpendPublic: k.SubaddressSpendPublic(index),
	}
}

// AccountID derives the stable account id from the public key pair.
func (k *AccountKey) AccountID() types.AccountID {
	return accountID(k.ViewPublic(), k.SpendPublic())
}

// ViewOnly strips the spend private key, leaving a key that can detect
// incoming funds but not sign spends.
func (k *AccountKey) ViewOnly() *ViewAccountKey {
	return &ViewAccountKey{
		viewPrivate: k.viewPrivate,
		spendPublic: k.SpendPublic(),
	}
}

// ViewAccountKey holds the private view key and public spend key of a
// view-only (watch) account.
type ViewAccountKey struct {
	viewPrivate *crypto.Scalar
	spendPublic *crypto.Point
}

// NewViewAccountKey builds a view-only key.
func NewViewAccountKey(viewPrivate *crypto.Scalar, spendPublic *crypto.Point) *ViewAccountKey {
	return &ViewAccountKey{viewPrivate: viewPrivate, spendPublic: spendPublic}
}

// ViewPrivate returns the private view key.
func (k *ViewAccountKey) ViewPrivate() *crypto.Scalar { return k.viewPrivate }

// ViewPublic returns the public view key.
func (k *ViewAccountKey) ViewPublic() *crypto.Point { return k.viewPrivate.BaseMult() }

// SpendPublic returns the public spend key.
func (k *ViewAccountKey) SpendPublic() *crypto.Point { return k.spendPublic }

// SubaddressSpendPublic derives the spend public key of subaddress i.
// The subaddress offset depends only on the view private key, so
// view-only accounts can enumerate their subaddresses.
func (k *ViewAccountKey) SubaddressSpendPublic(index uint64) *crypto.Point {
	return k.spendPublic.Add(crypto.SubaddressScalar(k.viewPrivate, index).BaseMult())
}

// Subaddress returns the public address of subaddress i.
func (k *ViewAccountKey) Subaddress(index uint64) *PublicAddress {
	return &PublicAddress{
		ViewPublic:  k.ViewPublic(),
		SpendPublic: k.SubaddressSpendPublic(index),
	}
}

// AccountID derives the stable account id from the public key pair.
func (k *ViewAccountKey) AccountID() types.AccountID {
	return accountID(k.ViewPublic(), k.spendPublic)
}

func accountID(viewPublic, spendPublic *crypto.Point) types.AccountID {
	return types.AccountID(crypto.HashParts(tagAccountID, viewPublic.Bytes(), spendPublic.Bytes()))
}

// PublicAddress is the public half of a (sub)address: the account view
// public key plus the subaddress spend public key.
type PublicAddress struct {
	ViewPublic  *crypto.Point
	SpendPublic *crypto.Point
}

// Bytes returns the 66-byte serialization (view || spend, compressed).
func (a *PublicAddress) Bytes() []byte {
	out := make([]byte, 0, 2*crypto.PointSize)
	out = append(out, a.ViewPublic.Bytes()...)
	out = append(out, a.SpendPublic.Bytes()...)
	return out
}

// Equal reports whether two addresses are identical.
func (a *PublicAddress) Equal(b *PublicAddress) bool {
	if b == nil {
		return false
	}
	return a.ViewPublic.Equal(b.ViewPublic) && a.SpendPublic.Equal(b.SpendPublic)
}

// String returns the hex-encoded address.
func (a *PublicAddress) String() string {
	return hex.EncodeToString(a.Bytes())
}

// ParsePublicAddress decodes a 66-byte (or hex) address serialization.
func ParsePublicAddress(b []byte) (*PublicAddress, error) {
	if len(b) != 2*crypto.PointSize {
		return nil, fmt.Errorf("address must be %d bytes, got %d", 2*crypto.PointSize, len(b))
	}
	view, err := crypto.ParsePoint(b[:crypto.PointSize])
	if err != nil {
		return nil, fmt.Errorf("address view key: %w", err)
	}
	spend, err := crypto.ParsePoint(b[crypto.PointSize:])
	if err != nil {
		return nil, fmt.Errorf("address spend key: %w", err)
	}
	return &PublicAddress{ViewPublic: view, SpendPublic: spend}, nil
}

// MarshalJSON encodes the address as a hex string.
func (a *PublicAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into an address.
func (a *PublicAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid address hex: %w", err)
	}
	parsed, err := ParsePublicAddress(raw)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}
