// Package tx defines the confidential transaction data structures: txouts
// with masked amounts, encrypted memos, membership proofs, and the
// signed/unsigned transaction shapes.
package tx

import (
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

const tagTxoID = "umbra.txo.id"

// TxOut is a single confidential transaction output as it appears on
// chain. Only the recipient's view key can decode the amount; only the
// recipient's spend key can spend it.
type TxOut struct {
	// PublicKey is the per-output transaction public key R = r*G.
	PublicKey []byte `json:"public_key"`

	// TargetKey is the onetime key Hs(r*ViewPub)*G + SpendPub.
	TargetKey []byte `json:"target_key"`

	// Amount is the masked value, token id, and Pedersen commitment.
	Amount MaskedAmount `json:"amount"`

	// Memo is the encrypted memo payload.
	Memo EncryptedMemo `json:"memo"`
}

// MaskedAmount hides an output's value and token id behind masks derived
// from the txout shared secret, alongside the Pedersen commitment they
// must open.
type MaskedAmount struct {
	Commitment    []byte `json:"commitment"`
	MaskedValue   uint64 `json:"masked_value"`
	MaskedTokenID uint64 `json:"masked_token_id"`
}

// NewMaskedAmount masks an amount with the given per-output secrets.
func NewMaskedAmount(secrets *crypto.AmountSecrets, amount types.Amount) MaskedAmount {
	return MaskedAmount{
		Commitment:    crypto.CommitTo(amount.Value, secrets.Blinding).Bytes(),
		MaskedValue:   amount.Value ^ secrets.ValueMask,
		MaskedTokenID: uint64(amount.TokenID) ^ secrets.TokenIDMask,
	}
}

// Unmask recovers the amount and verifies it against the commitment.
// A false return means the secrets do not open this output - it belongs
// to someone else.
func (m *MaskedAmount) Unmask(secrets *crypto.AmountSecrets) (types.Amount, bool) {
	amount := types.Amount{
		Value:   m.MaskedValue ^ secrets.ValueMask,
		TokenID: types.TokenID(m.MaskedTokenID ^ secrets.TokenIDMask),
	}
	want, err := crypto.ParsePoint(m.Commitment)
	if err != nil {
		return types.Amount{}, false
	}
	if !crypto.CommitTo(amount.Value, secrets.Blinding).Equal(want) {
		return types.Amount{}, false
	}
	return amount, true
}

// BuiltTxOut is a freshly constructed output together with the sender-side
// secrets the builder needs: the shared secret (for confirmation numbers)
// and the commitment blinding (for balancing).
type BuiltTxOut struct {
	TxOut        *TxOut
	SharedSecret *crypto.Point
	Blinding     *crypto.Scalar
	Confirmation crypto.ConfirmationNumber
}

// NewTxOut constructs an output of the given amount to the recipient
// address. Only the recipient's public keys are required, so view-only
// builders can construct outputs. The memo builder decides the memo
// content; nil produces an unused memo.
func NewTxOut(amount types.Amount, recipient *keys.PublicAddress, memoBuilder MemoBuilder) (*BuiltTxOut, error) {
	txPrivate, err := crypto.RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("generate tx private key: %w", err)
	}
	return newTxOutWithPrivate(txPrivate, amount, recipient, memoBuilder)
}

func newTxOutWithPrivate(txPrivate *crypto.Scalar, amount types.Amount, recipient *keys.PublicAddress, memoBuilder MemoBuilder) (*BuiltTxOut, error) {
	sharedSecret := crypto.SharedSecret(txPrivate, recipient.ViewPublic)
	secrets, err := crypto.DeriveAmountSecrets(sharedSecret)
	if err != nil {
		return nil, err
	}

	memo := EncryptedMemo{}
	if memoBuilder != nil {
		payload, err := memoBuilder.BuildMemo(recipient)
		if err != nil {
			return nil, fmt.Errorf("build memo: %w", err)
		}
		memo = payload.Encrypt(secrets.MemoKey)
	}

	out := &TxOut{
		PublicKey: txPrivate.BaseMult().Bytes(),
		TargetKey: crypto.OnetimeTargetKey(txPrivate, recipient.ViewPublic, recipient.SpendPublic).Bytes(),
		Amount:    NewMaskedAmount(secrets, amount),
		Memo:      memo,
	}
	return &BuiltTxOut{
		TxOut:        out,
		SharedSecret: sharedSecret,
		Blinding:     secrets.Blinding,
		Confirmation: crypto.NewConfirmationNumber(sharedSecret),
	}, nil
}

// ID derives the stable txo id from the output's public key.
func (o *TxOut) ID() types.TxoID {
	return types.TxoID(crypto.HashParts(tagTxoID, o.PublicKey))
}

// Hash returns the canonical hash of the full output.
func (o *TxOut) Hash() types.Hash {
	return crypto.HashParts("umbra.txo.hash",
		o.PublicKey, o.TargetKey, o.Amount.Commitment, o.Memo[:])
}

// ViewKeyMatch attempts to decode the output with the given view private
// key. On success it returns the decoded amount and the recovered
// subaddress spend public key to match against assigned subaddresses.
func (o *TxOut) ViewKeyMatch(viewPrivate *crypto.Scalar) (types.Amount, *crypto.Point, bool) {
	txPublic, err := crypto.ParsePoint(o.PublicKey)
	if err != nil {
		return types.Amount{}, nil, false
	}
	targetKey, err := crypto.ParsePoint(o.TargetKey)
	if err != nil {
		return types.Amount{}, nil, false
	}

	secrets, err := crypto.DeriveAmountSecrets(crypto.SharedSecret(viewPrivate, txPublic))
	if err != nil {
		return types.Amount{}, nil, false
	}
	amount, ok := o.Amount.Unmask(secrets)
	if !ok {
		return types.Amount{}, nil, false
	}
	return amount, crypto.RecoverSubaddressSpendKey(viewPrivate, targetKey, txPublic), true
}
