package tx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Transaction validation errors.
var (
	ErrNoInputs            = errors.New("transaction has no inputs")
	ErrNoOutputs           = errors.New("transaction has no outputs")
	ErrSignatureCount      = errors.New("signature count does not match input count")
	ErrPseudoCommitCount   = errors.New("pseudo commitment count does not match input count")
	ErrRingProofMismatch   = errors.New("ring size does not match membership proof count")
	ErrBadRingSignature    = errors.New("invalid ring signature")
	ErrCommitmentImbalance = errors.New("input and output commitments do not balance")
)

// TxIn is a transaction input: a ring of candidate outputs with one real
// member hidden among decoys, plus a membership proof per ring member.
type TxIn struct {
	Ring   []TxOut           `json:"ring"`
	Proofs []MembershipProof `json:"proofs"`
}

// TxPrefix is the signed portion of a transaction.
type TxPrefix struct {
	Inputs         []TxIn       `json:"inputs"`
	Outputs        []TxOut      `json:"outputs"`
	Fee            types.Amount `json:"fee"`
	TombstoneBlock uint64       `json:"tombstone_block"`
}

// Hash computes the canonical prefix hash that ring signatures sign.
func (p *TxPrefix) Hash() types.Hash {
	var buf bytes.Buffer
	writeU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	writeOut := func(o *TxOut) {
		buf.Write(o.PublicKey)
		buf.Write(o.TargetKey)
		buf.Write(o.Amount.Commitment)
		writeU64(o.Amount.MaskedValue)
		writeU64(o.Amount.MaskedTokenID)
		buf.Write(o.Memo[:])
	}

	writeU64(uint64(len(p.Inputs)))
	for i := range p.Inputs {
		in := &p.Inputs[i]
		writeU64(uint64(len(in.Ring)))
		for j := range in.Ring {
			writeOut(&in.Ring[j])
		}
		for j := range in.Proofs {
			writeU64(in.Proofs[j].Index)
			writeU64(in.Proofs[j].HighestIndex)
			for _, h := range in.Proofs[j].Path {
				buf.Write(h[:])
			}
		}
	}
	writeU64(uint64(len(p.Outputs)))
	for i := range p.Outputs {
		writeOut(&p.Outputs[i])
	}
	writeU64(p.Fee.Value)
	writeU64(uint64(p.Fee.TokenID))
	writeU64(p.TombstoneBlock)

	return crypto.HashParts("umbra.tx.prefix", buf.Bytes())
}

// Tx is a fully signed transaction ready for submission.
type Tx struct {
	Prefix TxPrefix `json:"prefix"`

	// Signatures holds one ring signature per input, in input order.
	Signatures []crypto.RingSignature `json:"signatures"`

	// PseudoCommitments re-commit each input's value under fresh
	// blindings chosen so inputs balance outputs plus fee.
	PseudoCommitments [][]byte `json:"pseudo_commitments"`
}

// KeyImages returns the key images consumed by this transaction, in input
// order.
func (t *Tx) KeyImages() []crypto.KeyImage {
	images := make([]crypto.KeyImage, len(t.Signatures))
	for i := range t.Signatures {
		images[i] = t.Signatures[i].KeyImage
	}
	return images
}

// Validate checks structural integrity, every ring signature, and the
// commitment balance: sum(pseudo) == sum(outputs) + fee*H.
func (t *Tx) Validate() error {
	if len(t.Prefix.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(t.Prefix.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Signatures) != len(t.Prefix.Inputs) {
		return ErrSignatureCount
	}
	if len(t.PseudoCommitments) != len(t.Prefix.Inputs) {
		return ErrPseudoCommitCount
	}

	message := t.Prefix.Hash()
	for i := range t.Prefix.Inputs {
		in := &t.Prefix.Inputs[i]
		if len(in.Ring) != len(in.Proofs) {
			return fmt.Errorf("input %d: %w", i, ErrRingProofMismatch)
		}
		ring := make([]*crypto.Point, len(in.Ring))
		for j := range in.Ring {
			target, err := crypto.ParsePoint(in.Ring[j].TargetKey)
			if err != nil {
				return fmt.Errorf("input %d ring member %d: %w", i, j, err)
			}
			ring[j] = target
		}
		if !t.Signatures[i].Verify(message, ring) {
			return fmt.Errorf("input %d: %w", i, ErrBadRingSignature)
		}
	}

	return t.verifyBalance()
}

// verifyBalance checks sum(pseudo commitments) == sum(output commitments)
// + fee*H. The fee commitment uses a zero blinding by convention.
func (t *Tx) verifyBalance() error {
	sum := func(commitments [][]byte) (*crypto.Point, error) {
		var acc *crypto.Point
		for _, c := range commitments {
			p, err := crypto.ParsePoint(c)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = p
			} else {
				acc = acc.Add(p)
			}
		}
		return acc, nil
	}

	pseudoSum, err := sum(t.PseudoCommitments)
	if err != nil {
		return fmt.Errorf("pseudo commitments: %w", err)
	}
	outCommitments := make([][]byte, len(t.Prefix.Outputs))
	for i := range t.Prefix.Outputs {
		outCommitments[i] = t.Prefix.Outputs[i].Amount.Commitment
	}
	outSum, err := sum(outCommitments)
	if err != nil {
		return fmt.Errorf("output commitments: %w", err)
	}

	feeCommit := crypto.CommitTo(t.Prefix.Fee.Value, crypto.ZeroScalar())
	if !pseudoSum.Equal(outSum.Add(feeCommit)) {
		return ErrCommitmentImbalance
	}
	return nil
}
