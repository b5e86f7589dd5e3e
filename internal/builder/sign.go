package builder

import (
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
)

// Sign completes an unsigned proposal: it recovers each input's onetime
// private key and key image, signs every ring over the prefix hash, and
// chooses pseudo-commitment blindings that balance the outputs plus fee.
// Pure conversion; it reads nothing from the store and builds no outputs.
func Sign(unsigned *UnsignedTxProposal, key *keys.AccountKey) (*TxProposal, error) {
	n := len(unsigned.Prefix.Inputs)
	if n == 0 {
		return nil, tx.ErrNoInputs
	}
	if len(unsigned.Inputs) != n {
		return nil, fmt.Errorf("unsigned proposal: %d inputs but %d metadata entries", n, len(unsigned.Inputs))
	}
	if len(unsigned.OutputBlindings) != len(unsigned.Prefix.Outputs) {
		return nil, fmt.Errorf("unsigned proposal: %d outputs but %d blindings", len(unsigned.Prefix.Outputs), len(unsigned.OutputBlindings))
	}

	message := unsigned.Prefix.Hash()

	// Pseudo blindings: the first n-1 are random; the last is chosen so
	// the blinding sums match. The fee commitment uses a zero blinding,
	// so sum(pseudo blindings) must equal sum(output blindings).
	blindingSum := crypto.ZeroScalar()
	for i, raw := range unsigned.OutputBlindings {
		b, err := crypto.NewScalarFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("output %d blinding: %w", i, err)
		}
		blindingSum = blindingSum.Add(b)
	}
	pseudoBlindings := make([]*crypto.Scalar, n)
	partial := crypto.ZeroScalar()
	for i := 0; i < n-1; i++ {
		b, err := crypto.RandomScalar()
		if err != nil {
			return nil, err
		}
		pseudoBlindings[i] = b
		partial = partial.Add(b)
	}
	pseudoBlindings[n-1] = blindingSum.Sub(partial)

	signatures := make([]crypto.RingSignature, n)
	pseudoCommitments := make([][]byte, n)
	inputTxos := make([]InputTxo, n)

	for i := range unsigned.Prefix.Inputs {
		in := &unsigned.Prefix.Inputs[i]
		meta := &unsigned.Inputs[i]
		if meta.RealIndex < 0 || meta.RealIndex >= len(in.Ring) {
			return nil, fmt.Errorf("input %d: real index %d out of ring", i, meta.RealIndex)
		}

		ring := make([]*crypto.Point, len(in.Ring))
		for j := range in.Ring {
			target, err := crypto.ParsePoint(in.Ring[j].TargetKey)
			if err != nil {
				return nil, fmt.Errorf("input %d ring member %d: %w", i, j, err)
			}
			ring[j] = target
		}

		real := &in.Ring[meta.RealIndex]
		txPublic, err := crypto.ParsePoint(real.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("input %d public key: %w", i, err)
		}
		onetime := crypto.RecoverOnetimePrivateKey(txPublic, key.ViewPrivate(), key.SubaddressSpendPrivate(meta.SubaddressIndex))
		if !onetime.BaseMult().Equal(ring[meta.RealIndex]) {
			return nil, fmt.Errorf("input %d: recovered onetime key does not open the real ring member", i)
		}

		sig, err := crypto.SignRing(message, ring, meta.RealIndex, onetime)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if sig.KeyImage.IsZero() {
			return nil, fmt.Errorf("input %d: %w", i, ErrMissingKeyImage)
		}

		signatures[i] = *sig
		pseudoCommitments[i] = crypto.CommitTo(meta.Value, pseudoBlindings[i]).Bytes()
		inputTxos[i] = InputTxo{
			TxoID:           meta.TxoID,
			TxOut:           *real,
			KeyImage:        sig.KeyImage,
			Value:           meta.Value,
			TokenID:         meta.TokenID,
			SubaddressIndex: meta.SubaddressIndex,
		}
	}

	return &TxProposal{
		Tx: &tx.Tx{
			Prefix:            unsigned.Prefix,
			Signatures:        signatures,
			PseudoCommitments: pseudoCommitments,
		},
		InputTxos:   inputTxos,
		PayloadTxos: unsigned.PayloadTxos,
		ChangeTxos:  unsigned.ChangeTxos,
	}, nil
}
