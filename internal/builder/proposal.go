package builder

import (
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Outlay is one (recipient, amount) pair the caller wants to pay.
type Outlay struct {
	Recipient *keys.PublicAddress
	Amount    types.Amount
}

// InputTxo is a spent input as recorded in a finished proposal: the real
// output, its key image, and the decoded amount.
type InputTxo struct {
	TxoID           types.TxoID     `json:"txo_id"`
	TxOut           tx.TxOut        `json:"tx_out"`
	KeyImage        crypto.KeyImage `json:"key_image"`
	Value           uint64          `json:"value"`
	TokenID         types.TokenID   `json:"token_id"`
	SubaddressIndex uint64          `json:"subaddress_index"`
}

// OutputTxo is a constructed output with the sender-side metadata kept for
// the transaction log: recipient, decoded amount, and the confirmation
// number the sender can later reveal.
type OutputTxo struct {
	TxOut        tx.TxOut                  `json:"tx_out"`
	Recipient    *keys.PublicAddress       `json:"recipient,omitempty"`
	Confirmation crypto.ConfirmationNumber `json:"confirmation"`
	Value        uint64                    `json:"value"`
	TokenID      types.TokenID             `json:"token_id"`
}

// TxProposal is a fully signed transaction plus the metadata needed to
// log and track it.
type TxProposal struct {
	Tx          *tx.Tx      `json:"tx"`
	InputTxos   []InputTxo  `json:"input_txos"`
	PayloadTxos []OutputTxo `json:"payload_txos"`
	ChangeTxos  []OutputTxo `json:"change_txos"`
}

// UnsignedInput is one input of an unsigned proposal: the ring and proofs
// are final, the key image and signature are not. SubaddressIndex tells
// the eventual signer which subaddress spend key recovers the onetime key.
type UnsignedInput struct {
	TxoID           types.TxoID   `json:"txo_id"`
	RealIndex       int           `json:"real_index"`
	SubaddressIndex uint64        `json:"subaddress_index"`
	Value           uint64        `json:"value"`
	TokenID         types.TokenID `json:"token_id"`
}

// UnsignedTxProposal is everything but the signatures: outputs are fully
// constructed (they only need the recipients' public keys), rings and
// membership proofs are attached, and per-output blindings are carried so
// the signer can balance the pseudo commitments.
type UnsignedTxProposal struct {
	Prefix tx.TxPrefix `json:"prefix"`

	// Inputs holds per-input signing metadata, parallel to
	// Prefix.Inputs.
	Inputs []UnsignedInput `json:"inputs"`

	// OutputBlindings holds the commitment blinding of each output,
	// parallel to Prefix.Outputs.
	OutputBlindings [][]byte `json:"output_blindings"`

	PayloadTxos []OutputTxo `json:"payload_txos"`
	ChangeTxos  []OutputTxo `json:"change_txos"`
}
