package builder

import (
	"fmt"

	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/internal/log"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Submitter hands a finished transaction to the network. The network call
// itself lives outside this package.
type Submitter interface {
	SubmitTx(t *tx.Tx) error
}

// Submit validates a proposal, hands it to the network, and records a
// pending transaction log with every input optimistically reserved. The
// log write and the input reservations commit atomically, so a proposal
// can never be observed half-submitted.
func Submit(store *walletdb.Store, ldg ledger.Ledger, submitter Submitter, accountID types.AccountID, proposal *TxProposal, comment string) (*walletdb.TransactionLog, error) {
	if err := proposal.Tx.Validate(); err != nil {
		return nil, fmt.Errorf("proposal failed validation: %w", err)
	}
	for i := range proposal.PayloadTxos {
		if proposal.PayloadTxos[i].Confirmation.IsZero() {
			return nil, fmt.Errorf("payload output %d: %w", i, ErrMissingConfirmation)
		}
	}

	if err := submitter.SubmitTx(proposal.Tx); err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}

	numBlocks, err := ldg.NumBlocks()
	if err != nil {
		return nil, fmt.Errorf("ledger height: %w", err)
	}

	logRow := &walletdb.TransactionLog{
		ID:             proposal.Tx.Prefix.Hash(),
		AccountID:      accountID,
		Fee:            proposal.Tx.Prefix.Fee,
		TombstoneBlock: proposal.Tx.Prefix.TombstoneBlock,
		Comment:        comment,
	}
	for _, in := range proposal.InputTxos {
		logRow.InputTxoIDs = append(logRow.InputTxoIDs, in.TxoID)
	}
	logRow.PayloadOutputs = logOutputs(proposal.PayloadTxos)
	logRow.ChangeOutputs = logOutputs(proposal.ChangeTxos)

	if err := store.SubmitTransactionLog(logRow, numBlocks); err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}

	log.Builder.Info().
		Stringer("account", accountID).
		Stringer("tx", logRow.ID).
		Int("inputs", len(logRow.InputTxoIDs)).
		Uint64("tombstone", logRow.TombstoneBlock).
		Msg("transaction submitted")
	return logRow, nil
}

func logOutputs(outs []OutputTxo) []walletdb.LogOutput {
	rows := make([]walletdb.LogOutput, len(outs))
	for i, o := range outs {
		rows[i] = walletdb.LogOutput{
			PublicKey:    o.TxOut.PublicKey,
			Value:        o.Value,
			TokenID:      o.TokenID,
			Confirmation: o.Confirmation,
		}
		if o.Recipient != nil {
			rows[i].Recipient = o.Recipient.Bytes()
		}
	}
	return rows
}
