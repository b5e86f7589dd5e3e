package walletdb

import (
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/types"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
)

// ApplySyncBlock commits everything one scanned block means for one
// account as a single transaction: discovered txos are inserted, txos
// whose key images appear in the block are marked spent, pending logs
// whose outputs landed are finalized, the cursor advances, and expired
// pending logs are failed with their inputs released. Either all of it
// happens or none of it does.
//
// Re-applying an already-applied block is a no-op, which makes rescans
// after a crash safe.
func (s *Store) ApplySyncBlock(id types.AccountID, blockIndex uint64, discovered []*Txo, spentImages []crypto.KeyImage, blockOutputKeys [][]byte) error {
	return s.db.Update(func(txn storage.Txn) error {
		acct, err := getAccountTxn(txn, id)
		if err != nil {
			return err
		}
		if blockIndex < acct.NextBlock {
			// Already applied.
			return nil
		}
		if blockIndex > acct.NextBlock {
			return fmt.Errorf("apply block %d out of order, cursor at %d", blockIndex, acct.NextBlock)
		}

		for _, txo := range discovered {
			if err := insertTxoTxn(txn, txo); err != nil {
				return err
			}
		}

		if err := markSpentTxn(txn, id, blockIndex, spentImages); err != nil {
			return err
		}

		if err := finalizeLandedLogsTxn(txn, id, blockIndex, blockOutputKeys); err != nil {
			return err
		}

		acct.NextBlock = blockIndex + 1
		if err := putAccountTxn(txn, acct); err != nil {
			return err
		}

		return sweepTombstonesTxn(txn, id, acct.NextBlock)
	})
}

// markSpentTxn marks every txo of the account whose key image appears in
// the block's consumed list.
func markSpentTxn(txn storage.Txn, id types.AccountID, blockIndex uint64, spentImages []crypto.KeyImage) error {
	for _, image := range spentImages {
		txoID, err := txoIDByKeyImageTxn(txn, image)
		if errors.Is(err, ErrTxoNotFound) {
			continue // Someone else's spend.
		}
		if err != nil {
			return err
		}
		txo, err := getTxoTxn(txn, txoID)
		if err != nil {
			return err
		}
		if txo.AccountID != id || txo.SpentBlock != nil {
			continue
		}
		spent := blockIndex
		txo.SpentBlock = &spent
		txo.PendingTombstone = nil
		if err := putTxoTxn(txn, txo); err != nil {
			return err
		}
	}
	return nil
}

// finalizeLandedLogsTxn flips pending logs to succeeded when one of their
// output public keys shows up in the block.
func finalizeLandedLogsTxn(txn storage.Txn, id types.AccountID, blockIndex uint64, blockOutputKeys [][]byte) error {
	if len(blockOutputKeys) == 0 {
		return nil
	}
	inBlock := make(map[string]struct{}, len(blockOutputKeys))
	for _, k := range blockOutputKeys {
		inBlock[string(k)] = struct{}{}
	}

	logs, err := listLogsTxn(txn, id)
	if err != nil {
		return err
	}
	for _, log := range logs {
		if log.Status != LogPending {
			continue
		}
		landed := false
		for _, k := range log.OutputPublicKeys() {
			if _, ok := inBlock[string(k)]; ok {
				landed = true
				break
			}
		}
		if !landed {
			continue
		}
		log.Status = LogSucceeded
		finalized := blockIndex
		log.FinalizedBlock = &finalized
		if err := putLogTxn(txn, log); err != nil {
			return err
		}
	}
	return nil
}

// sweepTombstonesTxn fails pending logs whose tombstone the cursor has
// passed, releasing their never-confirmed inputs back to spendable.
func sweepTombstonesTxn(txn storage.Txn, id types.AccountID, nextBlock uint64) error {
	logs, err := listLogsTxn(txn, id)
	if err != nil {
		return err
	}
	for _, log := range logs {
		if log.Status != LogPending || log.TombstoneBlock > nextBlock {
			continue
		}
		log.Status = LogFailed
		finalized := nextBlock
		log.FinalizedBlock = &finalized
		if err := putLogTxn(txn, log); err != nil {
			return err
		}
		for _, txoID := range log.InputTxoIDs {
			if err := releaseTxoTxn(txn, txoID); err != nil {
				return err
			}
		}
	}
	return nil
}
