package walletdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/types"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
)

// LogStatus is the state of a transaction log.
type LogStatus string

const (
	// LogBuilt: constructed but not yet submitted.
	LogBuilt LogStatus = "built"

	// LogPending: submitted, awaiting confirmation.
	LogPending LogStatus = "pending"

	// LogSucceeded: an output landed in a confirmed block.
	LogSucceeded LogStatus = "succeeded"

	// LogFailed: tombstone passed without confirmation.
	LogFailed LogStatus = "failed"
)

// LogOutput records one constructed output of a logged transaction: enough
// to recognize it landing on chain and to prove participation later.
type LogOutput struct {
	PublicKey    []byte                    `json:"public_key"`
	Recipient    []byte                    `json:"recipient,omitempty"`
	Value        uint64                    `json:"value"`
	TokenID      types.TokenID             `json:"token_id"`
	Confirmation crypto.ConfirmationNumber `json:"confirmation"`
}

// TransactionLog is an in-progress or historical spend.
//
// State machine: built -> pending on submission; pending -> succeeded when
// the sync engine sees one of the output public keys in a block;
// pending -> failed when the cursor passes the tombstone first.
type TransactionLog struct {
	ID        types.Hash      `json:"id"`
	AccountID types.AccountID `json:"account_id"`
	Status    LogStatus       `json:"status"`

	Fee            types.Amount `json:"fee"`
	TombstoneBlock uint64       `json:"tombstone_block"`

	InputTxoIDs    []types.TxoID `json:"input_txo_ids"`
	PayloadOutputs []LogOutput   `json:"payload_outputs"`
	ChangeOutputs  []LogOutput   `json:"change_outputs"`

	SubmittedBlock *uint64 `json:"submitted_block,omitempty"`
	FinalizedBlock *uint64 `json:"finalized_block,omitempty"`

	Comment string `json:"comment,omitempty"`
}

// OutputPublicKeys returns the public keys of every constructed output,
// payload and change alike.
func (l *TransactionLog) OutputPublicKeys() [][]byte {
	keys := make([][]byte, 0, len(l.PayloadOutputs)+len(l.ChangeOutputs))
	for _, o := range l.PayloadOutputs {
		keys = append(keys, o.PublicKey)
	}
	for _, o := range l.ChangeOutputs {
		keys = append(keys, o.PublicKey)
	}
	return keys
}

func getLogTxn(txn storage.Txn, id types.Hash) (*TransactionLog, error) {
	data, err := txn.Get(joinKey(prefixLog, id[:]))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("txlog get: %w", err)
	}
	var log TransactionLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("txlog unmarshal: %w", err)
	}
	return &log, nil
}

func putLogTxn(txn storage.Txn, log *TransactionLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("txlog marshal: %w", err)
	}
	if err := txn.Put(joinKey(prefixLog, log.ID[:]), data); err != nil {
		return err
	}
	return txn.Put(joinKey(prefixLogAccount, log.AccountID[:], log.ID[:]), []byte{})
}

// InsertTransactionLog stores a new transaction log.
func (s *Store) InsertTransactionLog(log *TransactionLog) error {
	return s.db.Update(func(txn storage.Txn) error {
		return putLogTxn(txn, log)
	})
}

// GetTransactionLog loads a log by id.
func (s *Store) GetTransactionLog(id types.Hash) (*TransactionLog, error) {
	var log *TransactionLog
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		log, err = getLogTxn(txn, id)
		return err
	})
	return log, err
}

func listLogsTxn(txn storage.Txn, id types.AccountID) ([]*TransactionLog, error) {
	var logs []*TransactionLog
	err := txn.ForEach(joinKey(prefixLogAccount, id[:]), func(key, _ []byte) error {
		var logID types.Hash
		copy(logID[:], key[len(prefixLogAccount)+len(id):])
		log, err := getLogTxn(txn, logID)
		if err != nil {
			return err
		}
		logs = append(logs, log)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan account txlogs: %w", err)
	}
	return logs, nil
}

// ListTransactionLogs returns all logs of an account.
func (s *Store) ListTransactionLogs(id types.AccountID) ([]*TransactionLog, error) {
	var logs []*TransactionLog
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		logs, err = listLogsTxn(txn, id)
		return err
	})
	return logs, err
}

// SubmitTransactionLog records a successful submission: the log flips to
// pending and every input txo is reserved, in one transaction.
func (s *Store) SubmitTransactionLog(log *TransactionLog, submittedBlock uint64) error {
	return s.db.Update(func(txn storage.Txn) error {
		log.Status = LogPending
		log.SubmittedBlock = &submittedBlock
		if err := markTxosPendingTxn(txn, log.InputTxoIDs, log.TombstoneBlock); err != nil {
			return err
		}
		return putLogTxn(txn, log)
	})
}
