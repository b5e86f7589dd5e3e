package walletdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
)

// TxoStatus is the derived lifecycle state of a txo.
type TxoStatus string

const (
	// TxoOrphaned: received at a subaddress index not yet assigned.
	TxoOrphaned TxoStatus = "orphaned"

	// TxoUnspent: spendable.
	TxoUnspent TxoStatus = "unspent"

	// TxoPending: reserved by a submitted, unconfirmed transaction.
	TxoPending TxoStatus = "pending"

	// TxoSpent: key image observed on chain.
	TxoSpent TxoStatus = "spent"
)

// Txo is an on-chain output recognized as belonging to a local account.
// Value, token and owner are fixed at creation; only lifecycle fields
// (key image, pending reservation, spent block) change afterwards.
type Txo struct {
	ID        types.TxoID     `json:"id"`
	AccountID types.AccountID `json:"account_id"`

	Value   uint64        `json:"value"`
	TokenID types.TokenID `json:"token_id"`

	// TxOut is the full on-chain output.
	TxOut tx.TxOut `json:"tx_out"`

	// RecoveredSpendPublic is the subaddress spend key recovered during
	// view-key matching. Kept so orphaned txos can be claimed when their
	// subaddress index is later assigned.
	RecoveredSpendPublic []byte `json:"recovered_spend_public"`

	// SubaddressIndex is nil while the txo is orphaned.
	SubaddressIndex *uint64 `json:"subaddress_index,omitempty"`

	// KeyImage is set once the owning private key has been derived.
	// Stable for the lifetime of the record once computed.
	KeyImage *crypto.KeyImage `json:"key_image,omitempty"`

	ReceivedBlock *uint64 `json:"received_block,omitempty"`
	SpentBlock    *uint64 `json:"spent_block,omitempty"`

	// PendingTombstone is set while a submitted transaction spending
	// this txo awaits confirmation; the value is that transaction's
	// tombstone block.
	PendingTombstone *uint64 `json:"pending_tombstone,omitempty"`
}

// Status derives the lifecycle state.
func (t *Txo) Status() TxoStatus {
	switch {
	case t.SpentBlock != nil:
		return TxoSpent
	case t.PendingTombstone != nil:
		return TxoPending
	case t.SubaddressIndex == nil:
		return TxoOrphaned
	default:
		return TxoUnspent
	}
}

// DeriveKeyImage recovers the onetime private key for the txo at the given
// subaddress index and derives its key image. The recovered key is checked
// against the on-chain target key.
func (t *Txo) DeriveKeyImage(key *keys.AccountKey, subaddressIndex uint64) (crypto.KeyImage, error) {
	txPublic, err := crypto.ParsePoint(t.TxOut.PublicKey)
	if err != nil {
		return crypto.KeyImage{}, fmt.Errorf("txo %s public key: %w", t.ID, err)
	}
	onetime := crypto.RecoverOnetimePrivateKey(txPublic, key.ViewPrivate(), key.SubaddressSpendPrivate(subaddressIndex))
	if string(onetime.BaseMult().Bytes()) != string(t.TxOut.TargetKey) {
		return crypto.KeyImage{}, fmt.Errorf("txo %s: recovered onetime key does not match target key", t.ID)
	}
	return crypto.NewKeyImage(onetime), nil
}

func getTxoTxn(txn storage.Txn, id types.TxoID) (*Txo, error) {
	data, err := txn.Get(joinKey(prefixTxo, id[:]))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrTxoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("txo get: %w", err)
	}
	var txo Txo
	if err := json.Unmarshal(data, &txo); err != nil {
		return nil, fmt.Errorf("txo unmarshal: %w", err)
	}
	return &txo, nil
}

func putTxoTxn(txn storage.Txn, txo *Txo) error {
	data, err := json.Marshal(txo)
	if err != nil {
		return fmt.Errorf("txo marshal: %w", err)
	}
	if err := txn.Put(joinKey(prefixTxo, txo.ID[:]), data); err != nil {
		return err
	}
	return txn.Put(joinKey(prefixTxoAccount, txo.AccountID[:], txo.ID[:]), []byte{})
}

// insertTxoTxn inserts a freshly discovered txo. A collision on the txo id
// indicates a rescan of a block already processed: the row is replaced but
// lifecycle fields already learned (key image, spent block) are kept.
func insertTxoTxn(txn storage.Txn, txo *Txo) error {
	existing, err := getTxoTxn(txn, txo.ID)
	if err != nil && !errors.Is(err, ErrTxoNotFound) {
		return err
	}
	if existing != nil {
		if txo.KeyImage == nil {
			txo.KeyImage = existing.KeyImage
		}
		if txo.SpentBlock == nil {
			txo.SpentBlock = existing.SpentBlock
		}
	}
	if txo.KeyImage != nil {
		if err := txn.Put(joinKey(prefixKeyImage, txo.KeyImage[:]), txo.ID[:]); err != nil {
			return err
		}
	}
	return putTxoTxn(txn, txo)
}

// GetTxo loads a txo by id.
func (s *Store) GetTxo(id types.TxoID) (*Txo, error) {
	var txo *Txo
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		txo, err = getTxoTxn(txn, id)
		return err
	})
	return txo, err
}

// GetTxoByKeyImage finds the txo whose key image matches.
func (s *Store) GetTxoByKeyImage(image crypto.KeyImage) (*Txo, error) {
	var txo *Txo
	err := s.db.View(func(txn storage.Txn) error {
		id, err := txoIDByKeyImageTxn(txn, image)
		if err != nil {
			return err
		}
		txo, err = getTxoTxn(txn, id)
		return err
	})
	return txo, err
}

func txoIDByKeyImageTxn(txn storage.Txn, image crypto.KeyImage) (types.TxoID, error) {
	data, err := txn.Get(joinKey(prefixKeyImage, image[:]))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.TxoID{}, ErrTxoNotFound
	}
	if err != nil {
		return types.TxoID{}, fmt.Errorf("key image index get: %w", err)
	}
	var id types.TxoID
	copy(id[:], data)
	return id, nil
}

func listTxosTxn(txn storage.Txn, id types.AccountID) ([]*Txo, error) {
	var txos []*Txo
	err := txn.ForEach(joinKey(prefixTxoAccount, id[:]), func(key, _ []byte) error {
		var txoID types.TxoID
		copy(txoID[:], key[len(prefixTxoAccount)+len(id):])
		txo, err := getTxoTxn(txn, txoID)
		if err != nil {
			return err
		}
		txos = append(txos, txo)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan account txos: %w", err)
	}
	return txos, nil
}

// ListTxos returns all txos of an account.
func (s *Store) ListTxos(id types.AccountID) ([]*Txo, error) {
	var txos []*Txo
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		txos, err = listTxosTxn(txn, id)
		return err
	})
	return txos, err
}

// UnspentTxos returns the account's spendable txos for a token: unspent,
// not pending, not orphaned.
func (s *Store) UnspentTxos(id types.AccountID, token types.TokenID) ([]*Txo, error) {
	all, err := s.ListTxos(id)
	if err != nil {
		return nil, err
	}
	var unspent []*Txo
	for _, txo := range all {
		if txo.TokenID == token && txo.Status() == TxoUnspent {
			unspent = append(unspent, txo)
		}
	}
	return unspent, nil
}

// Balance is the per-token breakdown of an account's funds.
type Balance struct {
	Unspent  uint64 `json:"unspent"`
	Pending  uint64 `json:"pending"`
	Spent    uint64 `json:"spent"`
	Orphaned uint64 `json:"orphaned"`
}

// Balances sums an account's txos per token and lifecycle state.
func (s *Store) Balances(id types.AccountID) (map[types.TokenID]Balance, error) {
	txos, err := s.ListTxos(id)
	if err != nil {
		return nil, err
	}
	balances := make(map[types.TokenID]Balance)
	for _, txo := range txos {
		b := balances[txo.TokenID]
		switch txo.Status() {
		case TxoUnspent:
			b.Unspent += txo.Value
		case TxoPending:
			b.Pending += txo.Value
		case TxoSpent:
			b.Spent += txo.Value
		case TxoOrphaned:
			b.Orphaned += txo.Value
		}
		balances[txo.TokenID] = b
	}
	return balances, nil
}

// SelectUnspentTxosForValue picks spendable txos covering target, largest
// first. maxSpendable (0 = no cap) excludes txos above that value from
// consideration. maxInputs caps how many txos one transaction may spend;
// funds that only cover target with more inputs than that are reported as
// fragmented rather than silently truncated.
func (s *Store) SelectUnspentTxosForValue(id types.AccountID, token types.TokenID, target uint64, maxSpendable uint64, maxInputs int) ([]*Txo, error) {
	unspent, err := s.UnspentTxos(id, token)
	if err != nil {
		return nil, err
	}
	if len(unspent) == 0 {
		return nil, ErrNoSpendableTxos
	}

	var uncappedTotal uint64
	for _, txo := range unspent {
		uncappedTotal += txo.Value
	}

	candidates := unspent
	if maxSpendable > 0 {
		candidates = nil
		for _, txo := range unspent {
			if txo.Value <= maxSpendable {
				candidates = append(candidates, txo)
			}
		}
		if len(candidates) == 0 {
			return nil, ErrNoSpendableTxos
		}
	}

	var total uint64
	for _, txo := range candidates {
		total += txo.Value
	}
	if total < target {
		if uncappedTotal >= target {
			return nil, ErrInsufficientFundsUnderMaxSpendable
		}
		return nil, ErrInsufficientFunds
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value > candidates[j].Value
		}
		return string(candidates[i].ID[:]) < string(candidates[j].ID[:])
	})

	var selected []*Txo
	var sum uint64
	for _, txo := range candidates {
		if sum >= target {
			break
		}
		if len(selected) == maxInputs {
			return nil, ErrInsufficientFundsFragmented
		}
		selected = append(selected, txo)
		sum += txo.Value
	}
	return selected, nil
}

// MarkTxosPending reserves txos for a submitted transaction so concurrent
// builds cannot double-spend them.
func (s *Store) MarkTxosPending(ids []types.TxoID, tombstone uint64) error {
	return s.db.Update(func(txn storage.Txn) error {
		return markTxosPendingTxn(txn, ids, tombstone)
	})
}

func markTxosPendingTxn(txn storage.Txn, ids []types.TxoID, tombstone uint64) error {
	for _, id := range ids {
		txo, err := getTxoTxn(txn, id)
		if err != nil {
			return err
		}
		if txo.Status() != TxoUnspent {
			return fmt.Errorf("txo %s is %s, not unspent", id, txo.Status())
		}
		t := tombstone
		txo.PendingTombstone = &t
		if err := putTxoTxn(txn, txo); err != nil {
			return err
		}
	}
	return nil
}

func releaseTxoTxn(txn storage.Txn, id types.TxoID) error {
	txo, err := getTxoTxn(txn, id)
	if errors.Is(err, ErrTxoNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if txo.SpentBlock != nil {
		return nil
	}
	txo.PendingTombstone = nil
	return putTxoTxn(txn, txo)
}
