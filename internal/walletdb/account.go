package walletdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/types"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
)

// Account is a local wallet identity: key material, reserved subaddress
// indexes, and the sync cursor.
type Account struct {
	ID   types.AccountID `json:"id"`
	Name string          `json:"name"`

	ViewPrivate  []byte `json:"view_private"`
	SpendPrivate []byte `json:"spend_private,omitempty"`
	SpendPublic  []byte `json:"spend_public"`
	ViewOnly     bool   `json:"view_only"`

	MainSubaddress      uint64 `json:"main_subaddress"`
	ChangeSubaddress    uint64 `json:"change_subaddress"`
	NextSubaddressIndex uint64 `json:"next_subaddress_index"`

	// FirstBlock is the earliest block that could contain this account's
	// outputs. NextBlock is the sync cursor: every block below it has
	// been scanned. Invariant: NextBlock >= FirstBlock.
	FirstBlock uint64 `json:"first_block"`
	NextBlock  uint64 `json:"next_block"`
}

// Key reconstructs the full account key. Fails for view-only accounts.
func (a *Account) Key() (*keys.AccountKey, error) {
	if a.ViewOnly {
		return nil, fmt.Errorf("account %s is view-only", a.ID)
	}
	view, err := crypto.NewScalarFromBytes(a.ViewPrivate)
	if err != nil {
		return nil, fmt.Errorf("account view private: %w", err)
	}
	spend, err := crypto.NewScalarFromBytes(a.SpendPrivate)
	if err != nil {
		return nil, fmt.Errorf("account spend private: %w", err)
	}
	return keys.NewAccountKey(view, spend), nil
}

// ViewKey reconstructs the view-only key. Works for every account.
func (a *Account) ViewKey() (*keys.ViewAccountKey, error) {
	view, err := crypto.NewScalarFromBytes(a.ViewPrivate)
	if err != nil {
		return nil, fmt.Errorf("account view private: %w", err)
	}
	spend, err := crypto.ParsePoint(a.SpendPublic)
	if err != nil {
		return nil, fmt.Errorf("account spend public: %w", err)
	}
	return keys.NewViewAccountKey(view, spend), nil
}

// AssignedSubaddress records one subaddress index handed out under an
// account, with the derived spend public key used to match incoming
// outputs.
type AssignedSubaddress struct {
	AccountID   types.AccountID `json:"account_id"`
	Index       uint64          `json:"index"`
	SpendPublic []byte          `json:"spend_public"`
	Comment     string          `json:"comment"`
}

func accountKey(id types.AccountID) []byte {
	return joinKey(prefixAccount, id[:])
}

func subaddressKey(id types.AccountID, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return joinKey(prefixSubaddress, id[:], idx[:])
}

func getAccountTxn(txn storage.Txn, id types.AccountID) (*Account, error) {
	data, err := txn.Get(accountKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("account unmarshal: %w", err)
	}
	return &acct, nil
}

func putAccountTxn(txn storage.Txn, acct *Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("account marshal: %w", err)
	}
	return txn.Put(accountKey(acct.ID), data)
}

func putSubaddressTxn(txn storage.Txn, sub *AssignedSubaddress) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("subaddress marshal: %w", err)
	}
	return txn.Put(subaddressKey(sub.AccountID, sub.Index), data)
}

// CreateAccount stores a new full account and assigns its main and change
// subaddresses.
func (s *Store) CreateAccount(key *keys.AccountKey, name string, firstBlock uint64) (*Account, error) {
	acct := &Account{
		ID:                  key.AccountID(),
		Name:                name,
		ViewPrivate:         key.ViewPrivate().Bytes(),
		SpendPrivate:        key.SpendPrivate().Bytes(),
		SpendPublic:         key.SpendPublic().Bytes(),
		MainSubaddress:      keys.MainSubaddressIndex,
		ChangeSubaddress:    keys.ChangeSubaddressIndex,
		NextSubaddressIndex: keys.DefaultNextSubaddressIndex,
		FirstBlock:          firstBlock,
		NextBlock:           firstBlock,
	}
	return acct, s.createAccount(acct, key.ViewOnly())
}

// ImportViewOnlyAccount stores a watch account holding only the view
// private key. Such accounts can detect incoming funds but not sign.
func (s *Store) ImportViewOnlyAccount(key *keys.ViewAccountKey, name string, firstBlock uint64) (*Account, error) {
	acct := &Account{
		ID:                  key.AccountID(),
		Name:                name,
		ViewPrivate:         key.ViewPrivate().Bytes(),
		SpendPublic:         key.SpendPublic().Bytes(),
		ViewOnly:            true,
		MainSubaddress:      keys.MainSubaddressIndex,
		ChangeSubaddress:    keys.ChangeSubaddressIndex,
		NextSubaddressIndex: keys.DefaultNextSubaddressIndex,
		FirstBlock:          firstBlock,
		NextBlock:           firstBlock,
	}
	return acct, s.createAccount(acct, key)
}

func (s *Store) createAccount(acct *Account, viewKey *keys.ViewAccountKey) error {
	return s.db.Update(func(txn storage.Txn) error {
		exists, err := txn.Has(accountKey(acct.ID))
		if err != nil {
			return err
		}
		if exists {
			return ErrAccountExists
		}
		if err := putAccountTxn(txn, acct); err != nil {
			return err
		}

		reserved := []struct {
			index   uint64
			comment string
		}{
			{acct.MainSubaddress, "Main"},
			{acct.ChangeSubaddress, "Change"},
		}
		for _, r := range reserved {
			sub := &AssignedSubaddress{
				AccountID:   acct.ID,
				Index:       r.index,
				SpendPublic: viewKey.SubaddressSpendPublic(r.index).Bytes(),
				Comment:     r.comment,
			}
			if err := putSubaddressTxn(txn, sub); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAccount loads an account by id.
func (s *Store) GetAccount(id types.AccountID) (*Account, error) {
	var acct *Account
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		acct, err = getAccountTxn(txn, id)
		return err
	})
	return acct, err
}

// ListAccounts returns all accounts, ordered by id.
func (s *Store) ListAccounts() ([]*Account, error) {
	var accounts []*Account
	err := s.db.ForEach(prefixAccount, func(_, value []byte) error {
		var acct Account
		if err := json.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("account unmarshal: %w", err)
		}
		accounts = append(accounts, &acct)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan accounts: %w", err)
	}
	return accounts, nil
}

// RenameAccount updates an account's display name.
func (s *Store) RenameAccount(id types.AccountID, name string) error {
	return s.db.Update(func(txn storage.Txn) error {
		acct, err := getAccountTxn(txn, id)
		if err != nil {
			return err
		}
		acct.Name = name
		return putAccountTxn(txn, acct)
	})
}

// DeleteAccount removes an account and everything hanging off it:
// subaddresses, txos and their indexes, and transaction logs.
func (s *Store) DeleteAccount(id types.AccountID) error {
	return s.db.Update(func(txn storage.Txn) error {
		if _, err := getAccountTxn(txn, id); err != nil {
			return err
		}

		var doomed [][]byte
		collect := func(key []byte) {
			k := make([]byte, len(key))
			copy(k, key)
			doomed = append(doomed, k)
		}

		// Txos, via the per-account index, plus key image index entries.
		err := txn.ForEach(joinKey(prefixTxoAccount, id[:]), func(key, _ []byte) error {
			var txoID types.TxoID
			copy(txoID[:], key[len(prefixTxoAccount)+len(id):])
			txo, err := getTxoTxn(txn, txoID)
			if err == nil && txo.KeyImage != nil {
				collect(joinKey(prefixKeyImage, txo.KeyImage[:]))
			}
			collect(joinKey(prefixTxo, txoID[:]))
			collect(key)
			return nil
		})
		if err != nil {
			return err
		}

		// Transaction logs.
		err = txn.ForEach(joinKey(prefixLogAccount, id[:]), func(key, _ []byte) error {
			var logID types.Hash
			copy(logID[:], key[len(prefixLogAccount)+len(id):])
			collect(joinKey(prefixLog, logID[:]))
			collect(key)
			return nil
		})
		if err != nil {
			return err
		}

		// Subaddresses and the account row itself.
		err = txn.ForEach(joinKey(prefixSubaddress, id[:]), func(key, _ []byte) error {
			collect(key)
			return nil
		})
		if err != nil {
			return err
		}
		collect(accountKey(id))

		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResyncAccount rewinds the sync cursor to the given block (clamped to the
// account's first block). The sync engine will rescan from there; txo
// insertion is idempotent, so existing rows are refreshed rather than
// duplicated.
func (s *Store) ResyncAccount(id types.AccountID, fromBlock uint64) error {
	return s.db.Update(func(txn storage.Txn) error {
		acct, err := getAccountTxn(txn, id)
		if err != nil {
			return err
		}
		if fromBlock < acct.FirstBlock {
			fromBlock = acct.FirstBlock
		}
		acct.NextBlock = fromBlock
		return putAccountTxn(txn, acct)
	})
}

// AssignedSubaddresses returns all assigned subaddresses of an account,
// ordered by index.
func (s *Store) AssignedSubaddresses(id types.AccountID) ([]*AssignedSubaddress, error) {
	var subs []*AssignedSubaddress
	err := s.db.ForEach(joinKey(prefixSubaddress, id[:]), func(_, value []byte) error {
		var sub AssignedSubaddress
		if err := json.Unmarshal(value, &sub); err != nil {
			return fmt.Errorf("subaddress unmarshal: %w", err)
		}
		subs = append(subs, &sub)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan subaddresses: %w", err)
	}
	return subs, nil
}

// SubaddressBySpendPublic finds the assigned subaddress whose derived
// spend public key matches, or ErrSubaddressNotFound.
func (s *Store) SubaddressBySpendPublic(id types.AccountID, spendPublic []byte) (*AssignedSubaddress, error) {
	subs, err := s.AssignedSubaddresses(id)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if string(sub.SpendPublic) == string(spendPublic) {
			return sub, nil
		}
	}
	return nil, ErrSubaddressNotFound
}

// AssignNextSubaddress hands out the next unused subaddress index. Any
// orphaned txos that were received at the newly assigned subaddress are
// recovered in the same transaction: their index is filled in and, when
// the spend key is local, their key image is derived.
func (s *Store) AssignNextSubaddress(id types.AccountID, comment string) (*AssignedSubaddress, error) {
	var assigned *AssignedSubaddress
	err := s.db.Update(func(txn storage.Txn) error {
		acct, err := getAccountTxn(txn, id)
		if err != nil {
			return err
		}
		viewKey, err := acct.ViewKey()
		if err != nil {
			return err
		}

		index := acct.NextSubaddressIndex
		spendPublic := viewKey.SubaddressSpendPublic(index).Bytes()
		assigned = &AssignedSubaddress{
			AccountID:   id,
			Index:       index,
			SpendPublic: spendPublic,
			Comment:     comment,
		}
		if err := putSubaddressTxn(txn, assigned); err != nil {
			return err
		}
		acct.NextSubaddressIndex = index + 1
		if err := putAccountTxn(txn, acct); err != nil {
			return err
		}

		return recoverOrphanedTxosTxn(txn, acct, index, spendPublic)
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// recoverOrphanedTxosTxn attaches orphaned txos matching the newly
// assigned subaddress spend key.
func recoverOrphanedTxosTxn(txn storage.Txn, acct *Account, index uint64, spendPublic []byte) error {
	var key *keys.AccountKey
	if !acct.ViewOnly {
		var err error
		key, err = acct.Key()
		if err != nil {
			return err
		}
	}

	var recovered []*Txo
	err := txn.ForEach(joinKey(prefixTxoAccount, acct.ID[:]), func(k, _ []byte) error {
		var txoID types.TxoID
		copy(txoID[:], k[len(prefixTxoAccount)+len(acct.ID):])
		txo, err := getTxoTxn(txn, txoID)
		if err != nil {
			return err
		}
		if txo.SubaddressIndex != nil || string(txo.RecoveredSpendPublic) != string(spendPublic) {
			return nil
		}
		recovered = append(recovered, txo)
		return nil
	})
	if err != nil {
		return err
	}

	for _, txo := range recovered {
		idx := index
		txo.SubaddressIndex = &idx
		if key != nil {
			image, err := txo.DeriveKeyImage(key, index)
			if err != nil {
				return err
			}
			txo.KeyImage = &image
			if err := txn.Put(joinKey(prefixKeyImage, image[:]), txo.ID[:]); err != nil {
				return err
			}
		}
		if err := putTxoTxn(txn, txo); err != nil {
			return err
		}
	}
	return nil
}
