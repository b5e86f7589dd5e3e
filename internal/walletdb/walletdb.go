// Package walletdb persists the wallet's view of the world: accounts and
// their sync cursors, recognized txos and their lifecycle, and transaction
// logs. Multi-row mutations run inside a single storage transaction so a
// crash can never leave the store half-updated.
package walletdb

import (
	"errors"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
)

// Errors returned by wallet store operations.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrSubaddressNotFound = errors.New("subaddress not found")
	ErrTxoNotFound        = errors.New("txo not found")
	ErrLogNotFound        = errors.New("transaction log not found")

	// ErrNoSpendableTxos means the account has no unspent txos for the
	// requested token at all.
	ErrNoSpendableTxos = errors.New("no spendable txos for token")

	// ErrInsufficientFunds means the account's spendable total is below
	// the requested value.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientFundsUnderMaxSpendable means enough funds exist but
	// not within the caller's max-spendable-value cap.
	ErrInsufficientFundsUnderMaxSpendable = errors.New("insufficient funds under max spendable value")

	// ErrInsufficientFundsFragmented means enough funds exist but they
	// are spread across more txos than one transaction may spend.
	ErrInsufficientFundsFragmented = errors.New("insufficient funds: value is fragmented across too many txos")
)

// Key prefixes for the wallet store.
var (
	prefixAccount    = []byte("A/")  // A/<account32> -> Account JSON
	prefixSubaddress = []byte("S/")  // S/<account32><index8> -> AssignedSubaddress JSON
	prefixTxo        = []byte("T/")  // T/<txo32> -> Txo JSON
	prefixTxoAccount = []byte("Ta/") // Ta/<account32><txo32> -> empty (index)
	prefixKeyImage   = []byte("Tk/") // Tk/<keyimage33> -> txo id (index)
	prefixLog        = []byte("L/")  // L/<log32> -> TransactionLog JSON
	prefixLogAccount = []byte("La/") // La/<account32><log32> -> empty (index)
)

// Store is the wallet database, backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a wallet store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database, mainly for tests.
func (s *Store) DB() storage.DB {
	return s.db
}

func joinKey(prefix []byte, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}
