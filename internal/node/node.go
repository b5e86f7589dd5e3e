// Package node wires the wallet daemon together: databases, ledger copy,
// wallet store, sync engine, and transaction construction. It can be
// embedded in any binary.
package node

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/umbra-tech/umbra-wallet/config"
	"github.com/umbra-tech/umbra-wallet/internal/builder"
	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	klog "github.com/umbra-tech/umbra-wallet/internal/log"
	"github.com/umbra-tech/umbra-wallet/internal/storage"
	syncengine "github.com/umbra-tech/umbra-wallet/internal/sync"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Node is a fully-initialized wallet daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	walletDB storage.DB
	ledgerDB storage.DB

	store      *walletdb.Store
	ledgerCopy *ledger.Store
	sync       *syncengine.Engine

	// Submitter hands finished transactions to the network. Set by the
	// embedder; submission fails until it is.
	Submitter builder.Submitter
}

// New creates and initializes a Node. Background goroutines are not
// started; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/umbra-wallet.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	walletDB, err := storage.NewBadger(cfg.WalletDBDir())
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}
	ledgerDB, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		walletDB.Close()
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	store := walletdb.NewStore(walletDB)
	ledgerCopy := ledger.NewStore(ledgerDB)

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		walletDB:   walletDB,
		ledgerDB:   ledgerDB,
		store:      store,
		ledgerCopy: ledgerCopy,
		sync:       syncengine.NewEngine(store, ledgerCopy, cfg.Sync),
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("wallet node initialized")
	return n, nil
}

// Start launches the sync engine.
func (n *Node) Start() error {
	n.sync.Start()
	return nil
}

// Stop shuts down the sync engine and closes the databases.
func (n *Node) Stop() {
	n.sync.Stop()
	if err := n.walletDB.Close(); err != nil {
		n.logger.Error().Err(err).Msg("closing wallet db")
	}
	if err := n.ledgerDB.Close(); err != nil {
		n.logger.Error().Err(err).Msg("closing ledger db")
	}
	n.logger.Info().Msg("wallet node stopped")
}

// Store exposes the wallet store.
func (n *Node) Store() *walletdb.Store { return n.store }

// Ledger exposes the local ledger copy.
func (n *Node) Ledger() *ledger.Store { return n.ledgerCopy }

// Sync exposes the sync engine.
func (n *Node) Sync() *syncengine.Engine { return n.sync }

// CreateAccount generates a fresh mnemonic and stores the derived account.
// Returns the account and the mnemonic; the mnemonic is not persisted.
func (n *Node) CreateAccount(name string, firstBlock uint64) (*walletdb.Account, string, error) {
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		return nil, "", fmt.Errorf("generating mnemonic: %w", err)
	}
	acct, err := n.importMnemonic(mnemonic, 0, name, firstBlock)
	if err != nil {
		return nil, "", err
	}
	return acct, mnemonic, nil
}

// ImportAccount derives an account from a mnemonic and stores it.
func (n *Node) ImportAccount(mnemonic string, accountIndex uint32, name string, firstBlock uint64) (*walletdb.Account, error) {
	return n.importMnemonic(mnemonic, accountIndex, name, firstBlock)
}

func (n *Node) importMnemonic(mnemonic string, accountIndex uint32, name string, firstBlock uint64) (*walletdb.Account, error) {
	key, err := keys.AccountKeyFromMnemonic(mnemonic, accountIndex)
	if err != nil {
		return nil, fmt.Errorf("deriving account key: %w", err)
	}
	return n.store.CreateAccount(key, name, firstBlock)
}

// ImportViewOnlyAccount stores a watch account from its view key material.
func (n *Node) ImportViewOnlyAccount(key *keys.ViewAccountKey, name string, firstBlock uint64) (*walletdb.Account, error) {
	return n.store.ImportViewOnlyAccount(key, name, firstBlock)
}

// Balances returns the per-token balance breakdown of an account.
func (n *Node) Balances(id types.AccountID) (map[types.TokenID]walletdb.Balance, error) {
	return n.store.Balances(id)
}

// NewBuilder returns a transaction builder for the account.
func (n *Node) NewBuilder(id types.AccountID) (*builder.Builder, error) {
	b, err := builder.New(n.store, n.ledgerCopy, id)
	if err != nil {
		return nil, err
	}
	b.SetTombstoneHorizon(n.cfg.Tx.TombstoneHorizon)
	return b, nil
}

// Submit validates and submits a signed proposal, recording the pending
// transaction log.
func (n *Node) Submit(id types.AccountID, proposal *builder.TxProposal, comment string) (*walletdb.TransactionLog, error) {
	if n.Submitter == nil {
		return nil, fmt.Errorf("no network submitter configured")
	}
	return builder.Submit(n.store, n.ledgerCopy, n.Submitter, id, proposal, comment)
}
