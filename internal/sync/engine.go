// Package sync implements the ledger synchronization engine: a coordinator
// and a fixed worker pool that scan new blocks per account, recover owned
// outputs, and maintain txo lifecycles and sync cursors.
package sync

import (
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/umbra-tech/umbra-wallet/config"
	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/internal/log"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// chunkResult reports how a sync pass over one account ended.
type chunkResult int

const (
	// noMoreBlocks: the account is caught up with the local ledger.
	noMoreBlocks chunkResult = iota

	// moreBlocksPotentially: the chunk limit was hit with blocks still
	// unscanned.
	moreBlocksPotentially
)

// Engine drains new ledger blocks into per-account txo records.
type Engine struct {
	store  *walletdb.Store
	ledger ledger.Ledger
	cfg    config.SyncConfig

	claims *Claims
	queue  *msgQueue

	quit     chan struct{}
	stopOnce gosync.Once
	wg       gosync.WaitGroup
}

// NewEngine creates a sync engine over the given store and ledger.
func NewEngine(store *walletdb.Store, ldg ledger.Ledger, cfg config.SyncConfig) *Engine {
	return &Engine{
		store:  store,
		ledger: ldg,
		cfg:    cfg,
		claims: NewClaims(),
		queue:  newMsgQueue(),
		quit:   make(chan struct{}),
	}
}

// Start launches the worker pool and the coordinator.
func (e *Engine) Start() {
	for i := 0; i < e.cfg.NumWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.wg.Add(1)
	go e.coordinator()
	log.Sync.Info().Int("workers", e.cfg.NumWorkers).Msg("sync engine started")
}

// Stop signals shutdown and waits for the coordinator and all workers to
// finish their current message.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		for i := 0; i < e.cfg.NumWorkers; i++ {
			e.queue.push(message{stop: true})
		}
	})
	e.wg.Wait()
	log.Sync.Info().Msg("sync engine stopped")
}

// coordinator periodically scans all accounts and enqueues any that are
// behind the ledger tip and not already claimed.
func (e *Engine) coordinator() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		default:
		}

		enqueued, err := e.enqueueBehindAccounts()
		if err != nil {
			log.Sync.Error().Err(err).Msg("coordinator pass failed")
		}

		if !enqueued {
			select {
			case <-e.quit:
				return
			case <-time.After(e.cfg.PollInterval):
			}
		}
	}
}

// enqueueBehindAccounts claims and queues every account whose cursor is
// behind the ledger tip. Returns whether any account was enqueued.
func (e *Engine) enqueueBehindAccounts() (bool, error) {
	numBlocks, err := e.ledger.NumBlocks()
	if err != nil {
		return false, fmt.Errorf("ledger height: %w", err)
	}
	accounts, err := e.store.ListAccounts()
	if err != nil {
		return false, fmt.Errorf("list accounts: %w", err)
	}

	enqueued := false
	for _, acct := range accounts {
		if acct.NextBlock >= numBlocks {
			continue
		}
		if !e.claims.TryClaim(acct.ID) {
			continue
		}
		e.queue.push(message{accountID: acct.ID})
		enqueued = true
	}
	return enqueued, nil
}

// worker pops messages until told to stop. The claim taken by the
// coordinator is held across requeues and released on every other exit
// path, so an account can never get stuck claimed-but-unserviced.
func (e *Engine) worker(n int) {
	defer e.wg.Done()
	for {
		msg := e.queue.pop()
		if msg.stop {
			return
		}

		result, err := e.SyncAccountChunk(msg.accountID)
		switch {
		case errors.Is(err, walletdb.ErrAccountNotFound):
			// Deleted mid-scan; not an error.
			log.Sync.Debug().Stringer("account", msg.accountID).Msg("account vanished during sync")
			e.claims.Release(msg.accountID)
		case err != nil:
			log.Sync.Error().Err(err).Int("worker", n).Stringer("account", msg.accountID).Msg("sync chunk failed")
			e.claims.Release(msg.accountID)
		case result == moreBlocksPotentially:
			// Back of the queue: fair round-robin across accounts.
			e.queue.push(msg)
		default:
			e.claims.Release(msg.accountID)
		}
	}
}

// SyncAccountChunk scans up to the configured chunk of blocks for one
// account. Each block is committed atomically before the next is read.
func (e *Engine) SyncAccountChunk(id types.AccountID) (chunkResult, error) {
	for i := uint64(0); i < e.cfg.ChunkSize; i++ {
		// Re-load every block: the account may have been deleted or
		// resynced between blocks.
		acct, err := e.store.GetAccount(id)
		if err != nil {
			return noMoreBlocks, err
		}

		blockIndex := acct.NextBlock
		contents, err := e.ledger.GetBlockContents(blockIndex)
		if errors.Is(err, ledger.ErrNotFound) {
			return noMoreBlocks, nil
		}
		if err != nil {
			return noMoreBlocks, fmt.Errorf("block %d: %w", blockIndex, err)
		}

		discovered, err := e.scanBlock(acct, blockIndex, contents)
		if err != nil {
			return noMoreBlocks, fmt.Errorf("scan block %d: %w", blockIndex, err)
		}

		blockOutputKeys := make([][]byte, len(contents.Outputs))
		for j := range contents.Outputs {
			blockOutputKeys[j] = contents.Outputs[j].PublicKey
		}
		if err := e.store.ApplySyncBlock(id, blockIndex, discovered, contents.KeyImages, blockOutputKeys); err != nil {
			return noMoreBlocks, fmt.Errorf("apply block %d: %w", blockIndex, err)
		}

		if len(discovered) > 0 {
			log.Sync.Debug().
				Stringer("account", id).
				Uint64("block", blockIndex).
				Int("txos", len(discovered)).
				Msg("recognized outputs")
		}
	}
	return moreBlocksPotentially, nil
}

// SyncAccount runs chunks until the account is caught up. Used by callers
// that want a synchronous full scan (imports, tests).
func (e *Engine) SyncAccount(id types.AccountID) error {
	for {
		result, err := e.SyncAccountChunk(id)
		if err != nil {
			return err
		}
		if result == noMoreBlocks {
			return nil
		}
	}
}

// scanBlock view-key-matches every output in the block against the
// account and builds txo rows for the ones it owns.
func (e *Engine) scanBlock(acct *walletdb.Account, blockIndex uint64, contents *ledger.BlockContents) ([]*walletdb.Txo, error) {
	if len(contents.Outputs) == 0 {
		return nil, nil
	}

	viewKey, err := acct.ViewKey()
	if err != nil {
		return nil, err
	}
	subs, err := e.store.AssignedSubaddresses(acct.ID)
	if err != nil {
		return nil, err
	}
	assigned := make(map[string]uint64, len(subs))
	for _, sub := range subs {
		assigned[string(sub.SpendPublic)] = sub.Index
	}

	var accountKey *keys.AccountKey
	if !acct.ViewOnly {
		accountKey, err = acct.Key()
		if err != nil {
			return nil, err
		}
	}

	var discovered []*walletdb.Txo
	for i := range contents.Outputs {
		out := &contents.Outputs[i]
		amount, recoveredSpend, ok := out.ViewKeyMatch(viewKey.ViewPrivate())
		if !ok {
			continue
		}

		received := blockIndex
		txo := &walletdb.Txo{
			ID:                   out.ID(),
			AccountID:            acct.ID,
			Value:                amount.Value,
			TokenID:              amount.TokenID,
			TxOut:                *out,
			RecoveredSpendPublic: recoveredSpend.Bytes(),
			ReceivedBlock:        &received,
		}

		if index, ok := assigned[string(txo.RecoveredSpendPublic)]; ok {
			idx := index
			txo.SubaddressIndex = &idx
			if accountKey != nil {
				image, err := txo.DeriveKeyImage(accountKey, index)
				if err != nil {
					return nil, err
				}
				txo.KeyImage = &image
			}
		}
		// No assigned index: stored as orphaned, claimable when the
		// subaddress is assigned later.

		discovered = append(discovered, txo)
	}
	return discovered, nil
}
