package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umbra-tech/umbra-wallet/config"
	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/internal/storage"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

type testEnv struct {
	store  *walletdb.Store
	ledger *ledger.Store
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := walletdb.NewStore(storage.NewMemory())
	ldg := ledger.NewStore(storage.NewMemory())
	cfg := config.SyncConfig{
		NumWorkers:   2,
		PollInterval: 10 * time.Millisecond,
		ChunkSize:    config.MaxBlocksChunkSize,
	}
	return &testEnv{
		store:  store,
		ledger: ldg,
		engine: NewEngine(store, ldg, cfg),
	}
}

func (env *testEnv) createAccount(t *testing.T) (*walletdb.Account, *keys.AccountKey) {
	t.Helper()
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)
	acct, err := env.store.CreateAccount(key, "test", 0)
	require.NoError(t, err)
	return acct, key
}

func outputTo(t *testing.T, addr *keys.PublicAddress, value uint64, token types.TokenID) tx.TxOut {
	t.Helper()
	built, err := tx.NewTxOut(types.NewAmount(value, token), addr, nil)
	require.NoError(t, err)
	return *built.TxOut
}

// strangerOutput mints an output no test account owns.
func strangerOutput(t *testing.T, value uint64) tx.TxOut {
	t.Helper()
	stranger, err := keys.RandomAccountKey()
	require.NoError(t, err)
	return outputTo(t, stranger.Subaddress(0), value, types.TokenNative)
}

func (env *testEnv) appendBlock(t *testing.T, outputs []tx.TxOut, images []crypto.KeyImage) uint64 {
	t.Helper()
	index, err := env.ledger.AppendBlock(&ledger.BlockContents{Outputs: outputs, KeyImages: images})
	require.NoError(t, err)
	return index
}

func TestSyncAccountDiscoversOwnedOutput(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	env.appendBlock(t, []tx.TxOut{
		strangerOutput(t, 7),
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
		strangerOutput(t, 9),
	}, nil)

	require.NoError(t, env.engine.SyncAccount(acct.ID))

	got, err := env.store.GetAccount(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.NextBlock)

	txos, err := env.store.ListTxos(acct.ID)
	require.NoError(t, err)
	require.Len(t, txos, 1)
	require.Equal(t, uint64(100), txos[0].Value)
	require.Equal(t, uint64(0), *txos[0].ReceivedBlock)
	require.Equal(t, walletdb.TxoUnspent, txos[0].Status())
	require.NotNil(t, txos[0].KeyImage)

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balances[types.TokenNative].Unspent)
}

func TestSyncAccountObservesSpend(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
	}, nil)
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	txos, err := env.store.ListTxos(acct.ID)
	require.NoError(t, err)
	require.Len(t, txos, 1)

	// A later block consumes the key image.
	spendBlock := env.appendBlock(t, nil, []crypto.KeyImage{*txos[0].KeyImage})
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	got, err := env.store.GetTxo(txos[0].ID)
	require.NoError(t, err)
	require.Equal(t, walletdb.TxoSpent, got.Status())
	require.Equal(t, spendBlock, *got.SpentBlock)
}

func TestSyncAccountRepeatIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
	}, nil)

	require.NoError(t, env.engine.SyncAccount(acct.ID))
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	txos, err := env.store.ListTxos(acct.ID)
	require.NoError(t, err)
	require.Len(t, txos, 1)

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balances[types.TokenNative].Unspent)
}

func TestSyncAccountChunking(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	numBlocks := uint64(config.MaxBlocksChunkSize + 2)
	for i := uint64(0); i < numBlocks; i++ {
		env.appendBlock(t, []tx.TxOut{
			outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 10, types.TokenNative),
		}, nil)
	}

	result, err := env.engine.SyncAccountChunk(acct.ID)
	require.NoError(t, err)
	require.Equal(t, moreBlocksPotentially, result)

	got, err := env.store.GetAccount(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(config.MaxBlocksChunkSize), got.NextBlock)

	result, err = env.engine.SyncAccountChunk(acct.ID)
	require.NoError(t, err)
	require.Equal(t, noMoreBlocks, result)

	got, err = env.store.GetAccount(acct.ID)
	require.NoError(t, err)
	require.Equal(t, numBlocks, got.NextBlock)

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, 10*numBlocks, balances[types.TokenNative].Unspent)
}

func TestSyncVanishedAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.SyncAccountChunk(types.AccountID{1})
	require.ErrorIs(t, err, walletdb.ErrAccountNotFound)
}

func TestSyncViewOnlyAccount(t *testing.T) {
	env := newTestEnv(t)
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)
	acct, err := env.store.ImportViewOnlyAccount(key.ViewOnly(), "watcher", 0)
	require.NoError(t, err)

	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
	}, nil)
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	txos, err := env.store.ListTxos(acct.ID)
	require.NoError(t, err)
	require.Len(t, txos, 1)
	require.Equal(t, walletdb.TxoUnspent, txos[0].Status())
	// View-only accounts cannot derive key images.
	require.Nil(t, txos[0].KeyImage)
}

func TestSyncStoresOrphanedOutput(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	// Sent to an index the wallet has not assigned yet.
	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.DefaultNextSubaddressIndex), 55, types.TokenNative),
	}, nil)
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	txos, err := env.store.ListTxos(acct.ID)
	require.NoError(t, err)
	require.Len(t, txos, 1)
	require.Equal(t, walletdb.TxoOrphaned, txos[0].Status())

	// Assigning the index claims it.
	_, err = env.store.AssignNextSubaddress(acct.ID, "claim")
	require.NoError(t, err)

	got, err := env.store.GetTxo(txos[0].ID)
	require.NoError(t, err)
	require.Equal(t, walletdb.TxoUnspent, got.Status())
}

func TestSyncAccountStartsAtFirstBlock(t *testing.T) {
	env := newTestEnv(t)
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)

	// Block 0 holds an output the account will never scan.
	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
	}, nil)
	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 30, types.TokenNative),
	}, nil)

	acct, err := env.store.CreateAccount(key, "late", 1)
	require.NoError(t, err)
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(30), balances[types.TokenNative].Unspent)
}

func TestEngineBackgroundSync(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.createAccount(t)

	env.engine.Start()
	defer env.engine.Stop()

	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 100, types.TokenNative),
	}, nil)

	deadline := time.After(5 * time.Second)
	for {
		got, err := env.store.GetAccount(acct.ID)
		require.NoError(t, err)
		if got.NextBlock == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("engine never caught the account up")
		case <-time.After(5 * time.Millisecond):
		}
	}

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balances[types.TokenNative].Unspent)

	// The claim is released once the account is caught up, so the next
	// block gets picked up too.
	env.appendBlock(t, []tx.TxOut{
		outputTo(t, key.Subaddress(keys.MainSubaddressIndex), 25, types.TokenNative),
	}, nil)
	for {
		got, err := env.store.GetAccount(acct.ID)
		require.NoError(t, err)
		if got.NextBlock == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("engine never caught the second block")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClaims(t *testing.T) {
	claims := NewClaims()
	id := types.AccountID{1}

	require.True(t, claims.TryClaim(id))
	require.False(t, claims.TryClaim(id))
	require.Equal(t, 1, claims.Len())

	claims.Release(id)
	require.Equal(t, 0, claims.Len())
	require.True(t, claims.TryClaim(id))

	// Releasing an unclaimed account is a no-op.
	claims.Release(types.AccountID{2})
	require.Equal(t, 1, claims.Len())
}

func TestMsgQueueFIFO(t *testing.T) {
	q := newMsgQueue()
	q.push(message{accountID: types.AccountID{1}})
	q.push(message{accountID: types.AccountID{2}})
	require.Equal(t, 2, q.len())

	require.Equal(t, types.AccountID{1}, q.pop().accountID)
	require.Equal(t, types.AccountID{2}, q.pop().accountID)
	require.Equal(t, 0, q.len())
}

func TestMsgQueueBlocksUntilPush(t *testing.T) {
	q := newMsgQueue()
	done := make(chan message, 1)
	go func() {
		done <- q.pop()
	}()

	time.Sleep(10 * time.Millisecond)
	q.push(message{stop: true})

	select {
	case m := <-done:
		require.True(t, m.stop)
	case <-time.After(time.Second):
		t.Fatal("pop never woke up")
	}
}
