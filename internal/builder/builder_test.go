package builder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umbra-tech/umbra-wallet/config"
	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/internal/storage"
	"github.com/umbra-tech/umbra-wallet/internal/sync"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

const minFee = uint64(config.NativeMinimumFee)

type testEnv struct {
	store  *walletdb.Store
	ledger *ledger.Store
	engine *sync.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := walletdb.NewStore(storage.NewMemory())
	ldg := ledger.NewStore(storage.NewMemory())
	cfg := config.SyncConfig{
		NumWorkers:   1,
		PollInterval: time.Second,
		ChunkSize:    config.MaxBlocksChunkSize,
	}
	return &testEnv{
		store:  store,
		ledger: ldg,
		engine: sync.NewEngine(store, ldg, cfg),
	}
}

// fundAccount creates an account, mints a block holding one output per
// value (plus unrelated outputs so rings have decoys), and syncs.
func (env *testEnv) fundAccount(t *testing.T, values []uint64, token types.TokenID) (*walletdb.Account, *keys.AccountKey) {
	t.Helper()
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)
	acct, err := env.store.CreateAccount(key, "payer", 0)
	require.NoError(t, err)
	env.fundExisting(t, key, values, token)
	require.NoError(t, env.engine.SyncAccount(acct.ID))
	return acct, key
}

func (env *testEnv) fundExisting(t *testing.T, key *keys.AccountKey, values []uint64, token types.TokenID) {
	t.Helper()
	var outs []tx.TxOut
	for _, v := range values {
		built, err := tx.NewTxOut(types.NewAmount(v, token), key.Subaddress(keys.MainSubaddressIndex), nil)
		require.NoError(t, err)
		outs = append(outs, *built.TxOut)
	}
	for i := 0; i < config.RingSize+2; i++ {
		stranger, err := keys.RandomAccountKey()
		require.NoError(t, err)
		built, err := tx.NewTxOut(types.NewAmount(1, token), stranger.Subaddress(0), nil)
		require.NoError(t, err)
		outs = append(outs, *built.TxOut)
	}
	_, err := env.ledger.AppendBlock(&ledger.BlockContents{Outputs: outs})
	require.NoError(t, err)
}

func newRecipient(t *testing.T) (*keys.AccountKey, *keys.PublicAddress) {
	t.Helper()
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)
	return key, key.Subaddress(keys.MainSubaddressIndex)
}

func TestBuildRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	recipientKey, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(300, types.TokenNative))

	proposal, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, proposal.Tx.Validate())

	require.Len(t, proposal.InputTxos, 1)
	require.Len(t, proposal.PayloadTxos, 1)
	require.Equal(t, uint64(300), proposal.PayloadTxos[0].Value)
	require.Len(t, proposal.ChangeTxos, 1)
	require.Equal(t, uint64(700), proposal.ChangeTxos[0].Value)
	require.Equal(t, minFee, proposal.Tx.Prefix.Fee.Value)

	// Default tombstone: tip plus the horizon.
	numBlocks, err := env.ledger.NumBlocks()
	require.NoError(t, err)
	require.Equal(t, numBlocks+config.DefaultTombstoneHorizon, proposal.Tx.Prefix.TombstoneBlock)

	// Every ring has the configured size.
	for _, in := range proposal.Tx.Prefix.Inputs {
		require.Len(t, in.Ring, config.RingSize)
		require.Len(t, in.Proofs, config.RingSize)
	}

	// The recipient recognizes and decodes the payload output, and the
	// confirmation number checks out.
	out := proposal.PayloadTxos[0].TxOut
	amount, _, ok := out.ViewKeyMatch(recipientKey.ViewPrivate())
	require.True(t, ok)
	require.Equal(t, uint64(300), amount.Value)
	require.False(t, proposal.PayloadTxos[0].Confirmation.IsZero())
}

func TestBuildExactAmountElidesChange(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.fundAccount(t, []uint64{minFee + 500}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(500, types.TokenNative))

	proposal, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, proposal.Tx.Validate())
	require.Len(t, proposal.ChangeTxos, 0)
	require.Len(t, proposal.Tx.Prefix.Outputs, 1)

	// Change goes to the change subaddress when present.
	b2, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	env.fundExisting(t, key, []uint64{minFee + 500}, types.TokenNative)
	require.NoError(t, env.engine.SyncAccount(acct.ID))
	b2.AddRecipient(recipientAddr, types.NewAmount(100, types.TokenNative))
	proposal2, err := b2.Build()
	require.NoError(t, err)
	require.Len(t, proposal2.ChangeTxos, 1)
	change := proposal2.ChangeTxos[0].TxOut
	_, spendKey, ok := change.ViewKeyMatch(key.ViewPrivate())
	require.True(t, ok)
	require.True(t, spendKey.Equal(key.SubaddressSpendPublic(keys.ChangeSubaddressIndex)))
}

func TestBuildUnsignedThenSign(t *testing.T) {
	env := newTestEnv(t)
	acct, key := env.fundAccount(t, []uint64{minFee + 900}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(400, types.TokenNative))

	unsigned, err := b.BuildUnsigned()
	require.NoError(t, err)
	require.Len(t, unsigned.Inputs, 1)
	require.Len(t, unsigned.OutputBlindings, len(unsigned.Prefix.Outputs))

	proposal, err := Sign(unsigned, key)
	require.NoError(t, err)
	require.NoError(t, proposal.Tx.Validate())
	require.False(t, proposal.InputTxos[0].KeyImage.IsZero())
}

func TestSignRejectsWrongKey(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 900}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(400, types.TokenNative))
	unsigned, err := b.BuildUnsigned()
	require.NoError(t, err)

	wrongKey, err := keys.RandomAccountKey()
	require.NoError(t, err)
	_, err = Sign(unsigned, wrongKey)
	require.Error(t, err)
}

func TestViewOnlyAccountBuildFlow(t *testing.T) {
	env := newTestEnv(t)
	key, err := keys.RandomAccountKey()
	require.NoError(t, err)
	acct, err := env.store.ImportViewOnlyAccount(key.ViewOnly(), "watcher", 0)
	require.NoError(t, err)
	env.fundExisting(t, key, []uint64{minFee + 900}, types.TokenNative)
	require.NoError(t, env.engine.SyncAccount(acct.ID))
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(400, types.TokenNative))

	// The offline half signs what the online half assembled.
	_, err = b.Build()
	require.ErrorIs(t, err, ErrViewOnlyAccount)

	unsigned, err := b.BuildUnsigned()
	require.NoError(t, err)
	proposal, err := Sign(unsigned, key)
	require.NoError(t, err)
	require.NoError(t, proposal.Tx.Validate())
}

func TestBuildOutlayErrors(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	_, err = b.Build()
	require.ErrorIs(t, err, ErrNoOutlays)

	b, err = New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	b.AddRecipient(recipientAddr, types.NewAmount(10, 4))
	_, err = b.Build()
	require.ErrorIs(t, err, ErrMixedOutlayTokens)

	b, err = New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.RequireSingleRecipient()
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	_, err = b.Build()
	require.ErrorIs(t, err, ErrMultipleRecipients)
}

func TestBuildFeeErrors(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	// Explicit fee below the consensus minimum.
	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	b.SetFee(minFee - 1)
	_, err = b.Build()
	require.ErrorIs(t, err, ErrFeeBelowMinimum)

	// Fee in another token without the opt-in.
	b, err = New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	b.SetFeeToken(4)
	_, err = b.Build()
	require.ErrorIs(t, err, ErrMixedTokenFee)

	// No network default fee for an unknown token and no override.
	b, err = New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, 4))
	_, err = b.Build()
	require.ErrorIs(t, err, ErrFeeUnavailable)
}

func TestBuildInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee / 2}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	_, err = b.Build()
	require.ErrorIs(t, err, walletdb.ErrInsufficientFunds)
}

func TestBuildFragmentedFunds(t *testing.T) {
	env := newTestEnv(t)

	// Plenty of total value, but covering outlay+fee takes more inputs
	// than one transaction may carry.
	values := make([]uint64, 20)
	for i := range values {
		values[i] = minFee / 10
	}
	acct, _ := env.fundAccount(t, values, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(minFee, types.TokenNative))
	_, err = b.Build()
	require.ErrorIs(t, err, walletdb.ErrInsufficientFundsFragmented)
}

func TestBuildExplicitInputs(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000, minFee + 2000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	txos, err := env.store.UnspentTxos(acct.ID, types.TokenNative)
	require.NoError(t, err)
	require.Len(t, txos, 2)

	var chosen *walletdb.Txo
	for _, txo := range txos {
		if txo.Value == minFee+2000 {
			chosen = txo
		}
	}
	require.NotNil(t, chosen)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(1500, types.TokenNative))
	b.SetInputTxos([]types.TxoID{chosen.ID})

	proposal, err := b.Build()
	require.NoError(t, err)
	require.Len(t, proposal.InputTxos, 1)
	require.Equal(t, chosen.ID, proposal.InputTxos[0].TxoID)

	// A reserved input is rejected.
	require.NoError(t, env.store.MarkTxosPending([]types.TxoID{chosen.ID}, 99))
	b, err = New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(1500, types.TokenNative))
	b.SetInputTxos([]types.TxoID{chosen.ID})
	_, err = b.Build()
	require.ErrorIs(t, err, ErrTxoNotSpendable)
}

func TestBuildExplicitTombstone(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(10, types.TokenNative))
	b.SetTombstone(12345)

	proposal, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, uint64(12345), proposal.Tx.Prefix.TombstoneBlock)
}

// fakeSubmitter records submissions, optionally failing them.
type fakeSubmitter struct {
	submitted []*tx.Tx
	err       error
}

func (f *fakeSubmitter) SubmitTx(t *tx.Tx) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, t)
	return nil
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(300, types.TokenNative))
	proposal, err := b.Build()
	require.NoError(t, err)

	submitter := &fakeSubmitter{}
	logRow, err := Submit(env.store, env.ledger, submitter, acct.ID, proposal, "rent")
	require.NoError(t, err)
	require.Len(t, submitter.submitted, 1)
	require.Equal(t, walletdb.LogPending, logRow.Status)
	require.Equal(t, proposal.Tx.Prefix.Hash(), logRow.ID)
	require.Equal(t, "rent", logRow.Comment)

	// Inputs are reserved the moment the submission is recorded.
	got, err := env.store.GetTxo(proposal.InputTxos[0].TxoID)
	require.NoError(t, err)
	require.Equal(t, walletdb.TxoPending, got.Status())

	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), balances[types.TokenNative].Unspent)
	require.Equal(t, minFee+1000, balances[types.TokenNative].Pending)
}

func TestSubmitNetworkFailureLeavesInputsFree(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(300, types.TokenNative))
	proposal, err := b.Build()
	require.NoError(t, err)

	submitter := &fakeSubmitter{err: errors.New("network down")}
	_, err = Submit(env.store, env.ledger, submitter, acct.ID, proposal, "")
	require.Error(t, err)

	got, err := env.store.GetTxo(proposal.InputTxos[0].TxoID)
	require.NoError(t, err)
	require.Equal(t, walletdb.TxoUnspent, got.Status())

	logs, err := env.store.ListTransactionLogs(acct.ID)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestSubmittedTransactionConfirms(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.fundAccount(t, []uint64{minFee + 1000}, types.TokenNative)
	_, recipientAddr := newRecipient(t)

	b, err := New(env.store, env.ledger, acct.ID)
	require.NoError(t, err)
	b.AddRecipient(recipientAddr, types.NewAmount(300, types.TokenNative))
	proposal, err := b.Build()
	require.NoError(t, err)

	logRow, err := Submit(env.store, env.ledger, &fakeSubmitter{}, acct.ID, proposal, "")
	require.NoError(t, err)

	// The transaction lands: its outputs are minted and its key images
	// consumed. The sync engine finalizes the log and marks the inputs.
	var images = make([]crypto.KeyImage, 0, len(proposal.InputTxos))
	for _, in := range proposal.InputTxos {
		images = append(images, in.KeyImage)
	}
	_, err = env.ledger.AppendBlock(&ledger.BlockContents{
		Outputs:   proposal.Tx.Prefix.Outputs,
		KeyImages: images,
	})
	require.NoError(t, err)
	require.NoError(t, env.engine.SyncAccount(acct.ID))

	stored, err := env.store.GetTransactionLog(logRow.ID)
	require.NoError(t, err)
	require.Equal(t, walletdb.LogSucceeded, stored.Status)

	got, err := env.store.GetTxo(proposal.InputTxos[0].TxoID)
	require.NoError(t, err)
	require.Equal(t, walletdb.TxoSpent, got.Status())

	// The change output comes back as a fresh unspent txo.
	balances, err := env.store.Balances(acct.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(700), balances[types.TokenNative].Unspent)
}
