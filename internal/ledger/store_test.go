package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func randomTxOut(t *testing.T, value uint64) tx.TxOut {
	t.Helper()
	recipient, err := keys.RandomAccountKey()
	require.NoError(t, err)
	built, err := tx.NewTxOut(types.NewAmount(value, types.TokenNative), recipient.Subaddress(0), nil)
	require.NoError(t, err)
	return *built.TxOut
}

func randomKeyImage(t *testing.T) crypto.KeyImage {
	t.Helper()
	s, err := crypto.RandomScalar()
	require.NoError(t, err)
	return crypto.NewKeyImage(s)
}

func TestStoreEmpty(t *testing.T) {
	s := testStore(t)

	n, err := s.NumBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	n, err = s.NumTxOuts()
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	_, err = s.GetBlockContents(0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetTxOutByIndex(0)
	require.ErrorIs(t, err, ErrTxOutNotFound)
}

func TestStoreAppendBlock(t *testing.T) {
	s := testStore(t)

	out1 := randomTxOut(t, 100)
	out2 := randomTxOut(t, 200)
	image := randomKeyImage(t)

	index, err := s.AppendBlock(&BlockContents{
		Outputs:   []tx.TxOut{out1, out2},
		KeyImages: []crypto.KeyImage{image},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)

	n, err := s.NumBlocks()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	n, err = s.NumTxOuts()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	contents, err := s.GetBlockContents(0)
	require.NoError(t, err)
	require.Len(t, contents.Outputs, 2)
	require.Len(t, contents.KeyImages, 1)

	got, err := s.GetTxOutByIndex(1)
	require.NoError(t, err)
	require.Equal(t, out2.PublicKey, got.PublicKey)

	idx, err := s.GetTxOutIndexByPublicKey(out1.PublicKey)
	require.NoError(t, err)
	require.Equal(t, uint64(0), idx)

	spent, err := s.ContainsKeyImage(image)
	require.NoError(t, err)
	require.True(t, spent)

	spent, err = s.ContainsKeyImage(randomKeyImage(t))
	require.NoError(t, err)
	require.False(t, spent)
}

func TestStoreGlobalIndexesSpanBlocks(t *testing.T) {
	s := testStore(t)

	out1 := randomTxOut(t, 1)
	out2 := randomTxOut(t, 2)
	out3 := randomTxOut(t, 3)

	_, err := s.AppendBlock(&BlockContents{Outputs: []tx.TxOut{out1, out2}})
	require.NoError(t, err)
	index, err := s.AppendBlock(&BlockContents{Outputs: []tx.TxOut{out3}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)

	idx, err := s.GetTxOutIndexByPublicKey(out3.PublicKey)
	require.NoError(t, err)
	require.Equal(t, uint64(2), idx)

	got, err := s.GetTxOutByIndex(2)
	require.NoError(t, err)
	require.Equal(t, out3.PublicKey, got.PublicKey)
}

func TestStoreMembershipProof(t *testing.T) {
	s := testStore(t)

	outs := make([]tx.TxOut, 5)
	for i := range outs {
		outs[i] = randomTxOut(t, uint64(i+1))
	}
	_, err := s.AppendBlock(&BlockContents{Outputs: outs[:3]})
	require.NoError(t, err)
	_, err = s.AppendBlock(&BlockContents{Outputs: outs[3:]})
	require.NoError(t, err)

	root, err := s.TxOutSetRoot()
	require.NoError(t, err)

	for i := range outs {
		proof, err := s.GetMembershipProof(uint64(i))
		require.NoError(t, err)
		require.Equal(t, uint64(i), proof.Index)
		require.Equal(t, uint64(4), proof.HighestIndex)
		require.True(t, proof.VerifyMembership(outs[i].Hash(), root),
			"txout %d membership proof failed", i)
	}

	_, err = s.GetMembershipProof(5)
	require.True(t, errors.Is(err, ErrTxOutNotFound))
}
