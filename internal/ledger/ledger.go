// Package ledger maintains the local copy of the network ledger the wallet
// syncs against: an append-only sequence of blocks, each carrying the
// outputs it minted and the key images it consumed.
package ledger

import (
	"errors"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Errors returned by ledger reads.
var (
	// ErrNotFound is returned when a requested block does not exist yet.
	ErrNotFound = errors.New("block not found")

	// ErrTxOutNotFound is returned when a requested txout does not exist.
	ErrTxOutNotFound = errors.New("txout not found")
)

// BlockContents is what a block contributes to the wallet: the outputs it
// minted and the key images it consumed. Outputs carry no ownership
// information; every wallet scans every output.
type BlockContents struct {
	Outputs   []tx.TxOut        `json:"outputs"`
	KeyImages []crypto.KeyImage `json:"key_images"`
}

// Block is a block as stored locally, with its position in the chain.
type Block struct {
	Index    uint64        `json:"index"`
	Contents BlockContents `json:"contents"`
}

// Ledger is the read surface the sync engine and transaction builder need.
type Ledger interface {
	// NumBlocks returns the number of blocks in the local copy. The tip
	// has index NumBlocks()-1.
	NumBlocks() (uint64, error)

	// GetBlockContents returns the contents of the block at the given
	// index, or ErrNotFound if the local copy does not have it yet.
	GetBlockContents(index uint64) (*BlockContents, error)

	// NumTxOuts returns the total number of txouts across all blocks.
	NumTxOuts() (uint64, error)

	// GetTxOutByIndex returns the txout at the given global index.
	GetTxOutByIndex(index uint64) (*tx.TxOut, error)

	// GetTxOutIndexByPublicKey returns the global index of the txout with
	// the given public key.
	GetTxOutIndexByPublicKey(publicKey []byte) (uint64, error)

	// GetMembershipProof returns a merkle proof that the txout at the
	// given index is in the current txout set.
	GetMembershipProof(index uint64) (*tx.MembershipProof, error)

	// ContainsKeyImage reports whether the given key image has been
	// consumed by any block.
	ContainsKeyImage(image crypto.KeyImage) (bool, error)
}

// Root returns the merkle root of the given txout hashes. Exposed so
// verifiers can recompute the root a membership proof commits to.
func Root(hashes []types.Hash) types.Hash {
	return tx.ComputeMerkleRoot(hashes)
}
