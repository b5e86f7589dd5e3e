package tx

import (
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// MembershipProof proves a ring member existed in the ledger at the time
// the transaction was built: a merkle path from the txout hash to the
// ledger's txout-set root at HighestIndex.
type MembershipProof struct {
	// Index is the txout's global position in the ledger.
	Index uint64 `json:"index"`

	// HighestIndex is the last txout index covered by the root this
	// proof commits to.
	HighestIndex uint64 `json:"highest_index"`

	// Path holds the sibling hashes from leaf to root.
	Path []types.Hash `json:"path"`
}

// ComputeMerkleRoot calculates the merkle root of txout hashes.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns that hash
//   - Otherwise: pairwise hash, duplicating the last element if odd count,
//     then recurse on the resulting layer until one hash remains.
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	// Work on a copy so we don't mutate the caller's slice.
	level := make([]types.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}

	return level[0]
}

// ComputeMerklePath returns the sibling hashes for the leaf at index.
// The returned path pairs with VerifyMembership.
func ComputeMerklePath(hashes []types.Hash, index uint64) []types.Hash {
	if int(index) >= len(hashes) || len(hashes) < 2 {
		return nil
	}

	level := make([]types.Hash, len(hashes))
	copy(level, hashes)

	var path []types.Hash
	pos := index
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		sibling := pos ^ 1
		path = append(path, level[sibling])

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
		pos /= 2
	}
	return path
}

// VerifyMembership folds a leaf hash along the proof path and compares it
// to the expected root.
func (p *MembershipProof) VerifyMembership(leaf, root types.Hash) bool {
	acc := leaf
	pos := p.Index
	for _, sibling := range p.Path {
		if pos%2 == 0 {
			acc = crypto.HashConcat(acc, sibling)
		} else {
			acc = crypto.HashConcat(sibling, acc)
		}
		pos /= 2
	}
	return acc == root
}
