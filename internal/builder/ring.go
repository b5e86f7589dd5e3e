package builder

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
)

// ringSampler assembles decoy rings from the local ledger.
type ringSampler struct {
	ledger ledger.Ledger
	size   int
}

// randUint64n returns a uniform random value in [0, n).
func randUint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("randUint64n: zero bound")
	}
	// Rejection sampling to avoid modulo bias.
	max := ^uint64(0) - ^uint64(0)%n
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if v < max {
			return v % n, nil
		}
	}
}

// sampleRing builds a ring around the real txout at realIndex: decoys are
// drawn uniformly from the ledger's txout set, excluding the real output
// and anything in exclude (outputs already used elsewhere in the same
// proposal). The real output's position in the ring is randomized.
//
// If the ledger holds fewer distinct candidates than the ring needs,
// decoys repeat. Privacy degrades but the ring stays structurally valid,
// which matters on young ledgers.
func (r *ringSampler) sampleRing(realIndex uint64, exclude map[uint64]struct{}) ([]tx.TxOut, []tx.MembershipProof, int, error) {
	numTxOuts, err := r.ledger.NumTxOuts()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ledger txout count: %w", err)
	}
	if numTxOuts == 0 || realIndex >= numTxOuts {
		return nil, nil, 0, ErrRingSample
	}

	// Collect candidate decoy indexes.
	var candidates []uint64
	for i := uint64(0); i < numTxOuts; i++ {
		if i == realIndex {
			continue
		}
		if _, used := exclude[i]; used {
			continue
		}
		candidates = append(candidates, i)
	}

	// Fisher-Yates on the candidate list.
	for i := len(candidates) - 1; i > 0; i-- {
		j, err := randUint64n(uint64(i + 1))
		if err != nil {
			return nil, nil, 0, err
		}
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}

	decoyCount := r.size - 1
	indexes := make([]uint64, 0, r.size)
	if len(candidates) == 0 {
		// Degenerate single-output ledger: the ring is all copies of
		// the real output.
		for len(indexes) < decoyCount {
			indexes = append(indexes, realIndex)
		}
	} else {
		for len(indexes) < decoyCount {
			indexes = append(indexes, candidates[len(indexes)%len(candidates)])
		}
	}

	// Insert the real output at a random position.
	pos64, err := randUint64n(uint64(r.size))
	if err != nil {
		return nil, nil, 0, err
	}
	realPos := int(pos64)
	indexes = append(indexes[:realPos], append([]uint64{realIndex}, indexes[realPos:]...)...)

	ring := make([]tx.TxOut, r.size)
	proofs := make([]tx.MembershipProof, r.size)
	for i, idx := range indexes {
		out, err := r.ledger.GetTxOutByIndex(idx)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("ring member %d (txout %d): %w", i, idx, err)
		}
		proof, err := r.ledger.GetMembershipProof(idx)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("membership proof for txout %d: %w", idx, err)
		}
		ring[i] = *out
		proofs[i] = *proof
	}
	return ring, proofs, realPos, nil
}
