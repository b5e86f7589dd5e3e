package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/umbra-tech/umbra-wallet/internal/storage"
	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Key prefixes for the ledger store.
var (
	prefixBlock    = []byte("b/") // b/<index8> -> BlockContents JSON
	prefixTxOut    = []byte("t/") // t/<index8> -> TxOut JSON
	prefixTxOutPK  = []byte("p/") // p/<pubkey33> -> index8
	prefixKeyImage = []byte("i/") // i/<keyimage33> -> index8 (block that consumed it)

	keyNumBlocks = []byte("m/num_blocks")
	keyNumTxOuts = []byte("m/num_txouts")
)

// Store implements Ledger backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new ledger store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func indexKey(prefix []byte, index uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], index)
	return key
}

func bytesKey(prefix, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func getCounter(txn storage.Txn, key []byte) (uint64, error) {
	data, err := txn.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("counter %s: bad length %d", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func putCounter(txn storage.Txn, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return txn.Put(key, buf[:])
}

// NumBlocks returns the number of blocks in the local copy.
func (s *Store) NumBlocks() (uint64, error) {
	var n uint64
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		n, err = getCounter(txn, keyNumBlocks)
		return err
	})
	return n, err
}

// NumTxOuts returns the total number of txouts across all blocks.
func (s *Store) NumTxOuts() (uint64, error) {
	var n uint64
	err := s.db.View(func(txn storage.Txn) error {
		var err error
		n, err = getCounter(txn, keyNumTxOuts)
		return err
	})
	return n, err
}

// GetBlockContents returns the contents of the block at the given index.
func (s *Store) GetBlockContents(index uint64) (*BlockContents, error) {
	data, err := s.db.Get(indexKey(prefixBlock, index))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger block get: %w", err)
	}
	var contents BlockContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("ledger block unmarshal: %w", err)
	}
	return &contents, nil
}

// GetTxOutByIndex returns the txout at the given global index.
func (s *Store) GetTxOutByIndex(index uint64) (*tx.TxOut, error) {
	data, err := s.db.Get(indexKey(prefixTxOut, index))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrTxOutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger txout get: %w", err)
	}
	var out tx.TxOut
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("ledger txout unmarshal: %w", err)
	}
	return &out, nil
}

// GetTxOutIndexByPublicKey returns the global index of the txout with the
// given public key.
func (s *Store) GetTxOutIndexByPublicKey(publicKey []byte) (uint64, error) {
	data, err := s.db.Get(bytesKey(prefixTxOutPK, publicKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, ErrTxOutNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ledger txout index get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("ledger txout index: bad length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// ContainsKeyImage reports whether the key image has been consumed.
func (s *Store) ContainsKeyImage(image crypto.KeyImage) (bool, error) {
	return s.db.Has(bytesKey(prefixKeyImage, image[:]))
}

// AppendBlock appends a block to the local copy, assigning its txouts the
// next global indexes. The block row, txout rows, indexes, and counters
// are written in one transaction.
func (s *Store) AppendBlock(contents *BlockContents) (uint64, error) {
	var blockIndex uint64
	err := s.db.Update(func(txn storage.Txn) error {
		var err error
		blockIndex, err = getCounter(txn, keyNumBlocks)
		if err != nil {
			return err
		}
		txoIndex, err := getCounter(txn, keyNumTxOuts)
		if err != nil {
			return err
		}

		data, err := json.Marshal(contents)
		if err != nil {
			return fmt.Errorf("ledger block marshal: %w", err)
		}
		if err := txn.Put(indexKey(prefixBlock, blockIndex), data); err != nil {
			return err
		}

		for i := range contents.Outputs {
			out := &contents.Outputs[i]
			outData, err := json.Marshal(out)
			if err != nil {
				return fmt.Errorf("ledger txout marshal: %w", err)
			}
			if err := txn.Put(indexKey(prefixTxOut, txoIndex), outData); err != nil {
				return err
			}
			var idx [8]byte
			binary.BigEndian.PutUint64(idx[:], txoIndex)
			if err := txn.Put(bytesKey(prefixTxOutPK, out.PublicKey), idx[:]); err != nil {
				return err
			}
			txoIndex++
		}

		for _, image := range contents.KeyImages {
			var idx [8]byte
			binary.BigEndian.PutUint64(idx[:], blockIndex)
			if err := txn.Put(bytesKey(prefixKeyImage, image[:]), idx[:]); err != nil {
				return err
			}
		}

		if err := putCounter(txn, keyNumBlocks, blockIndex+1); err != nil {
			return err
		}
		return putCounter(txn, keyNumTxOuts, txoIndex)
	})
	if err != nil {
		return 0, fmt.Errorf("ledger append block: %w", err)
	}
	return blockIndex, nil
}

// GetMembershipProof returns a merkle proof that the txout at the given
// index is in the current txout set. The proof commits to the root over
// all txouts present at call time.
func (s *Store) GetMembershipProof(index uint64) (*tx.MembershipProof, error) {
	hashes, err := s.txOutHashes()
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(hashes)) {
		return nil, ErrTxOutNotFound
	}
	return &tx.MembershipProof{
		Index:        index,
		HighestIndex: uint64(len(hashes)) - 1,
		Path:         tx.ComputeMerklePath(hashes, index),
	}, nil
}

// TxOutSetRoot returns the merkle root over all txouts.
func (s *Store) TxOutSetRoot() (types.Hash, error) {
	hashes, err := s.txOutHashes()
	if err != nil {
		return types.Hash{}, err
	}
	return tx.ComputeMerkleRoot(hashes), nil
}

// txOutHashes loads the hash of every txout in index order.
func (s *Store) txOutHashes() ([]types.Hash, error) {
	n, err := s.NumTxOuts()
	if err != nil {
		return nil, err
	}
	hashes := make([]types.Hash, 0, n)
	err = s.db.ForEach(prefixTxOut, func(_, value []byte) error {
		var out tx.TxOut
		if err := json.Unmarshal(value, &out); err != nil {
			return fmt.Errorf("ledger txout unmarshal: %w", err)
		}
		hashes = append(hashes, out.Hash())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger scan txouts: %w", err)
	}
	return hashes, nil
}
