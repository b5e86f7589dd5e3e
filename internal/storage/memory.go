package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. Used by tests and as a
// throwaway backend.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// memoryTxn journals every overwritten key so an error can roll the whole
// write set back, mirroring badger's transaction semantics.
type memoryTxn struct {
	db       *MemoryDB
	journal  map[string][]byte // Original values of touched keys.
	existed  map[string]bool
	readOnly bool
}

func (t *memoryTxn) remember(k string) {
	if t.journal == nil {
		return
	}
	if _, seen := t.existed[k]; seen {
		return
	}
	old, ok := t.db.data[k]
	t.existed[k] = ok
	if ok {
		cp := make([]byte, len(old))
		copy(cp, old)
		t.journal[k] = cp
	}
}

func (t *memoryTxn) rollback() {
	for k, ok := range t.existed {
		if ok {
			t.db.data[k] = t.journal[k]
		} else {
			delete(t.db.data, k)
		}
	}
}

func (t *memoryTxn) Get(key []byte) ([]byte, error) {
	v, ok := t.db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *memoryTxn) Put(key, value []byte) error {
	k := string(key)
	t.remember(k)
	cp := make([]byte, len(value))
	copy(cp, value)
	t.db.data[k] = cp
	return nil
}

func (t *memoryTxn) Delete(key []byte) error {
	k := string(key)
	t.remember(k)
	delete(t.db.data, k)
	return nil
}

func (t *memoryTxn) Has(key []byte) (bool, error) {
	_, ok := t.db.data[string(key)]
	return ok, nil
}

func (t *memoryTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	keys := make([]string, 0)
	for k := range t.db.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), t.db.data[k]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTxn{db: m, readOnly: true}).Get(key)
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	return m.Update(func(txn Txn) error {
		return txn.Put(key, value)
	})
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	return m.Update(func(txn Txn) error {
		return txn.Delete(key)
	})
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTxn{db: m, readOnly: true}).Has(key)
}

// ForEach iterates over all keys with the given prefix in sorted order.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryTxn{db: m, readOnly: true}).ForEach(prefix, fn)
}

// View runs fn inside a read-locked transaction.
func (m *MemoryDB) View(fn func(Txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memoryTxn{db: m, readOnly: true})
}

// Update runs fn inside a write-locked transaction; on error every write
// is rolled back.
func (m *MemoryDB) Update(fn func(Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := &memoryTxn{
		db:      m,
		journal: make(map[string][]byte),
		existed: make(map[string]bool),
	}
	if err := fn(txn); err != nil {
		txn.rollback()
		return err
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}
