// Package storage provides database abstractions.
package storage

import "errors"

// ErrKeyNotFound is returned by Get when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Txn is the operation surface available inside a transaction.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// DB is the interface for key-value storage. The direct methods are
// single-operation conveniences; multi-row mutations that must be
// crash-atomic go through Update.
type DB interface {
	Txn

	// View runs fn inside a read-only transaction.
	View(fn func(Txn) error) error

	// Update runs fn inside a read-write transaction. Either every write
	// fn performs is committed, or (on error) none are.
	Update(fn func(Txn) error) error

	Close() error
}
