// Package storage provides quids's persistence layer (§6): a key-value
// interface with put/get/delete/compact/snapshot operations, and a Store
// built on top of it that implements rollup.BatchStore by laying out
// block headers, state-transition proofs, transaction records, and
// account histories the way the spec's "Persisted layout" describes.
//
// Grounded on the teacher's txpool/tx_journal.go (JSON-encoded records,
// one exported struct per record kind, mutex-guarded writer) generalized
// from an append-only file journal to a real KV backend.
package storage

import "errors"

// ErrNotFound is returned by KV.Get and Snapshot.Get when the key is
// absent.
var ErrNotFound = errors.New("storage: key not found")

// KV is the external key-value persistence interface quids's storage
// layer is built on (§6): put/get/delete/compact/snapshot. PebbleKV is
// the default concrete implementation.
type KV interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Compact() error
	Snapshot() (Snapshot, error)
	Close() error
}

// Snapshot is a point-in-time, read-only view over a KV store.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Close() error
}
