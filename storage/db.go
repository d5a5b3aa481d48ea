package storage

import (
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is the keyed access shared by every backend. Keys are ordered
// byte-wise, so Iterate visits a prefix in ascending order.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Tx is a read-write unit of work. Nothing written through a Tx is visible
// to other transactions until Commit; Discard drops every write. Discard
// after Commit is a no-op.
type Tx interface {
	KV
	Commit() error
	Discard()
}

// Database is a generic interface for a transactional key-value store.
// This allows the ledger to use any backend (in-memory or persistent).
type Database interface {
	Begin() (Tx, error)
	Close() error
}

// Open returns a database for the named backend. Path is ignored for the
// in-memory backend.
func Open(backend, path string) (Database, error) {
	var (
		db  Database
		err error
	)
	switch backend {
	case "", BackendLevelDB:
		db, err = NewLevelDB(path)
	case BackendBolt:
		db, err = NewBoltDB(path)
	case BackendMemory:
		db, err = NewMemDB()
	default:
		return nil, errors.New("storage: unknown backend " + backend)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
