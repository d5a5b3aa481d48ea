package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB. Transactions map
// onto leveldb.Transaction, which holds the write lock until it ends.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	if path == "" {
		return nil, errors.New("storage: leveldb path required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// --- In-Memory DB (for testing) ---

// NewMemDB returns a LevelDB instance backed by memory storage. It behaves
// exactly like the on-disk store and is discarded on Close.
func NewMemDB() (*LevelDB, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Begin opens a transaction.
func (ldb *LevelDB) Begin() (Tx, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &levelTx{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelTx struct {
	tr   *leveldb.Transaction
	done bool
}

func (t *levelTx) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (t *levelTx) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTx) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	it := t.tr.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if err := fn(clone(it.Key()), clone(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

func (t *levelTx) Commit() error {
	if t.done {
		return errors.New("storage: transaction already finished")
	}
	t.done = true
	return t.tr.Commit()
}

func (t *levelTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Discard()
}
