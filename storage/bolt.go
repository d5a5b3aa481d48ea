package storage

import (
	"bytes"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketLedger = []byte("ledger")

// BoltDB stores every record in a single bucket of a bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (and initialises) the bbolt file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	if path == "" {
		return nil, errors.New("storage: bolt path required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLedger)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// Begin starts a writable bbolt transaction.
func (b *BoltDB) Begin() (Tx, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &boltTx{tx: tx, bucket: tx.Bucket(bucketLedger)}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	done   bool
}

func (t *boltTx) Get(key []byte) ([]byte, error) {
	value := t.bucket.Get(key)
	if value == nil {
		return nil, ErrNotFound
	}
	return clone(value), nil
}

func (t *boltTx) Put(key []byte, value []byte) error {
	return t.bucket.Put(key, clone(value))
}

func (t *boltTx) Delete(key []byte) error {
	return t.bucket.Delete(key)
}

func (t *boltTx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	c := t.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(clone(k), clone(v)); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) Commit() error {
	if t.done {
		return errors.New("storage: transaction already finished")
	}
	t.done = true
	return t.tx.Commit()
}

func (t *boltTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
}
