// Package storage provides the key-value persistence layer for the money
// market: a small Database abstraction with in-memory, LevelDB and Bolt
// backends, plus the typed state store built on top of it.
package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	bolt "go.etcd.io/bbolt"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a generic key-value store so the ledger can run on any
// backend: in-memory for tests, LevelDB or Bolt for deployments.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Iterate visits every key with the given prefix in ascending order.
	// Returning an error from fn stops the walk.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// MemDB is an in-memory Database for tests.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB constructs an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	db.mu.RLock()
	keys := make([]string, 0, len(db.data))
	for k := range db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	db.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		db.mu.RLock()
		value := append([]byte(nil), db.data[k]...)
		db.mu.RUnlock()
		if err := fn([]byte(k), value); err != nil {
			return err
		}
	}
	return nil
}

func (db *MemDB) Close() error { return nil }

// LevelDB is a persistent Database backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the given path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (l *LevelDB) Close() error { return l.db.Close() }

var boltBucket = []byte("lendnet")

// BoltDB is a persistent Database backed by bbolt.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates or opens a Bolt database file at the given path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

func (b *BoltDB) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			key := append([]byte(nil), k...)
			value := append([]byte(nil), v...)
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Close() error { return b.db.Close() }
