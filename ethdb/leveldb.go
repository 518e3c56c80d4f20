package ethdb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDB is a durable KeyValueStore backed by goleveldb. It is the store
// used when nodes must survive process restart (e.g. persisting world state
// across client runs).
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a goleveldb database at path, with
// the given in-memory cache budget in bytes and number of open file handles.
func OpenLevelDB(path string, cacheBytes, handles int) (*LevelDB, error) {
	if cacheBytes < opt.MiB {
		cacheBytes = opt.MiB
	}
	if handles < 16 {
		handles = 16
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheBytes / 2,
		WriteBuffer:            cacheBytes / 4,
		Filter:                 nil,
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Get implements KeyValueStore.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Has implements KeyValueStore.
func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

// Put implements KeyValueStore.
func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

// Delete implements KeyValueStore.
func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

// NewBatch implements KeyValueStore.
func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

// Close implements KeyValueStore.
func (l *LevelDB) Close() error { return l.db.Close() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	size  int
}

func (b *levelBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, nil)
}

func (b *levelBatch) ValueSize() int { return b.size }

func (b *levelBatch) Reset() {
	b.batch.Reset()
	b.size = 0
}

// IsNotFound reports whether err denotes a missing key in either this
// package's or goleveldb's own vocabulary.
func IsNotFound(err error) bool {
	return err == ErrNotFound || err == leveldb.ErrNotFound
}
