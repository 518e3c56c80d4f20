package ethdb

import "sync"

// MemoryDB is an ephemeral, in-memory KeyValueStore. It is the default store
// for tests and for tries that never need to survive process restart.
type MemoryDB struct {
	mu sync.RWMutex
	db map[string][]byte
}

// NewMemoryDB returns an empty in-memory store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{db: make(map[string][]byte)}
}

// Get implements KeyValueStore.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.db[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Has implements KeyValueStore.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.db[string(key)]
	return ok, nil
}

// Put implements KeyValueStore.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.db[string(key)] = cp
	return nil
}

// Delete implements KeyValueStore.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.db, string(key))
	return nil
}

// NewBatch implements KeyValueStore.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

// Close implements KeyValueStore. MemoryDB holds no external resources.
func (m *MemoryDB) Close() error { return nil }

// Len returns the number of keys currently stored, for tests and metrics.
func (m *MemoryDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.db)
}

// Keys returns every key currently stored, in no particular order. It exists
// for tests and offline inspection tools that need to enumerate a store's
// contents; MemoryDB has no other iteration primitive.
func (m *MemoryDB) Keys() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([][]byte, 0, len(m.db))
	for k := range m.db {
		keys = append(keys, []byte(k))
	}
	return keys
}

type memoryOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memoryBatch struct {
	db   *MemoryDB
	ops  []memoryOp
	size int
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), delete: true})
	b.size += len(key)
	return nil
}

func (b *memoryBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.db, string(op.key))
			continue
		}
		b.db.db[string(op.key)] = op.value
	}
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
