package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/blang/semver"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in memory engine: %v\n", err)
	}
	RegisterEngine(memoryEngine{ver})
}

type memoryEngine struct {
	semver semver.Version
}

func (e memoryEngine) GetName() string { return "memory" }
func (e memoryEngine) GetDescription() string { return "In-process map store" }
func (e memoryEngine) GetSemVer() semver.Version { return e.semver }
func (e memoryEngine) String() string { return "memory [" + e.semver.String() + "]" }

func (e memoryEngine) NewStore(c StoreConfig) (KeyValueDB, bool, error) {
	return NewMemoryStore(), true, nil
}

// MemoryStore keeps values in a map.  Contents are lost on Close.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (db *MemoryStore) String() string {
	return "memory store"
}

func (db *MemoryStore) Get(key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, found := db.data[key]
	if !found {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	storeValueBytesRead.Add(float64(len(v)))
	return out, nil
}

func (db *MemoryStore) Put(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	db.mu.Lock()
	db.data[key] = v
	db.mu.Unlock()
	storeValueBytesWritten.Add(float64(len(v)))
	return nil
}

func (db *MemoryStore) Delete(key string) error {
	db.mu.Lock()
	delete(db.data, key)
	db.mu.Unlock()
	return nil
}

func (db *MemoryStore) Keys(prefix string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var keys []string
	for k := range db.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (db *MemoryStore) Close() error {
	db.mu.Lock()
	db.data = make(map[string][]byte)
	db.mu.Unlock()
	return nil
}
