/*
	Package storage provides the persistence backends used by voxflow: a registry of
	key-value engines, a blob bucket opener for exports, and an optional Kafka log of
	dirty-region events.
*/
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/blang/semver"
)

// KeyValueDB is a flat key-value store with ordered prefix scans.  Get returns a nil
// value and nil error when the key does not exist.
type KeyValueDB interface {
	fmt.Stringer

	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error

	// Keys returns all keys with the given prefix in ascending order.
	Keys(prefix string) ([]string, error)

	Close() error
}

// StoreConfig selects an engine and gives it engine-specific settings.
type StoreConfig struct {
	Engine  string
	Path    string
	Options map[string]interface{}

	// Testing places Path under the OS temp directory.
	Testing bool
}

// Engine is a storage engine that can create stores.
type Engine interface {
	fmt.Stringer
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore returns a store and whether it was newly created.
	NewStore(StoreConfig) (KeyValueDB, bool, error)
}

var (
	enginesMu    sync.RWMutex
	availEngines = make(map[string]Engine)
)

// RegisterEngine makes an engine available by name.  Engines register from init().
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	availEngines[e.GetName()] = e
}

// GetEngine returns the named engine or nil if it isn't registered.
func GetEngine(name string) Engine {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return availEngines[name]
}

// EnginesAvailable returns a description of the available storage engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(availEngines))
	for name := range availEngines {
		names = append(names, name)
	}
	sort.Strings(names)
	descs := make([]string, len(names))
	for i, name := range names {
		descs[i] = availEngines[name].String()
	}
	return strings.Join(descs, "; ")
}

// NewStore opens a store using the engine named in the config.
func NewStore(c StoreConfig) (db KeyValueDB, created bool, err error) {
	if c.Engine == "" {
		c.Engine = "memory"
	}
	e := GetEngine(c.Engine)
	if e == nil {
		return nil, false, dvid.ConfigErrorf("no storage engine %q available (have %s)", c.Engine, EnginesAvailable())
	}
	db, created, err = e.NewStore(c)
	if err != nil {
		return nil, false, fmt.Errorf("unable to open %s store: %w", c.Engine, err)
	}
	dvid.Infof("Opened %s (created %t)\n", db, created)
	return db, created, nil
}

// GetBool returns a boolean engine option.
func (c StoreConfig) GetBool(key string) (value bool, found bool, err error) {
	v, found := c.Options[key]
	if !found {
		return false, false, nil
	}
	value, ok := v.(bool)
	if !ok {
		return false, true, fmt.Errorf("%q setting must be a bool (%v)", key, v)
	}
	return value, true, nil
}

// GetInt returns an integer engine option.  TOML decodes integers as int64.
func (c StoreConfig) GetInt(key string) (value int, found bool, err error) {
	v, found := c.Options[key]
	if !found {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int:
		return x, true, nil
	case int64:
		return int(x), true, nil
	case float64:
		return int(x), true, nil
	default:
		return 0, true, fmt.Errorf("%q setting must be an integer (%v)", key, v)
	}
}
