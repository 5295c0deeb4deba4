/*
	Package badger registers a BadgerDB storage engine for persisting cache state.
*/
package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/storage"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
)

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in badger: %v\n", err)
	}
	storage.RegisterEngine(Engine{"badger", "BadgerDB", ver})
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger store.  The passed config must give a Path.
func (e Engine) NewStore(config storage.StoreConfig) (storage.KeyValueDB, bool, error) {
	return e.newDB(config)
}

func parsePath(config storage.StoreConfig) (string, error) {
	if config.Path == "" {
		return "", fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	if config.Testing {
		return filepath.Join(os.TempDir(), config.Path), nil
	}
	return config.Path, nil
}

func getOptions(path string, config storage.StoreConfig) (*badger.Options, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)

	readOnly, found, err := config.GetBool("ReadOnly")
	if err != nil {
		return nil, err
	}
	if found {
		opts.ReadOnly = readOnly
	}

	valueSizeThresh, found, err := config.GetInt("ValueThreshold")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithValueThreshold(int64(valueSizeThresh))
	}

	vlogSize, found, err := config.GetInt("ValueLogFileSize")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithValueLogFileSize(int64(vlogSize))
	}
	return &opts, nil
}

// Periodically sync to prevent too many writes from being buffered
// if the process crashes.
func syncPeriodically(bdp *badger.DB, directory string, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			dvid.Infof("Stopping sync goroutine for badger @ %s\n", directory)
			return
		case <-ticker.C:
			if err := bdp.Sync(); err != nil {
				dvid.Errorf("Unable to sync badger @ %s: %v\n", directory, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config storage.StoreConfig) (*BadgerDB, bool, error) {
	path, err := parsePath(config)
	if err != nil {
		return nil, false, err
	}

	var created bool
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dvid.Infof("Database not already at path (%s). Creating directory...\n", path)
		created = true
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, true, fmt.Errorf("Can't make directory at %s: %v", path, err)
		}
	}

	opts, err := getOptions(path, config)
	if err != nil {
		return nil, false, err
	}
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = false

	tlog := dvid.NewTimeLog()
	bdp, err := badger.Open(*opts)
	if err != nil {
		return nil, false, err
	}
	tlog.Infof("Opened badger @ path %s", path)

	db := &BadgerDB{
		directory:  path,
		bdp:        bdp,
		stopSyncCh: make(chan struct{}),
	}
	go syncPeriodically(bdp, path, db.stopSyncCh)
	return db, created, nil
}

// Delete removes the database directory of a closed store.
func (e Engine) Delete(config storage.StoreConfig) error {
	path, err := parsePath(config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("Can't delete old datastore %q: %v", path, err)
		}
	}
	return nil
}

// --- The BadgerDB Implementation must satisfy a storage.KeyValueDB interface ----

type BadgerDB struct {
	directory  string
	bdp        *badger.DB
	stopSyncCh chan struct{}
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	close(db.stopSyncCh)
	err := db.bdp.Close()
	db.bdp = nil
	dvid.Infof("Closed Badger DB @ %s\n", db.directory)
	return err
}

// Get returns a value given a key or nil if the key isn't present.
func (db *BadgerDB) Get(key string) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("Can't call Get on closed BadgerDB")
	}
	var v []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	storage.StoreValueBytesRead(len(v))
	return v, err
}

// Put writes a value with given key.
func (db *BadgerDB) Put(key string, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("Can't call Put on closed BadgerDB")
	}
	err := db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	storage.StoreValueBytesWritten(len(value))
	return err
}

// Delete removes a value with given key.
func (db *BadgerDB) Delete(key string) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("Can't call Delete on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys returns the keys with the given prefix in ascending order.  Values are not read.
func (db *BadgerDB) Keys(prefix string) ([]string, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("Can't call Keys on closed BadgerDB")
	}
	var keys []string
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}
