package badger

import (
	"testing"

	"github.com/janelia-flyem/voxflow/storage"

	"github.com/google/go-cmp/cmp"
	"github.com/twinj/uuid"
)

func TestBadgerStore(t *testing.T) {
	config := storage.StoreConfig{
		Engine:  "badger",
		Path:    "voxflow-test-badger-" + uuid.NewV4().String(),
		Testing: true,
		Options: map[string]interface{}{"ValueThreshold": int64(1024)},
	}
	e, ok := storage.GetEngine("badger").(Engine)
	if !ok {
		t.Fatalf("badger engine not registered")
	}
	defer e.Delete(config)

	db, created, err := storage.NewStore(config)
	if err != nil {
		t.Fatalf("can't open badger store: %v", err)
	}
	if !created {
		t.Errorf("expected new badger store to be created")
	}
	for _, k := range []string{"g/blocks/0_1", "g/blocks/0_0", "g/processed"} {
		if err := db.Put(k, []byte("v:"+k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := db.Delete("g/blocks/0_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, created, err = storage.NewStore(config)
	if err != nil {
		t.Fatalf("can't reopen badger store: %v", err)
	}
	defer db.Close()
	if created {
		t.Errorf("reopened store should not be reported as created")
	}
	keys, err := db.Keys("g/")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if diff := cmp.Diff([]string{"g/blocks/0_0", "g/processed"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	v, err := db.Get("g/processed")
	if err != nil || string(v) != "v:g/processed" {
		t.Errorf("bad value %q, %v", v, err)
	}
	if v, err := db.Get("g/blocks/0_1"); v != nil || err != nil {
		t.Errorf("deleted key returned %q, %v", v, err)
	}
}

func TestBadgerNeedsPath(t *testing.T) {
	if _, _, err := storage.NewStore(storage.StoreConfig{Engine: "badger"}); err == nil {
		t.Errorf("expected error for badger store without path")
	}
}
