/*
	Package persist saves and restores the contents of a blocked cache into a key-value
	store.  A group holds one dataset per block under "<group>/blocks/<block-index>",
	the processed index set under "<group>/processed" and the grid under "<group>/grid".
*/
package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/janelia-flyem/voxflow/cache"
	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/storage"

	"github.com/dustin/go-humanize"
)

// Serializer saves and loads cache state within one group of a store.
type Serializer struct {
	Group       string
	Compression dvid.Compression
}

func (s Serializer) blockPrefix() string { return s.Group + "/blocks/" }
func (s Serializer) processedKey() string { return s.Group + "/processed" }
func (s Serializer) gridKey() string { return s.Group + "/grid" }

// BlockKey returns the dataset key of a block.
func (s Serializer) BlockKey(idx dvid.BlockIndex) string {
	return s.blockPrefix() + idx.String()
}

// Save writes every clean processed block of the store and the processed index set.
// Datasets of blocks that are no longer clean are removed from the group.
func (s Serializer) Save(ctx context.Context, db storage.KeyValueDB, store *cache.Store) error {
	grid := store.Grid()
	if grid == nil {
		return dvid.ConfigErrorf("cache %q is not configured, nothing to save", store.Name())
	}
	tlog := dvid.NewTimeLog()
	meta := gridMeta{
		Version:    formatVersion,
		Axes:       grid.Axes,
		Shape:      grid.Shape,
		BlockShape: grid.BlockShape,
		DType:      store.DType(),
	}
	if err := db.Put(s.gridKey(), meta.MarshalMsg(nil)); err != nil {
		return err
	}

	existing, err := db.Keys(s.blockPrefix())
	if err != nil {
		return err
	}
	stale := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		stale[k] = struct{}{}
	}

	var saved []dvid.BlockIndex
	var numBytes uint64
	for _, idx := range store.ProcessedIndices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ok := store.Get(idx)
		if !ok {
			continue
		}
		value, err := encodeBlock(idx, data, s.Compression)
		if err != nil {
			return fmt.Errorf("unable to encode block %s: %w", idx, err)
		}
		key := s.BlockKey(idx)
		if err := db.Put(key, value); err != nil {
			return err
		}
		delete(stale, key)
		saved = append(saved, idx)
		numBytes += uint64(len(value))
	}
	for k := range stale {
		if err := db.Delete(k); err != nil {
			return err
		}
	}
	if err := db.Put(s.processedKey(), encodeIndices(saved)); err != nil {
		return err
	}
	tlog.Infof("Saved %d blocks (%s) of cache %q to %s group %q", len(saved), humanize.Bytes(numBytes),
		store.Name(), db, s.Group)
	return nil
}

// Load replaces the contents of the store with the blocks saved in the group.  Loaded
// blocks are clean, fixed mode is turned off, and the processed index set is restored.
// The store must already be configured with the grid the group was saved from.
func (s Serializer) Load(ctx context.Context, db storage.KeyValueDB, store *cache.Store) error {
	grid := store.Grid()
	if grid == nil {
		return dvid.ConfigErrorf("cache %q must be configured before loading", store.Name())
	}
	tlog := dvid.NewTimeLog()
	metaBytes, err := db.Get(s.gridKey())
	if err != nil {
		return err
	}
	if metaBytes == nil {
		return fmt.Errorf("no saved cache in group %q of %s", s.Group, db)
	}
	var meta gridMeta
	if err := meta.UnmarshalMsg(metaBytes); err != nil {
		return fmt.Errorf("bad grid of group %q: %w", s.Group, err)
	}
	if meta.Version != formatVersion {
		return fmt.Errorf("group %q has format version %d, expected %d", s.Group, meta.Version, formatVersion)
	}
	if !sameInts(meta.Shape, grid.Shape) || !sameInts(meta.BlockShape, grid.BlockShape) ||
		meta.Axes != grid.Axes || meta.DType != store.DType() {
		return dvid.ConfigErrorf("group %q holds %s %v array in blocks %v, cache %q is %s %v in blocks %v",
			s.Group, meta.DType, meta.Shape, meta.BlockShape, store.Name(), store.DType(), grid.Shape, grid.BlockShape)
	}

	keys, err := db.Keys(s.blockPrefix())
	if err != nil {
		return err
	}
	store.Clear()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := db.Get(key)
		if err != nil {
			return err
		}
		idx, data, err := decodeBlock(value)
		if err != nil {
			return fmt.Errorf("bad block dataset %q: %w", key, err)
		}
		if want := strings.TrimPrefix(key, s.blockPrefix()); idx.String() != want {
			return fmt.Errorf("block dataset %q holds block %s", key, idx)
		}
		if err := store.Put(idx, data); err != nil {
			return err
		}
	}

	var processed []dvid.BlockIndex
	pb, err := db.Get(s.processedKey())
	if err != nil {
		return err
	}
	if pb != nil {
		if processed, err = decodeIndices(pb); err != nil {
			return fmt.Errorf("bad processed set of group %q: %w", s.Group, err)
		}
	}
	store.ResetProcessed(processed)
	tlog.Infof("Loaded %d blocks of cache %q from %s group %q", len(keys), store.Name(), db, s.Group)
	return nil
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
