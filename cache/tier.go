package cache

import (
	"fmt"

	"github.com/DmitriyVTitov/size"
	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxflow/dvid"
)

func (s *Store) tierKey(b *block) []byte {
	return []byte(s.name + "/" + b.key)
}

// spillLocked writes a clean block into the compressed tier before it is evicted.
func (s *Store) spillLocked(b *block) {
	if s.tier == nil || b.data == nil {
		return
	}
	val, err := dvid.SerializeData(b.data.Bytes(), s.cfg.Compression, dvid.CRC32)
	if err != nil {
		dvid.Errorf("Unable to serialize block %s of cache %q: %v\n", b.key, s.name, err)
		return
	}
	if err := s.tier.Set(s.tierKey(b), val, 0); err != nil {
		dvid.Debugf("Block %s of cache %q not kept in compressed tier: %v\n", b.key, s.name, err)
	}
}

// restoreLocked brings a clean block back from the compressed tier.
func (s *Store) restoreLocked(b *block) *dvid.Array {
	if s.tier == nil {
		return nil
	}
	val, err := s.tier.Get(s.tierKey(b))
	if err != nil {
		if err != freecache.ErrNotFound {
			dvid.Errorf("Compressed tier of cache %q failed for block %s: %v\n", s.name, b.key, err)
		}
		return nil
	}
	raw, _, err := dvid.DeserializeData(val, true)
	if err != nil {
		dvid.Errorf("Unable to deserialize block %s of cache %q: %v\n", b.key, s.name, err)
		return nil
	}
	data, err := dvid.ArrayFromBytes(s.dtype, b.roi.Size(), raw)
	if err != nil {
		dvid.Errorf("Bad compressed block %s of cache %q: %v\n", b.key, s.name, err)
		return nil
	}
	s.installLocked(b, data)
	return data
}

// Stats describe the memory held by a store.
type Stats struct {
	Blocks        int
	ResidentBytes int64
	BudgetBytes   int64
	TierEntries   int64
	IndexBytes    int
	Hits          int64
	Computes      int64
	Evictions     int64
}

func (st Stats) String() string {
	return fmt.Sprintf("%d blocks, %s resident of %s budget, %d compressed, %s index, %d hits, %d computes, %d evictions",
		st.Blocks, humanize.Bytes(uint64(st.ResidentBytes)), humanize.Bytes(uint64(st.BudgetBytes)),
		st.TierEntries, humanize.Bytes(uint64(st.IndexBytes)), st.Hits, st.Computes, st.Evictions)
}

// Stats returns current memory and activity counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Blocks:        len(s.blocks),
		ResidentBytes: s.resident,
		BudgetBytes:   s.cfg.BudgetBytes,
		IndexBytes:    size.Of(s.processed),
		Hits:          s.hits.Load(),
		Computes:      s.computes.Load(),
		Evictions:     s.evictions.Load(),
	}
	if s.tier != nil {
		st.TierEntries = s.tier.EntryCount()
	}
	return st
}
