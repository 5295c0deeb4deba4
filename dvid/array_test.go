package dvid

import (
	"bytes"
	"testing"
)

func TestCopyRegion(t *testing.T) {
	src := NewArray(T_uint32, []int{4, 5})
	vals := src.Uint32s()
	for i := range vals {
		vals[i] = uint32(i)
	}
	sub, err := src.Region([]int{1, 2}, []int{3, 5})
	if err != nil {
		t.Fatalf("Region failed: %v\n", err)
	}
	expected := []uint32{7, 8, 9, 12, 13, 14}
	got := sub.Uint32s()
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Bad region.  Expected %v got %v\n", expected, got)
		}
	}

	dst := NewArray(T_uint32, []int{4, 5})
	if err := dst.Paste(sub, []int{2, 0}); err != nil {
		t.Fatalf("Paste failed: %v\n", err)
	}
	if dst.Uint32s()[10] != 7 || dst.Uint32s()[17] != 14 {
		t.Errorf("Bad paste: %v\n", dst.Uint32s())
	}
	if err := dst.Paste(sub, []int{3, 0}); err == nil {
		t.Errorf("Expected out of bounds paste to fail\n")
	}
}

func TestTransposeAndAstype(t *testing.T) {
	a := ArrayFromUint8s([]int{2, 3}, []uint8{1, 2, 3, 4, 5, 6})
	tr, err := a.Transpose([]int{1, 0})
	if err != nil {
		t.Fatalf("Transpose failed: %v\n", err)
	}
	if !bytes.Equal(tr.Uint8s(), []uint8{1, 4, 2, 5, 3, 6}) {
		t.Errorf("Bad transpose: %v\n", tr.Uint8s())
	}
	f := a.Astype(T_float32)
	if f.Float32s()[5] != 6 {
		t.Errorf("Bad astype: %v\n", f.Float32s())
	}
	if !f.Astype(T_uint8).Equal(a) {
		t.Errorf("Round trip through float32 changed data\n")
	}
}

func TestBlockGrid(t *testing.T) {
	grid, err := NewBlockGrid([]int{4, 4}, []int{10, 6}, "xy")
	if err != nil {
		t.Fatalf("NewBlockGrid failed: %v\n", err)
	}
	if n := grid.NumBlocks(); n[0] != 3 || n[1] != 2 {
		t.Errorf("Bad number of blocks: %v\n", n)
	}
	edge, err := grid.BlockRoi(BlockIndex{2, 1})
	if err != nil {
		t.Fatalf("BlockRoi failed: %v\n", err)
	}
	if s := edge.Size(); s[0] != 2 || s[1] != 2 {
		t.Errorf("Bad edge block size: %v\n", s)
	}
	roi, _ := NewRoi([]int{3, 0}, []int{5, 3}, "xy", []int{10, 6})
	blocks := grid.BlocksInRoi(roi)
	if len(blocks) != 2 || blocks[0].String() != "0_0" || blocks[1].String() != "1_0" {
		t.Errorf("Bad blocks in roi: %v\n", blocks)
	}
}

func TestBlockIndexKeys(t *testing.T) {
	idx := BlockIndex{3, 0, 12}
	parsed, err := ParseBlockIndex(idx.String())
	if err != nil || parsed.String() != "3_0_12" {
		t.Errorf("Bad parse of %q: %v, %v\n", idx.String(), parsed, err)
	}
	a, b := BlockIndex{0, 1, 255}.Bytes(), BlockIndex{0, 2, 0}.Bytes()
	if bytes.Compare(a, b) >= 0 {
		t.Errorf("Block index bytes not ascending: %x >= %x\n", a, b)
	}
}

func TestSerializeData(t *testing.T) {
	data := bytes.Repeat([]byte("voxel data "), 500)
	for _, compression := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			s, err := SerializeData(data, compression, checksum)
			if err != nil {
				t.Fatalf("SerializeData with %s, %s: %v\n", compression, checksum, err)
			}
			out, compress, err := DeserializeData(s, true)
			if err != nil {
				t.Fatalf("DeserializeData with %s, %s: %v\n", compression, checksum, err)
			}
			if compress != compression {
				t.Errorf("Bad compression.  Expected %s got %s\n", compression, compress)
			}
			if !bytes.Equal(out, data) {
				t.Errorf("Data changed after %s, %s\n", compression, checksum)
			}
		}
	}
	s, _ := SerializeData(data, Snappy, CRC32)
	s[len(s)-1] ^= 0xFF
	if _, _, err := DeserializeData(s, true); err == nil {
		t.Errorf("Expected checksum failure on corrupted data\n")
	}
}
