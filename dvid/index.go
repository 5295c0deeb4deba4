/*
	This file defines block indexing on a regular grid.
*/

package dvid

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// BlockIndex is the coordinate of a block within a block grid.
type BlockIndex []int

// String returns the stringified index used as a dataset or cache key, e.g., "0_3_1".
func (idx BlockIndex) String() string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "_")
}

// Bytes returns a big-endian encoding that sorts in the same order as the index.
func (idx BlockIndex) Bytes() []byte {
	buf := make([]byte, 4*len(idx))
	for i, v := range idx {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return buf
}

// ParseBlockIndex parses the output of BlockIndex.String.
func ParseBlockIndex(s string) (BlockIndex, error) {
	if s == "" {
		return BlockIndex{}, nil
	}
	parts := strings.Split(s, "_")
	idx := make(BlockIndex, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("bad block index %q", s)
		}
		idx[i] = v
	}
	return idx, nil
}

// BlockIndexFromBytes decodes the output of BlockIndex.Bytes.
func BlockIndexFromBytes(b []byte) (BlockIndex, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("block index bytes have bad length %d", len(b))
	}
	idx := make(BlockIndex, len(b)/4)
	for i := range idx {
		idx[i] = int(binary.BigEndian.Uint32(b[4*i:]))
	}
	return idx, nil
}
