package persist

import (
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/tinylib/msgp/msgp"
)

// formatVersion is bumped whenever the stored layout changes.
const formatVersion = 1

// gridMeta describes the cached array a group was saved from.
type gridMeta struct {
	Version    int
	Axes       dvid.AxisOrder
	Shape      []int
	BlockShape []int
	DType      dvid.DataType
}

func appendInts(b []byte, ints []int) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(ints)))
	for _, v := range ints {
		b = msgp.AppendInt(b, v)
	}
	return b
}

func readInts(b []byte) ([]int, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	ints := make([]int, n)
	for i := range ints {
		if ints[i], b, err = msgp.ReadIntBytes(b); err != nil {
			return nil, b, err
		}
	}
	return ints, b, nil
}

func (m gridMeta) MarshalMsg(b []byte) []byte {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendInt(b, m.Version)
	b = msgp.AppendString(b, "axes")
	b = msgp.AppendString(b, string(m.Axes))
	b = msgp.AppendString(b, "shape")
	b = appendInts(b, m.Shape)
	b = msgp.AppendString(b, "block_shape")
	b = appendInts(b, m.BlockShape)
	b = msgp.AppendString(b, "dtype")
	b = msgp.AppendUint8(b, uint8(m.DType))
	return b
}

func (m *gridMeta) UnmarshalMsg(b []byte) error {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var field string
		if field, b, err = msgp.ReadStringBytes(b); err != nil {
			return err
		}
		switch field {
		case "version":
			m.Version, b, err = msgp.ReadIntBytes(b)
		case "axes":
			var axes string
			axes, b, err = msgp.ReadStringBytes(b)
			m.Axes = dvid.AxisOrder(axes)
		case "shape":
			m.Shape, b, err = readInts(b)
		case "block_shape":
			m.BlockShape, b, err = readInts(b)
		case "dtype":
			var dtype uint8
			dtype, b, err = msgp.ReadUint8Bytes(b)
			m.DType = dvid.DataType(dtype)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return fmt.Errorf("bad grid field %q: %v", field, err)
		}
	}
	return nil
}

// encodeBlock writes a block dataset: a msgp map holding the block index, its
// shape and data type, and the serialized payload.
func encodeBlock(idx dvid.BlockIndex, data *dvid.Array, compress dvid.Compression) ([]byte, error) {
	payload, err := dvid.SerializeData(data.Bytes(), compress, dvid.CRC32)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, len(payload)+64)
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "index")
	b = appendInts(b, idx)
	b = msgp.AppendString(b, "shape")
	b = appendInts(b, data.Shape())
	b = msgp.AppendString(b, "dtype")
	b = msgp.AppendUint8(b, uint8(data.DType()))
	b = msgp.AppendString(b, "payload")
	b = msgp.AppendBytes(b, payload)
	return b, nil
}

func decodeBlock(b []byte) (dvid.BlockIndex, *dvid.Array, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, nil, err
	}
	var (
		idx     []int
		shape   []int
		dtype   uint8
		payload []byte
	)
	for i := uint32(0); i < n; i++ {
		var field string
		if field, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, nil, err
		}
		switch field {
		case "index":
			idx, b, err = readInts(b)
		case "shape":
			shape, b, err = readInts(b)
		case "dtype":
			dtype, b, err = msgp.ReadUint8Bytes(b)
		case "payload":
			payload, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bad block field %q: %v", field, err)
		}
	}
	raw, _, err := dvid.DeserializeData(payload, true)
	if err != nil {
		return nil, nil, err
	}
	data, err := dvid.ArrayFromBytes(dvid.DataType(dtype), shape, raw)
	if err != nil {
		return nil, nil, err
	}
	return dvid.BlockIndex(idx), data, nil
}

// encodeIndices writes the processed index set as an array of index arrays.
func encodeIndices(indices []dvid.BlockIndex) []byte {
	b := msgp.AppendArrayHeader(nil, uint32(len(indices)))
	for _, idx := range indices {
		b = appendInts(b, idx)
	}
	return b
}

func decodeIndices(b []byte) ([]dvid.BlockIndex, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	indices := make([]dvid.BlockIndex, n)
	for i := range indices {
		var idx []int
		if idx, b, err = readInts(b); err != nil {
			return nil, err
		}
		indices[i] = idx
	}
	return indices, nil
}
