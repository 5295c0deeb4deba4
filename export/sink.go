package export

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/tinylib/msgp/msgp"
	"gocloud.dev/blob"
)

// Sink writes exported arrays as datasets "<group>/<name>" into a blob bucket.  Each
// dataset is a msgp map with the axis order, shape and data type followed by the
// serialized array bytes.
type Sink struct {
	bucket      *blob.Bucket
	group       string
	compression dvid.Compression
}

// NewSink returns a sink writing into the given bucket and group.
func NewSink(bucket *blob.Bucket, group string, compress dvid.Compression) *Sink {
	return &Sink{bucket: bucket, group: group, compression: compress}
}

// Key returns the dataset key of a named output.
func (s *Sink) Key(name string) string {
	if s.group == "" {
		return name
	}
	return s.group + "/" + name
}

// Write stores one dataset.
func (s *Sink) Write(ctx context.Context, name string, axes dvid.AxisOrder, data *dvid.Array) error {
	payload, err := dvid.SerializeData(data.Bytes(), s.compression, dvid.CRC32)
	if err != nil {
		return err
	}
	shape := data.Shape()
	b := make([]byte, 0, len(payload)+64)
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "axes")
	b = msgp.AppendString(b, string(axes))
	b = msgp.AppendString(b, "shape")
	b = msgp.AppendArrayHeader(b, uint32(len(shape)))
	for _, v := range shape {
		b = msgp.AppendInt(b, v)
	}
	b = msgp.AppendString(b, "dtype")
	b = msgp.AppendString(b, data.DType().String())
	b = msgp.AppendString(b, "data")
	b = msgp.AppendBytes(b, payload)

	opts := &blob.WriterOptions{ContentType: "application/x-msgpack"}
	if err := s.bucket.WriteAll(ctx, s.Key(name), b, opts); err != nil {
		return fmt.Errorf("unable to write dataset %q: %w", s.Key(name), err)
	}
	return nil
}

// Read returns a dataset written by Write.
func (s *Sink) Read(ctx context.Context, name string) (dvid.AxisOrder, *dvid.Array, error) {
	b, err := s.bucket.ReadAll(ctx, s.Key(name))
	if err != nil {
		return "", nil, err
	}
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return "", nil, err
	}
	var (
		axes    string
		shape   []int
		dtype   dvid.DataType
		payload []byte
	)
	for i := uint32(0); i < n; i++ {
		var field string
		if field, b, err = msgp.ReadStringBytes(b); err != nil {
			return "", nil, err
		}
		switch field {
		case "axes":
			axes, b, err = msgp.ReadStringBytes(b)
		case "shape":
			var dims uint32
			if dims, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
				break
			}
			shape = make([]int, dims)
			for d := range shape {
				if shape[d], b, err = msgp.ReadIntBytes(b); err != nil {
					break
				}
			}
		case "dtype":
			var name string
			if name, b, err = msgp.ReadStringBytes(b); err == nil {
				dtype, err = dvid.ParseDataType(name)
			}
		case "data":
			payload, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return "", nil, fmt.Errorf("bad field %q in dataset %q: %v", field, s.Key(name), err)
		}
	}
	raw, _, err := dvid.DeserializeData(payload, true)
	if err != nil {
		return "", nil, err
	}
	data, err := dvid.ArrayFromBytes(dtype, shape, raw)
	if err != nil {
		return "", nil, err
	}
	return dvid.AxisOrder(axes), data, nil
}
