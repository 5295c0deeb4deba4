package dvid

import (
	"encoding/json"
	"fmt"
)

// DataType is a unique ID for each type of element in an array.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
	T_bool
)

var typeBytes = map[DataType]int{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
	T_bool:    1,
}

var typeNames = map[DataType]string{
	T_uint8:   "uint8",
	T_int8:    "int8",
	T_uint16:  "uint16",
	T_int16:   "int16",
	T_uint32:  "uint32",
	T_int32:   "int32",
	T_uint64:  "uint64",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
	T_bool:    "bool",
}

// DataTypeBytes returns the number of bytes per element of the data type.
func DataTypeBytes(t DataType) int {
	return typeBytes[t]
}

func (t DataType) String() string {
	if s, found := typeNames[t]; found {
		return s
	}
	return fmt.Sprintf("unknown data type %d", uint8(t))
}

// IsFloat returns true for floating-point element types.
func (t DataType) IsFloat() bool {
	return t == T_float32 || t == T_float64
}

// ParseDataType returns the data type with the given name, e.g., "uint32".
func ParseDataType(s string) (DataType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

func (t DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
