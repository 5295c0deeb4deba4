package graph

import "fmt"

// Float returns a numeric parameter value as float64.
func (in *InputSlot) Float() (float64, error) {
	switch v := in.Value().(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("input %s.%s holds %T, not a number", in.op.name, in.name, v)
	}
}

// Int returns an integral parameter value.
func (in *InputSlot) Int() (int, error) {
	switch v := in.Value().(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("input %s.%s holds %T (%v), not an integer", in.op.name, in.name, in.Value(), in.Value())
}

// Bool returns a boolean parameter value.
func (in *InputSlot) Bool() (bool, error) {
	if v, ok := in.Value().(bool); ok {
		return v, nil
	}
	return false, fmt.Errorf("input %s.%s holds %T, not a bool", in.op.name, in.name, in.Value())
}

// Ints returns an integer list parameter value.
func (in *InputSlot) Ints() ([]int, error) {
	switch v := in.Value().(type) {
	case []int:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("input %s.%s holds %T, not a list of integers", in.op.name, in.name, v)
	}
}
