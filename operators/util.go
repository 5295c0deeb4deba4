package operators

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/janelia-flyem/voxflow/cache"
	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

var (
	cacheCfgMu sync.RWMutex
	cacheCfg   cache.Config
)

// SetCacheConfig sets the memory limits used by caches created afterwards.
func SetCacheConfig(cfg cache.Config) {
	cacheCfgMu.Lock()
	cacheCfg = cfg
	cacheCfgMu.Unlock()
}

// CacheConfig returns the memory limits for new caches.
func CacheConfig() cache.Config {
	cacheCfgMu.RLock()
	defer cacheCfgMu.RUnlock()
	return cacheCfg
}

// setValue sets a parameter of an inner operator unless it already holds v.
func setValue(in *graph.InputSlot, v interface{}) error {
	if !in.Connected() && in.Ready() && reflect.DeepEqual(in.Value(), v) {
		return nil
	}
	return in.SetValue(v)
}

// axisOrderValue reads an axis order parameter.
func axisOrderValue(in *graph.InputSlot) (dvid.AxisOrder, error) {
	var axes dvid.AxisOrder
	switch v := in.Value().(type) {
	case string:
		axes = dvid.AxisOrder(v)
	case dvid.AxisOrder:
		axes = v
	default:
		return "", dvid.ConfigErrorf("input %s holds %T, not an axis order", in.Name(), v)
	}
	if err := axes.Validate(); err != nil {
		return "", err
	}
	return axes, nil
}

// sigmasValue reads per-axis sigmas keyed by axis name.
func sigmasValue(in *graph.InputSlot) (map[byte]float64, error) {
	sigmas := make(map[byte]float64)
	switch v := in.Value().(type) {
	case map[string]float64:
		for k, s := range v {
			if len(k) != 1 {
				return nil, dvid.ConfigErrorf("bad axis %q in sigmas", k)
			}
			sigmas[k[0]] = s
		}
	case map[string]interface{}:
		for k, s := range v {
			f, ok := toFloat(s)
			if len(k) != 1 || !ok {
				return nil, dvid.ConfigErrorf("bad sigma %q: %v", k, s)
			}
			sigmas[k[0]] = f
		}
	default:
		return nil, dvid.ConfigErrorf("input %s holds %T, not a map of sigmas", in.Name(), v)
	}
	return sigmas, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}

// haloRadius returns ceil(window*sigma), the neighborhood used for a gaussian.
func haloRadius(sigma, window float64) int {
	if sigma <= 0 {
		return 0
	}
	return int(math.Ceil(window * sigma))
}

// sameShape returns an error unless both inputs describe arrays of equal shape.
func sameShape(a, b *graph.InputSlot) error {
	ma, mb := a.Meta(), b.Meta()
	if !reflect.DeepEqual(ma.Shape, mb.Shape) || ma.Axes != mb.Axes {
		return dvid.ConfigErrorf("%s %s does not match %s %s", a.Name(), ma, b.Name(), mb)
	}
	return nil
}

// sliceRois splits roi into regions holding a single time point and channel and
// the full extent of the other axes.
func sliceRois(roi dvid.Roi) []dvid.Roi {
	axes, shape := roi.Axes(), roi.Shape()
	ti, hasT := axes.Index('t')
	ci, hasC := axes.Index('c')
	t0, t1, c0, c1 := 0, 1, 0, 1
	if hasT {
		t0, t1 = roi.StartAt(ti), roi.StopAt(ti)
	}
	if hasC {
		c0, c1 = roi.StartAt(ci), roi.StopAt(ci)
	}
	var rois []dvid.Roi
	for t := t0; t < t1; t++ {
		for c := c0; c < c1; c++ {
			start := make([]int, len(shape))
			stop := append([]int(nil), shape...)
			if hasT {
				start[ti], stop[ti] = t, t+1
			}
			if hasC {
				start[ci], stop[ci] = c, c+1
			}
			slice, err := dvid.NewRoi(start, stop, axes, shape)
			if err != nil {
				panic(fmt.Sprintf("bad slice of %s: %v", roi, err))
			}
			rois = append(rois, slice)
		}
	}
	return rois
}

// wholeSlices grows roi to the full extent of every axis except time and channel.
func wholeSlices(roi dvid.Roi) dvid.Roi {
	start, stop, shape := roi.Start(), roi.Stop(), roi.Shape()
	for i, key := range roi.Axes().Keys() {
		if key != 't' && key != 'c' {
			start[i], stop[i] = 0, shape[i]
		}
	}
	return dvid.ClippedRoi(start, stop, roi.Axes(), shape)
}

// copyPart copies the part of a computed slice that lies within roi into result.
func copyPart(result *dvid.Array, roi dvid.Roi, computed *dvid.Array, slice dvid.Roi) error {
	part, overlaps := roi.Intersect(slice)
	if !overlaps {
		return nil
	}
	srcStart := make([]int, roi.NumDims())
	dstStart := make([]int, roi.NumDims())
	for i := range srcStart {
		srcStart[i] = part.StartAt(i) - slice.StartAt(i)
		dstStart[i] = part.StartAt(i) - roi.StartAt(i)
	}
	return dvid.CopyRegion(result, dstStart, computed, srcStart, part.Size())
}

// setResult copies a computed array of the result's size into result.
func setResult(result, computed *dvid.Array) error {
	if computed.DType() != result.DType() {
		computed = computed.Astype(result.DType())
	}
	if computed.NumBytes() != result.NumBytes() {
		return fmt.Errorf("computed %s does not fit result %s", computed, result)
	}
	copy(result.Bytes(), computed.Bytes())
	return nil
}
