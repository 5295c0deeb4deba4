package cache

import (
	"context"
	"testing"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBlockMetrics(t *testing.T) {
	src := newSource()
	s := NewStore("metrics-test", src.compute, Config{})
	if err := s.Configure([]int{4, 4}, []int{8, 8}, "xy", dvid.T_uint32); err != nil {
		t.Fatalf("Configure failed: %v\n", err)
	}
	ctx := context.Background()
	roi := roi2d(t, 0, 0, 8, 4)
	for i := 0; i < 2; i++ {
		if _, err := s.Request(ctx, roi); err != nil {
			t.Fatalf("Request failed: %v\n", err)
		}
	}
	if n := testutil.ToFloat64(blockComputes.WithLabelValues("metrics-test", "ok")); n != 2 {
		t.Errorf("Expected 2 computes recorded, got %v\n", n)
	}
	if n := testutil.ToFloat64(blockHits.WithLabelValues("metrics-test")); n != 2 {
		t.Errorf("Expected 2 hits recorded, got %v\n", n)
	}
	if n := testutil.CollectAndCount(blockComputeSeconds, "voxflow_cache_block_compute_seconds"); n == 0 {
		t.Errorf("Expected block compute durations to be observed\n")
	}
	if n := testutil.ToFloat64(residentBytes.WithLabelValues("metrics-test")); n != 2*4*4*4 {
		t.Errorf("Expected two resident uint32 blocks, got %v bytes\n", n)
	}
}
