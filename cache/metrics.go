package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blockHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxflow_cache_block_hits_total",
		Help: "Block requests served without computation",
	}, []string{"cache"})

	blockComputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxflow_cache_block_computes_total",
		Help: "Block computations by result",
	}, []string{"cache", "result"})

	blockEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxflow_cache_block_evictions_total",
		Help: "Blocks evicted to stay within the memory budget",
	}, []string{"cache"})

	blockComputeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxflow_cache_block_compute_seconds",
		Help:    "Time spent computing one block",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"cache"})

	residentBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxflow_cache_resident_bytes",
		Help: "Bytes of uncompressed block data held in memory",
	}, []string{"cache"})
)
