package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_export_bytes_total",
		Help: "Uncompressed bytes of exported outputs.",
	})
	exportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_export_failures_total",
		Help: "Outputs that failed to export.",
	})
)
