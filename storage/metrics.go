package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeValueBytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_store_value_bytes_read_total",
		Help: "Bytes of values read from key-value stores.",
	})
	storeValueBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_store_value_bytes_written_total",
		Help: "Bytes of values written to key-value stores.",
	})
	dirtyEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_dirty_events_published_total",
		Help: "Dirty-region events handed to the Kafka producer.",
	})
	dirtyEventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_dirty_events_failed_total",
		Help: "Dirty-region events the Kafka producer failed to deliver.",
	})
)

// StoreValueBytesRead and StoreValueBytesWritten let engines outside this package
// report their traffic.
func StoreValueBytesRead(n int) { storeValueBytesRead.Add(float64(n)) }
func StoreValueBytesWritten(n int) { storeValueBytesWritten.Add(float64(n)) }
