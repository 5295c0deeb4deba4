package request

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_requests_started_total",
		Help: "Requests that acquired a worker",
	})

	requestsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxflow_requests_failed_total",
		Help: "Requests that ended with an error",
	})

	requestsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxflow_requests_running",
		Help: "Requests currently holding a worker",
	})
)
