package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sos_dispatch_seconds",
		Help:    "Time spent dispatching an SOS alert.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	alertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sos_alerts_total",
		Help: "Total number of persisted SOS alerts.",
	})

	notifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sos_notified_sessions_total",
		Help: "Total number of live sessions an alert push was attempted for.",
	})

	pushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sos_push_failures_total",
		Help: "Total number of failed alert push attempts.",
	})
)
