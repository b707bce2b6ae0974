package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notifyFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "rcal_notify_failures_total",
		Help: "Total number of keyspace notifications that failed to publish.",
	},
)
