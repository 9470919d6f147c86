package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteFallbacks counts repository calls answered from the local cache
	// because the remote store failed.
	RemoteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollbook",
		Name:      "remote_fallbacks_total",
		Help:      "Course repository calls served by the local cache after a remote store error.",
	}, []string{"operation"})

	CacheFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollbook",
		Name:      "cache_failures_total",
		Help:      "Local cache reads or writes that failed.",
	}, []string{"operation"})

	SeededOwners = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollbook",
		Name:      "seeded_owners_total",
		Help:      "Owners that received the example courses.",
	})
)
