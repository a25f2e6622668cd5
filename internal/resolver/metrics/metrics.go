// Package metrics exposes Prometheus instrumentation for resolver hooks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attestations counts hook outcomes by operation and result.
	Attestations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestry_attestations_total",
		Help: "Attestation hook calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// Revocations counts successful revocations.
	Revocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestry_revocations_total",
		Help: "Total attestations revoked.",
	})

	// LevyUnits counts levy units collected during resolve.
	LevyUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestry_resolver_levy_units_total",
		Help: "Total levy units collected by the resolver.",
	})
)
