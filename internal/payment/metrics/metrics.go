// Package metrics exposes Prometheus instrumentation for the payment ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeesCollected counts verification-fee units taken into the module pool.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestry_fees_collected_total",
		Help: "Total verification fee units collected into the module pool.",
	})

	// LeviesCollected counts levy units credited to authority balances.
	LeviesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestry_levies_collected_total",
		Help: "Total levy units credited to authority balances.",
	})

	// Withdrawals counts withdrawal operations by kind and outcome.
	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestry_withdrawals_total",
		Help: "Withdrawal operations by kind and outcome.",
	}, []string{"kind", "outcome"})
)
