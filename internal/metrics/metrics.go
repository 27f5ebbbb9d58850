// Package metrics exposes Prometheus counters for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PushTotal counts push attempts by outcome: synced, failed, skipped.
	PushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splithaus",
		Subsystem: "sync",
		Name:      "push_total",
		Help:      "Push attempts to the remote ledger by outcome.",
	}, []string{"outcome"})

	// PullPassTotal counts whole pull passes by outcome: ok, error, busy.
	PullPassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splithaus",
		Subsystem: "sync",
		Name:      "pull_pass_total",
		Help:      "Pull reconciliation passes by outcome.",
	}, []string{"outcome"})

	// PullItemTotal counts per-item pull decisions: created, updated,
	// deleted, conflict, skipped.
	PullItemTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splithaus",
		Subsystem: "sync",
		Name:      "pull_item_total",
		Help:      "Per-expense decisions made during pull reconciliation.",
	}, []string{"decision"})

	// TokenRefreshTotal counts access-token refresh attempts by outcome:
	// ok, failed.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splithaus",
		Subsystem: "ledger",
		Name:      "token_refresh_total",
		Help:      "Splitwise access-token refresh attempts by outcome.",
	}, []string{"outcome"})
)
