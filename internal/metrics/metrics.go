// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts classification decisions by action
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastgate_decisions_total",
			Help: "Total number of classification decisions",
		},
		[]string{"action"},
	)

	// ParseFailuresTotal counts header parse failures by layer
	ParseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastgate_parse_failures_total",
			Help: "Total number of header parse failures",
		},
		[]string{"layer"},
	)

	// RedirectDegradedTotal counts redirects degraded to pass because
	// no endpoint was registered for the target queue
	RedirectDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastgate_redirect_degraded_total",
			Help: "Redirect decisions degraded to pass (no endpoint registered)",
		},
	)

	// EventsEmittedTotal counts events accepted by the log channel
	EventsEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastgate_events_emitted_total",
			Help: "Total number of classification events emitted",
		},
	)

	// EventsDroppedTotal counts events discarded because the log channel was full
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastgate_events_dropped_total",
			Help: "Total number of classification events dropped under pressure",
		},
	)

	// WhitelistEntries tracks current whitelist table sizes
	WhitelistEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fastgate_whitelist_entries",
			Help: "Current number of whitelist entries per table",
		},
		[]string{"table"},
	)

	// RuleUpdatesTotal counts control-plane rule operations
	RuleUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastgate_rule_updates_total",
			Help: "Total number of control-plane rule operations",
		},
		[]string{"table", "op"},
	)

	// FramesTotal counts frames read from an ingress source
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastgate_frames_total",
			Help: "Total number of frames read from ingress sources",
		},
		[]string{"source"},
	)
)
