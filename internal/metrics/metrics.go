// Package metrics centralizes the Prometheus collectors shared across
// components, following the teacher's promauto pattern in
// internal/services/message_service.go and internal/repository
// (package-level promauto.New* vars registered once at import time).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendOutcomes counts C3 send attempts by priority band and outcome.
	SendOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagw_send_outcomes_total",
			Help: "Outbound send attempts by priority band and outcome.",
		},
		[]string{"priority", "outcome"},
	)

	// SendLatency measures time from enqueue to terminal resolution.
	SendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wagw_send_duration_seconds",
			Help:    "Duration from enqueue to terminal send resolution.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"priority"},
	)

	// ReceiveClassifications counts inbound messages by classification kind.
	ReceiveClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagw_receive_classifications_total",
			Help: "Inbound messages by classification kind.",
		},
		[]string{"kind"},
	)

	// AdmitDecisions counts C2 try_admit outcomes by decision/reason.
	AdmitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagw_admit_decisions_total",
			Help: "Human-behavior admission decisions by outcome.",
		},
		[]string{"decision"},
	)

	// WorkflowExecutions counts workflow dispatches by handler and status.
	WorkflowExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagw_workflow_executions_total",
			Help: "Workflow handler invocations by handler name and status.",
		},
		[]string{"handler", "status"},
	)

	// BroadcastProgress is a gauge of the most recent progress fraction
	// [0,1] for the active broadcast, keyed by broadcast id.
	BroadcastProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wagw_broadcast_progress_ratio",
			Help: "Fraction of contacts processed for a broadcast execution.",
		},
		[]string{"broadcast_id"},
	)

	// SessionState is a gauge of 1 for the current session state, 0 else.
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wagw_session_state",
			Help: "1 for the current session state, 0 otherwise.",
		},
		[]string{"state"},
	)
)
