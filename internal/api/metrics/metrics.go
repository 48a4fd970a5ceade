// Package metrics defines and registers all custom Prometheus metrics for
// the admin portal session core. It is the single source of truth for metric
// names, labels, and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Gate metrics ──────────────────────────────────────────────────────────────

// GateDecisionsTotal counts terminal decisions of the access gate.
// Label:
//   - outcome: "allowed", "login_redirect", "unauthenticated", "force_logout", "unauthorized", "server_error"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of access gate decisions, by outcome.",
	},
	[]string{"outcome"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsCreatedTotal counts session creation attempts.
// Label:
//   - result: "created", "conflict", "reclaimed"
var SessionsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of session creation attempts, by result.",
	},
	[]string{"result"},
)

// ForceLogoutsTotal counts administrator-triggered session invalidations.
var ForceLogoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "force_logouts_total",
		Help:      "Total number of administrator-issued forced logouts.",
	},
)

// HeartbeatsTotal counts liveness pings received from clients.
// Label:
//   - result: "ok" or "error"
var HeartbeatsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heartbeats_total",
		Help:      "Total number of client heartbeats, by result.",
	},
	[]string{"result"},
)

// ── Watch metrics ─────────────────────────────────────────────────────────────

// ActiveWatchStreams tracks the number of open profile watch streams.
var ActiveWatchStreams = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_watch_streams",
		Help:      "Number of currently open profile watch streams.",
	},
)
