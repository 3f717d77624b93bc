// Package metrics exposes the proxy's Prometheus instrumentation.
//
// The admin/CLI HTTP surface that would normally serve Handler() is out of
// scope for this module (spec §1); Handler is still provided so an embedding
// process can mount it on whatever mux it owns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackendRole is 1 for each (backend, role) pair currently set, 0 otherwise.
	BackendRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrouted_backend_role",
			Help: "Whether a backend currently carries a given role flag (1) or not (0)",
		},
		[]string{"monitor", "backend", "role"},
	)

	BackendConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrouted_backend_connections",
			Help: "Current number of open client sessions bound to a backend",
		},
		[]string{"backend"},
	)

	BackendConsecutiveErrors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbrouted_backend_consecutive_errors",
			Help: "Current consecutive probe failure count for a backend",
		},
		[]string{"monitor", "backend"},
	)

	MonitorTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrouted_monitor_ticks_total",
			Help: "Total number of completed monitor ticks",
		},
		[]string{"monitor"},
	)

	MonitorTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrouted_monitor_transitions_total",
			Help: "Total number of role transitions dispatched, by category",
		},
		[]string{"monitor", "category"},
	)

	JournalWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrouted_journal_writes_total",
			Help: "Total number of journal writes, by outcome",
		},
		[]string{"monitor", "outcome"},
	)

	HookInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrouted_hook_invocations_total",
			Help: "Total number of event hook invocations, by outcome",
		},
		[]string{"monitor", "outcome"},
	)

	RouterSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrouted_router_selections_total",
			Help: "Total number of backend selections, by outcome",
		},
		[]string{"outcome"},
	)

	ReplicationCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbrouted_replication_commits_total",
			Help: "Total number of committed transactions observed by the replication processor",
		},
	)

	ReplicationReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbrouted_replication_reconnects_total",
			Help: "Total number of replication stream reconnects",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BackendRole,
		BackendConnections,
		BackendConsecutiveErrors,
		MonitorTicks,
		MonitorTransitions,
		JournalWrites,
		HookInvocations,
		RouterSelections,
		ReplicationCommits,
		ReplicationReconnects,
	)
}

// Handler returns the Prometheus HTTP handler for an embedding process to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
