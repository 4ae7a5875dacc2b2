package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hcluster_nodes_total",
			Help: "Tracked nodes by cluster and role",
		},
		[]string{"cluster", "role"},
	)

	ClusterState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hcluster_cluster_state",
			Help: "Current lifecycle state of a cluster (1 for the active state)",
		},
		[]string{"cluster", "state"},
	)

	// Provider metrics
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcluster_provider_calls_total",
			Help: "Provider gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hcluster_provider_call_duration_seconds",
			Help:    "Provider gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	NodesLaunchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcluster_nodes_launched_total",
			Help: "Nodes launched by role",
		},
		[]string{"role"},
	)

	// Readiness metrics
	ReadinessPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcluster_readiness_polls_total",
			Help: "Readiness gate poll cycles by gate",
		},
		[]string{"gate"},
	)

	ReadinessWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hcluster_readiness_wait_seconds",
			Help:    "Time spent blocked in a readiness gate",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"gate"},
	)

	// Bootstrap metrics
	BootstrapAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcluster_bootstrap_attempts_total",
			Help: "Per-node bootstrap attempts by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	RoleLaunchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hcluster_role_launch_duration_seconds",
			Help:    "Time to launch and bootstrap a role",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"role"},
	)

	// Reconciliation metrics
	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hcluster_sync_duration_seconds",
			Help:    "Time taken by a sync in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hcluster_sync_total",
			Help: "Total number of syncs",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ClusterState)
	prometheus.MustRegister(ProviderCallsTotal)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(NodesLaunchedTotal)
	prometheus.MustRegister(ReadinessPollsTotal)
	prometheus.MustRegister(ReadinessWaitDuration)
	prometheus.MustRegister(BootstrapAttemptsTotal)
	prometheus.MustRegister(RoleLaunchDuration)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
