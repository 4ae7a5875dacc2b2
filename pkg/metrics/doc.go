/*
Package metrics provides Prometheus metrics for hcluster.

All metrics are registered against the default registry at package init.
Serve exposes them on /metrics, next to /health and /ready, when the CLI is
started with --metrics-addr. The health endpoints report the components in
Health; the provider gateway marks itself unhealthy after a transport or
internal failure and healthy again on the next successful call.

	┌──────────────────── METRICS ─────────────────────────────┐
	│                                                            │
	│  provider   hcluster_provider_calls_total{operation,outcome}│
	│             hcluster_provider_call_duration_seconds        │
	│             hcluster_nodes_launched_total{role}            │
	│                                                            │
	│  readiness  hcluster_readiness_polls_total{gate}           │
	│             hcluster_readiness_wait_seconds{gate}          │
	│                                                            │
	│  bootstrap  hcluster_bootstrap_attempts_total{role,outcome}│
	│             hcluster_role_launch_duration_seconds{role}    │
	│                                                            │
	│  cluster    hcluster_nodes_total{cluster,role}             │
	│             hcluster_cluster_state{cluster,state}          │
	│             hcluster_sync_total                            │
	│             hcluster_sync_duration_seconds                 │
	└────────────────────────────────────────────────────────────┘

Timer is a small helper for histogram observations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

The Record* helpers keep gauge bookkeeping (one-hot state gauge, per-role node
counts) in one place so the orchestrator only reports facts.
*/
package metrics
