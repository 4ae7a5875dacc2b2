package metrics

import (
	"github.com/cuemby/hcluster/pkg/types"
)

var clusterStates = []types.ClusterState{
	types.ClusterStateInitialized,
	types.ClusterStateLaunching,
	types.ClusterStateRunning,
	types.ClusterStateTerminated,
}

// RecordState sets the state gauge for a cluster so exactly one state reads 1
func RecordState(cluster string, state types.ClusterState) {
	for _, s := range clusterStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ClusterState.WithLabelValues(cluster, string(s)).Set(v)
	}
}

// RecordNodes updates the per-role node gauges from tracked collection sizes
func RecordNodes(cluster string, counts map[types.Role]int) {
	for _, role := range types.LaunchOrder {
		NodesTotal.WithLabelValues(cluster, string(role)).Set(float64(counts[role]))
	}
}

// RecordProviderCall counts one provider gateway call
func RecordProviderCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCallsTotal.WithLabelValues(operation, outcome).Inc()
}
