package cluster

import (
	"context"
	"fmt"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/types"
)

// Sync refreshes the tracked nodes from the provider. Nodes are bucketed by
// their role tag, or by isolation group when untagged, and terminated nodes
// are dropped. Quorum, worker and auxiliary counts only change when at least
// one node of the role is observed. Nodes keep the bootstrap readiness seen
// by this process. A terminated cluster is left as is.
func (c *Cluster) Sync(ctx context.Context) (types.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ClusterStateTerminated {
		return c.status(), nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)
	metrics.SyncTotal.Inc()

	groups := make([]string, 0, len(types.LaunchOrder))
	for _, role := range types.LaunchOrder {
		groups = append(groups, role.GroupName(c.cfg.Prefix))
	}

	observed, err := c.gateway.DescribeNodes(ctx, provider.Filter{Groups: groups})
	if err != nil {
		return c.status(), fmt.Errorf("failed to describe nodes: %w", err)
	}

	ready := make(map[string]bool)
	for _, nodes := range c.nodes {
		for _, n := range nodes {
			if n.Ready {
				ready[n.ID] = true
			}
		}
	}

	buckets := make(map[types.Role][]*types.Node, len(types.LaunchOrder))
	for _, n := range observed {
		if n.State.Gone() {
			continue
		}
		if owner, ok := n.Tags[types.TagCluster]; ok && owner != c.name {
			continue
		}
		role, ok := c.roleOf(n)
		if !ok {
			continue
		}
		n.Role = role
		n.Ready = ready[n.ID]
		buckets[role] = append(buckets[role], n)
	}

	for _, role := range types.LaunchOrder {
		c.nodes[role] = buckets[role]
	}

	if n := len(buckets[types.RoleQuorum]); n > 0 {
		c.quorumCount = n
	}
	if n := len(buckets[types.RoleWorker]); n > 0 {
		c.workerCount = n
	}
	if n := len(buckets[types.RoleAuxiliary]); n > 0 {
		c.auxCount = n
	}
	c.quorum = quorumString(buckets[types.RoleQuorum])

	if p := c.primary(); p != nil {
		c.primaryAddress = p.Host()
		c.launchTime = p.LaunchTime
		if p.State == types.ComputeStateRunning {
			if err := c.transition(types.ClusterStateRunning); err != nil {
				return c.status(), err
			}
		}
	}

	c.recordNodes()
	st := c.status()
	c.broker.Publish(&events.Event{
		Type:    events.EventClusterSynced,
		Cluster: c.name,
		Message: fmt.Sprintf("%d nodes observed", len(observed)),
	})
	logger := log.WithCluster(c.name)
	logger.Debug().
		Int("observed", len(observed)).
		Int("quorum", len(buckets[types.RoleQuorum])).
		Int("workers", len(buckets[types.RoleWorker])).
		Int("aux", len(buckets[types.RoleAuxiliary])).
		Msg("Cluster synced")
	return st, nil
}

// roleOf returns the node's role from its tag, falling back to its
// isolation group for nodes launched without tags.
func (c *Cluster) roleOf(n *types.Node) (types.Role, bool) {
	if tag, ok := n.Tags[types.TagRole]; ok {
		if role, err := types.ParseRole(tag); err == nil {
			return role, true
		}
	}
	return types.RoleForGroup(c.cfg.Prefix, n.Group)
}
