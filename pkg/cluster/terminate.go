package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/types"
)

// Terminate terminates every tracked node, one call per node, and marks the
// cluster terminated. A failed termination does not stop the others; all
// failures are returned together. Nodes without an instance id are skipped.
func (c *Cluster) Terminate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := log.WithCluster(c.name)

	var errs []error
	for _, role := range types.LaunchOrder {
		for _, n := range c.nodes[role] {
			if n == nil || n.ID == "" {
				continue
			}
			logger.Info().Str("role", string(role)).Str("node_id", n.ID).Msg("Terminating node")
			if err := c.gateway.TerminateNodes(ctx, []string{n.ID}); err != nil {
				logger.Error().Err(err).Str("node_id", n.ID).Msg("Failed to terminate node")
				errs = append(errs, fmt.Errorf("failed to terminate %s node %s: %w", role, n.ID, err))
				continue
			}
			c.broker.Publish(&events.Event{
				Type:    events.EventNodeTerminated,
				Cluster: c.name,
				Message: fmt.Sprintf("%s node %s terminated", role, n.ID),
				Metadata: map[string]string{
					"role":    string(role),
					"node_id": n.ID,
				},
			})
		}
	}

	c.nodes = make(map[types.Role][]*types.Node)
	c.primaryAddress = ""
	c.quorum = ""
	c.recordNodes()
	if err := c.transition(types.ClusterStateTerminated); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
