package cluster

import (
	"context"
	"fmt"

	"github.com/cuemby/hcluster/pkg/bootstrap"
	"github.com/cuemby/hcluster/pkg/launcher"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/types"
)

// Launch brings the whole cluster up: it ensures the security perimeter,
// then launches and bootstraps each role in order, runs the final
// initialization commands on the primary, and hardens the cluster when
// configured to. On failure the cluster stays launching and the nodes
// launched so far stay tracked so Terminate can clean them up. Only an
// initialized cluster can be launched; a failed launch is not resumed.
func (c *Cluster) Launch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.ClusterStateTerminated {
		return ErrClusterTerminated
	}
	if c.state != types.ClusterStateInitialized {
		return fmt.Errorf("%w: cannot launch a %s cluster", ErrInvalidTransition, c.state)
	}
	if err := c.transition(types.ClusterStateLaunching); err != nil {
		return err
	}

	logger := log.WithCluster(c.name)

	logger.Info().Msg("Checking security groups")
	if _, err := c.perimeter.Ensure(ctx); err != nil {
		return err
	}

	if err := c.resolveImages(ctx); err != nil {
		return err
	}

	for _, role := range types.LaunchOrder {
		if c.count(role) == 0 {
			logger.Info().Str("role", string(role)).Msg("Skipping role with no nodes")
			continue
		}
		logger.Info().Str("role", string(role)).Msg("Launching role")
		nodes, err := c.launcher.LaunchRole(ctx, c.roleSpec(role), c.onReady(role))
		if len(nodes) > 0 {
			c.nodes[role] = nodes
			c.recordNodes()
		}
		if err != nil {
			return fmt.Errorf("failed to launch %s: %w", role, err)
		}
	}

	logger.Info().Msg("Final initialization")
	primary := c.primary()
	if err := c.protocol.Finalize(ctx, primary, c.cfg.FinalizeCommands); err != nil {
		return err
	}
	if c.cfg.Kerberized {
		if err := c.protocol.Harden(ctx, primary, c.nodes[types.RoleWorker]); err != nil {
			return err
		}
	}

	if primary != nil {
		c.launchTime = primary.LaunchTime
	}
	return c.transition(types.ClusterStateRunning)
}

func (c *Cluster) roleSpec(role types.Role) launcher.RoleSpec {
	rc := c.cfg.Role(role)
	return launcher.RoleSpec{
		Role:         role,
		Count:        c.count(role),
		Image:        c.images[role],
		InstanceType: rc.InstanceType,
		Group:        role.GroupName(c.cfg.Prefix),
		Zone:         c.zone,
		KeyName:      c.cfg.KeyName,
	}
}

// onReady returns the bootstrap routine for role. It runs with c.mu held by
// Launch. The primary address is recorded only once the primary has
// bootstrapped.
func (c *Cluster) onReady(role types.Role) launcher.OnReady {
	return func(ctx context.Context, nodes []*types.Node) error {
		c.nodes[role] = nodes

		params := bootstrap.Params{
			Role:           role,
			PrimaryAddress: c.primaryAddress,
			Quorum:         c.quorum,
			WorkerCount:    c.workerCount,
			ExtraPackages:  c.cfg.Role(role).ExtraPackages,
		}
		switch role {
		case types.RoleQuorum:
			c.quorum = quorumString(nodes)
			params.Quorum = c.quorum
			if c.zone == "" && len(nodes) > 0 {
				c.zone = nodes[0].Zone
			}
		case types.RolePrimary:
			params.PrimaryAddress = nodes[0].Host()
		}

		if err := c.gate.AwaitRemoteReady(ctx, nodes); err != nil {
			return fmt.Errorf("%s nodes not reachable: %w", role, err)
		}
		if err := c.protocol.Role(ctx, nodes, params); err != nil {
			return err
		}

		for _, n := range nodes {
			n.Ready = true
		}
		if role == types.RolePrimary {
			c.primaryAddress = params.PrimaryAddress
		}
		return nil
	}
}

// Exec runs command on the primary and hands its output to consume. A
// non-zero exit is returned as a *remote.ExitError.
func (c *Cluster) Exec(ctx context.Context, command string, consume remote.Consumer) error {
	host := c.PrimaryAddress()
	if host == "" {
		return fmt.Errorf("%w: cannot run %q", ErrNoPrimary, command)
	}
	return remote.Run(ctx, c.channel, host, command, consume)
}
