package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

const (
	gateRunning = "running"
	gateRemote  = "remote"

	// ProbeCommand is run to check a host accepts sessions
	ProbeCommand = "true"
)

var errPending = errors.New("node not running yet")

// Config bounds both gates
type Config struct {
	Running retry.Policy
	Remote  retry.Policy
}

// DefaultConfig polls the provider every second and probes hosts every five
// seconds, giving up on either after fifteen minutes.
func DefaultConfig() Config {
	return Config{
		Running: retry.Fixed(time.Second, 0, 15*time.Minute),
		Remote:  retry.Fixed(5*time.Second, 0, 15*time.Minute),
	}
}

// Gate blocks until node sets satisfy a liveness condition
type Gate struct {
	gateway provider.Gateway
	channel remote.Channel
	cfg     Config
}

// NewGate creates a gate over the given provider and remote channel
func NewGate(gateway provider.Gateway, channel remote.Channel, cfg Config) *Gate {
	return &Gate{gateway: gateway, channel: channel, cfg: cfg}
}

// AwaitRunning blocks until the provider reports every node running. Each
// element of nodes is replaced with the snapshot that was observed running.
// A node the provider does not know about yet counts as pending.
func (g *Gate) AwaitRunning(ctx context.Context, nodes []*types.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReadinessWaitDuration, gateRunning)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range nodes {
		eg.Go(func() error {
			fresh, err := g.awaitNodeRunning(egCtx, nodes[i])
			if err != nil {
				return err
			}
			nodes[i] = fresh
			return nil
		})
	}
	return eg.Wait()
}

func (g *Gate) awaitNodeRunning(ctx context.Context, node *types.Node) (*types.Node, error) {
	logger := log.WithNodeID(node.ID)
	var fresh *types.Node

	err := g.cfg.Running.Do(ctx, "await running "+node.ID, func(attempt int) error {
		metrics.ReadinessPollsTotal.WithLabelValues(gateRunning).Inc()

		seen, err := g.gateway.DescribeNodes(ctx, provider.Filter{InstanceIDs: []string{node.ID}})
		if err != nil {
			if provider.IsTransient(err) {
				logger.Debug().Err(err).Int("attempt", attempt).Msg("Node not visible yet, retrying")
				return err
			}
			return retry.Permanent(fmt.Errorf("failed to describe node %s: %w", node.ID, err))
		}
		if len(seen) == 0 {
			return errPending
		}

		observed := seen[0]
		if observed.State.Gone() {
			return retry.Permanent(fmt.Errorf("node %s is %s while waiting for it to run", node.ID, observed.State))
		}
		if observed.State != types.ComputeStateRunning {
			return errPending
		}

		if observed.Role == "" {
			observed.Role = node.Role
		}
		if observed.Group == "" {
			observed.Group = node.Group
		}
		fresh = observed
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("state", string(fresh.State)).Msg("Node running")
	return fresh, nil
}

// AwaitRemoteReady blocks until every node accepts a remote session. Failures
// classified by remote.IsNotReady are retried; anything else is returned.
func (g *Gate) AwaitRemoteReady(ctx context.Context, nodes []*types.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReadinessWaitDuration, gateRemote)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		eg.Go(func() error {
			return g.awaitNodeRemote(egCtx, node)
		})
	}
	return eg.Wait()
}

func (g *Gate) awaitNodeRemote(ctx context.Context, node *types.Node) error {
	host := node.Host()
	logger := log.WithNodeID(node.ID)

	return g.cfg.Remote.Do(ctx, "await remote "+node.ID, func(attempt int) error {
		metrics.ReadinessPollsTotal.WithLabelValues(gateRemote).Inc()

		err := remote.Run(ctx, g.channel, host, ProbeCommand, remote.Discard)
		if err == nil {
			logger.Debug().Str("host", host).Msg("Host accepts remote sessions")
			return nil
		}
		if remote.IsNotReady(err) {
			logger.Debug().Err(err).Str("host", host).Int("attempt", attempt).Msg("Host not ready yet, waiting")
			return err
		}
		return retry.Permanent(fmt.Errorf("remote probe of node %s (%s) failed: %w", node.ID, host, err))
	})
}
