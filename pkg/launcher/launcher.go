package launcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/readiness"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

// ErrShortLaunch is returned when the provider started fewer nodes than asked
var ErrShortLaunch = errors.New("provider launched fewer nodes than requested")

// RoleSpec describes one role's launch request
type RoleSpec struct {
	Role         types.Role
	Count        int
	Image        types.ImageReference
	InstanceType string
	Group        string
	Zone         string
	KeyName      string
}

// OnReady runs once per launch with the nodes observed running
type OnReady func(ctx context.Context, nodes []*types.Node) error

// Launcher issues sized launch requests and hands running nodes to a role's
// bootstrap routine.
type Launcher struct {
	gateway provider.Gateway
	gate    *readiness.Gate
	cluster string
	broker  *events.Broker
	retry   retry.Policy
}

// NewLauncher creates a launcher for the named cluster. Launch calls that
// fail with a transient provider error are retried under policy with the
// same client token, so a retried request never starts a second set of
// nodes.
func NewLauncher(gateway provider.Gateway, gate *readiness.Gate, cluster string, broker *events.Broker, policy retry.Policy) *Launcher {
	return &Launcher{gateway: gateway, gate: gate, cluster: cluster, broker: broker, retry: policy}
}

// DefaultRetry retries throttled launch calls for up to two minutes
func DefaultRetry() retry.Policy {
	return retry.Fixed(5*time.Second, 0, 2*time.Minute)
}

// LaunchRole issues exactly one launch request for spec.Count nodes, waits
// for all of them to run, then calls onReady once with them. Once the
// provider has started the nodes they are returned even when a later step
// fails, so the caller can track and release them.
func (l *Launcher) LaunchRole(ctx context.Context, spec RoleSpec, onReady OnReady) ([]*types.Node, error) {
	if spec.Count <= 0 {
		return nil, fmt.Errorf("%w: %s count must be positive, got %d", provider.ErrInvalidRequest, spec.Role, spec.Count)
	}

	logger := log.WithRole(l.cluster, string(spec.Role))
	timer := metrics.NewTimer()

	logger.Info().
		Int("count", spec.Count).
		Str("image", spec.Image.ImageID).
		Str("instance_type", spec.InstanceType).
		Str("group", spec.Group).
		Msg("Launching role")

	req := provider.LaunchRequest{
		ImageID:      spec.Image.ImageID,
		Count:        spec.Count,
		InstanceType: spec.InstanceType,
		Group:        spec.Group,
		Zone:         spec.Zone,
		KeyName:      spec.KeyName,
		Role:         spec.Role,
		Cluster:      l.cluster,
		ClientToken:  uuid.NewString(),
	}

	var nodes []*types.Node
	err := l.retry.Do(ctx, "launch "+string(spec.Role), func(int) error {
		var err error
		nodes, err = l.gateway.LaunchNodes(ctx, req)
		if err != nil && !errors.Is(err, provider.ErrThrottled) && !errors.Is(err, provider.ErrTransport) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch %d %s nodes from image %s: %w", spec.Count, spec.Role, spec.Image, err)
	}

	if len(nodes) != spec.Count {
		l.abandon(ctx, nodes)
		return nil, fmt.Errorf("%w: %s wanted %d, got %d", ErrShortLaunch, spec.Role, spec.Count, len(nodes))
	}
	for _, n := range nodes {
		if n.Role == "" {
			n.Role = spec.Role
		}
	}

	if err := l.gate.AwaitRunning(ctx, nodes); err != nil {
		return nodes, fmt.Errorf("%s nodes did not reach running: %w", spec.Role, err)
	}
	logger.Info().Strs("nodes", types.NodeIDs(nodes)).Msg("Role nodes running")

	if onReady != nil {
		if err := onReady(ctx, nodes); err != nil {
			return nodes, err
		}
	}

	timer.ObserveDurationVec(metrics.RoleLaunchDuration, string(spec.Role))
	l.broker.Publish(&events.Event{
		Type:    events.EventRoleLaunched,
		Cluster: l.cluster,
		Message: fmt.Sprintf("%d %s nodes launched", len(nodes), spec.Role),
		Metadata: map[string]string{
			"role":  string(spec.Role),
			"count": strconv.Itoa(len(nodes)),
		},
	})
	return nodes, nil
}

// abandon terminates a partially fulfilled launch so nothing is left running
// untracked.
func (l *Launcher) abandon(ctx context.Context, nodes []*types.Node) {
	if len(nodes) == 0 {
		return
	}
	if err := l.gateway.TerminateNodes(ctx, types.NodeIDs(nodes)); err != nil {
		logger := log.WithCluster(l.cluster)
		logger.Error().Err(err).
			Strs("nodes", types.NodeIDs(nodes)).
			Msg("Failed to terminate partially launched nodes")
	}
}
