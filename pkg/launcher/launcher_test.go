package launcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/readiness"
	"github.com/cuemby/hcluster/pkg/remote/remotetest"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

// shortGateway drops the last node of every launch
type shortGateway struct {
	*provider.MemoryGateway
}

func (s shortGateway) LaunchNodes(ctx context.Context, req provider.LaunchRequest) ([]*types.Node, error) {
	nodes, err := s.MemoryGateway.LaunchNodes(ctx, req)
	if err != nil || len(nodes) == 0 {
		return nodes, err
	}
	return nodes[:len(nodes)-1], nil
}

func setup(t *testing.T, cfg provider.MemoryConfig) (*provider.MemoryGateway, RoleSpec) {
	t.Helper()
	m := provider.NewMemoryGateway(cfg)
	m.AddImage("ami-1", "hbase-1-x86_64", "")
	require.NoError(t, m.CreateIsolationGroup(context.Background(), "hc-zk", "quorum"))
	return m, RoleSpec{
		Role:         types.RoleQuorum,
		Count:        3,
		Image:        types.ImageReference{Label: "hbase-1-x86_64", ImageID: "ami-1"},
		InstanceType: "m1.large",
		Group:        "hc-zk",
		KeyName:      "root",
	}
}

func newLauncher(gw provider.Gateway) *Launcher {
	gate := readiness.NewGate(gw, remotetest.New(), readiness.Config{Running: retry.Policy{MaxAttempts: 10}})
	return NewLauncher(gw, gate, "hc", nil, retry.Policy{MaxAttempts: 3})
}

func TestLaunchRole(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{PendingDescribes: 2})
	l := newLauncher(m)

	var seen []*types.Node
	calls := 0
	nodes, err := l.LaunchRole(context.Background(), spec, func(ctx context.Context, nodes []*types.Node) error {
		calls++
		seen = nodes
		for _, n := range nodes {
			assert.Equal(t, types.ComputeStateRunning, n.State)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Calls("LaunchNodes"))
	assert.Len(t, nodes, 3)
	assert.Equal(t, seen, nodes)
	for _, n := range m.Instances() {
		assert.Equal(t, "quorum", n.Tags[types.TagRole])
		assert.Equal(t, "hc", n.Tags[types.TagCluster])
	}
}

func TestLaunchRoleRejectsZeroCount(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{})
	spec.Count = 0

	_, err := newLauncher(m).LaunchRole(context.Background(), spec, nil)
	assert.ErrorIs(t, err, provider.ErrInvalidRequest)
	assert.Equal(t, 0, m.Calls("LaunchNodes"))
}

func TestLaunchRoleRetriesThrottledLaunch(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{})
	m.InjectFault("LaunchNodes", fmt.Errorf("%w: slow down", provider.ErrThrottled), 1)

	nodes, err := newLauncher(m).LaunchRole(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	assert.Equal(t, 2, m.Calls("LaunchNodes"))
}

func TestLaunchRoleShortLaunchIsAbandoned(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{})

	_, err := newLauncher(shortGateway{m}).LaunchRole(context.Background(), spec, func(context.Context, []*types.Node) error {
		t.Fatal("onReady must not run for a short launch")
		return nil
	})
	assert.ErrorIs(t, err, ErrShortLaunch)

	terminated := 0
	for _, n := range m.Instances() {
		if n.State == types.ComputeStateTerminated {
			terminated++
		}
	}
	assert.Equal(t, 2, terminated)
}

func TestLaunchRoleSurfacesOnReadyError(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{})
	boom := errors.New("bootstrap failed")

	nodes, err := newLauncher(m).LaunchRole(context.Background(), spec, func(context.Context, []*types.Node) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, nodes, 3)
}

func TestLaunchRoleReturnsNodesThatNeverRun(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{PendingDescribes: 50})
	gate := readiness.NewGate(m, remotetest.New(), readiness.Config{Running: retry.Policy{MaxAttempts: 2}})
	l := NewLauncher(m, gate, "hc", nil, retry.Policy{MaxAttempts: 3})

	nodes, err := l.LaunchRole(context.Background(), spec, func(context.Context, []*types.Node) error {
		t.Fatal("onReady must not run before the nodes are running")
		return nil
	})
	assert.ErrorIs(t, err, retry.ErrExhausted)
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, types.RoleQuorum, n.Role)
	}
}

func TestLaunchRoleBadImageIsFatal(t *testing.T) {
	m, spec := setup(t, provider.MemoryConfig{})
	spec.Image.ImageID = "ami-missing"

	_, err := newLauncher(m).LaunchRole(context.Background(), spec, nil)
	assert.ErrorIs(t, err, provider.ErrInvalidRequest)
	assert.Equal(t, 1, m.Calls("LaunchNodes"))
	assert.Contains(t, err.Error(), "ami-missing")
}
