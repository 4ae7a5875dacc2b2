package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hcluster/pkg/types"
)

func newTestMemory(t *testing.T, cfg MemoryConfig) *MemoryGateway {
	t.Helper()
	m := NewMemoryGateway(cfg)
	m.AddImage("ami-1", "hbase-0.20.0-x86_64", "")
	require.NoError(t, m.CreateIsolationGroup(context.Background(), "hc", "workers"))
	return m
}

func TestMemoryLaunchTagsAndPendingState(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{OwnerID: "123", PendingDescribes: 2})

	nodes, err := m.LaunchNodes(ctx, LaunchRequest{
		ImageID: "ami-1", Count: 3, InstanceType: "m1.large", Group: "hc",
		Role: types.RoleWorker, Cluster: "hc",
	})
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	for _, n := range nodes {
		assert.Equal(t, types.ComputeStatePending, n.State)
		assert.Equal(t, "worker", n.Tags[types.TagRole])
		assert.Equal(t, "hc", n.Tags[types.TagCluster])
		assert.NotEmpty(t, n.PrivateAddress)
	}

	first, err := m.DescribeNodes(ctx, Filter{InstanceIDs: []string{nodes[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, types.ComputeStatePending, first[0].State)

	second, err := m.DescribeNodes(ctx, Filter{InstanceIDs: []string{nodes[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, types.ComputeStateRunning, second[0].State)
}

func TestMemoryHiddenDescribes(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{HiddenDescribes: 1})

	nodes, err := m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-1", Count: 1, Group: "hc"})
	require.NoError(t, err)

	_, err = m.DescribeNodes(ctx, Filter{InstanceIDs: []string{nodes[0].ID}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsTransient(err))

	seen, err := m.DescribeNodes(ctx, Filter{InstanceIDs: []string{nodes[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, types.ComputeStateRunning, seen[0].State)
}

func TestMemoryLaunchRejectsUnknownImageAndGroup(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{})

	_, err := m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-missing", Count: 1, Group: "hc"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-1", Count: 1, Group: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-1", Count: 0, Group: "hc"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMemoryIngressDuplicates(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{})

	require.NoError(t, m.AuthorizeIngress(ctx, "hc", SSHFromAnywhere()))
	err := m.AuthorizeIngress(ctx, "hc", SSHFromAnywhere())
	assert.ErrorIs(t, err, ErrDuplicatePermission)

	require.NoError(t, m.AuthorizeIngress(ctx, "hc", TrustGroup("hc")))
	assert.Len(t, m.Rules("hc"), 2)

	err = m.AuthorizeIngress(ctx, "hc", TrustGroup("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.CreateIsolationGroup(ctx, "hc", "again")
	assert.ErrorIs(t, err, ErrDuplicateGroup)
}

func TestMemoryTerminateAndGroupFilter(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{})
	require.NoError(t, m.CreateIsolationGroup(ctx, "other", "not ours"))

	ours, err := m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-1", Count: 2, Group: "hc"})
	require.NoError(t, err)
	_, err = m.LaunchNodes(ctx, LaunchRequest{ImageID: "ami-1", Count: 1, Group: "other"})
	require.NoError(t, err)

	seen, err := m.DescribeNodes(ctx, Filter{Groups: []string{"hc"}})
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	require.NoError(t, m.TerminateNodes(ctx, []string{ours[0].ID}))
	seen, err = m.DescribeNodes(ctx, Filter{InstanceIDs: []string{ours[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, types.ComputeStateTerminated, seen[0].State)

	err = m.TerminateNodes(ctx, []string{"i-missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, m.Instances(), 3)
}

func TestMemoryDescribeImages(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{OwnerID: "123"})
	m.AddImage("ami-2", "hbase-0.20.0-x86_64", "999")

	own, err := m.DescribeImages(ctx, ImageFilter{Owners: []string{"123"}, Name: "hbase-0.20.0-x86_64"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "ami-1", own[0].ID)

	all, err := m.DescribeImages(ctx, ImageFilter{Name: "hbase-0.20.0-x86_64"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = m.DescribeImages(ctx, ImageFilter{ImageIDs: []string{"ami-404"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryInjectFault(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, MemoryConfig{})
	boom := errors.New("boom")
	m.InjectFault("ListIsolationGroups", boom, 2)

	_, err := m.ListIsolationGroups(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = m.ListIsolationGroups(ctx)
	assert.ErrorIs(t, err, boom)

	groups, err := m.ListIsolationGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hc"}, groups)
	assert.Equal(t, 3, m.Calls("ListIsolationGroups"))
}
