package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hcluster/pkg/metrics"
)

func TestThrottledDelegates(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryGateway(MemoryConfig{})
	g := NewThrottled(mem, 0, 0)

	require.NoError(t, g.CreateIsolationGroup(ctx, "hc", "workers"))
	groups, err := g.ListIsolationGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hc"}, groups)
	assert.Equal(t, 1, mem.Calls("CreateIsolationGroup"))
}

func TestThrottledRespectsContext(t *testing.T) {
	mem := NewMemoryGateway(MemoryConfig{})
	g := NewThrottled(mem, 0.001, 1)

	// the single burst token is consumed by the first call
	_, err := g.ListIsolationGroups(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.ListIsolationGroups(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, mem.Calls("ListIsolationGroups"))
}

func TestThrottledReportsProviderHealth(t *testing.T) {
	mem := NewMemoryGateway(MemoryConfig{})
	g := NewThrottled(mem, 0, 0)

	mem.InjectFault("ListIsolationGroups", ErrTransport, 1)
	_, err := g.ListIsolationGroups(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	comp, ok := metrics.Health.Component("provider")
	require.True(t, ok)
	assert.False(t, comp.Healthy)

	_, err = g.ListIsolationGroups(context.Background())
	require.NoError(t, err)
	comp, _ = metrics.Health.Component("provider")
	assert.True(t, comp.Healthy)
}
