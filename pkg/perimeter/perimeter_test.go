package perimeter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/retry"
)

func testConfig() Config {
	return Config{Prefix: "hc", Retry: retry.Policy{MaxAttempts: 5}}
}

func TestEnsureCreatesAndAuthorizes(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	mgr := NewManager(m, testConfig(), nil)

	created, err := mgr.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hc-zk", "hc-master", "hc-secondary", "hc", "hc-aux"}, created)

	groups, err := m.ListIsolationGroups(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups, 5)

	// 5 ssh rules + 25 ordered trust pairs
	assert.Equal(t, 30, m.Calls("AuthorizeIngress"))
	for _, g := range mgr.Groups() {
		rules := m.Rules(g)
		assert.Len(t, rules, 6, g)
		assert.Contains(t, rules, provider.SSHFromAnywhere())
		assert.Contains(t, rules, provider.TrustGroup(g))
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	mgr := NewManager(m, testConfig(), nil)

	_, err := mgr.Ensure(context.Background())
	require.NoError(t, err)

	created, err := mgr.Ensure(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)

	groups, err := m.ListIsolationGroups(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups, 5)
	assert.Equal(t, 30, m.Calls("AuthorizeIngress"))
}

func TestEnsureRecreatesMissingGroupWithoutDuplicateErrors(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	ctx := context.Background()
	require.NoError(t, m.CreateIsolationGroup(ctx, "hc", "workers"))
	require.NoError(t, m.AuthorizeIngress(ctx, "hc", provider.SSHFromAnywhere()))

	mgr := NewManager(m, testConfig(), nil)
	created, err := mgr.Ensure(ctx)
	require.NoError(t, err)
	assert.Len(t, created, 4)
	assert.Len(t, m.Rules("hc"), 6)
}

func TestEnsureRetriesThrottling(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	m.InjectFault("AuthorizeIngress", fmt.Errorf("%w: rate", provider.ErrThrottled), 2)
	mgr := NewManager(m, testConfig(), nil)

	_, err := mgr.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 32, m.Calls("AuthorizeIngress"))
}

func TestEnsureInternalErrorIsFatal(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	m.InjectFault("AuthorizeIngress", provider.ErrInternal, 1)
	mgr := NewManager(m, testConfig(), nil)

	_, err := mgr.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrPerimeterBootstrap)
	assert.ErrorIs(t, err, provider.ErrInternal)
	assert.Equal(t, 1, m.Calls("AuthorizeIngress"))
}

func TestEnsureListFailure(t *testing.T) {
	m := provider.NewMemoryGateway(provider.MemoryConfig{})
	m.InjectFault("ListIsolationGroups", provider.ErrInvalidRequest, 1)
	mgr := NewManager(m, testConfig(), nil)

	_, err := mgr.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrPerimeterBootstrap)
	assert.Equal(t, 0, m.Calls("CreateIsolationGroup"))
}

func TestEnsurePublishesEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	mgr := NewManager(provider.NewMemoryGateway(provider.MemoryConfig{}), testConfig(), broker)
	_, err := mgr.Ensure(context.Background())
	require.NoError(t, err)

	ev := <-sub
	assert.Equal(t, events.EventPerimeterCreated, ev.Type)
	assert.Equal(t, "hc", ev.Cluster)
}
