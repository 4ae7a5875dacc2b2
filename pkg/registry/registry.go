package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/hcluster/pkg/cluster"
	"github.com/cuemby/hcluster/pkg/config"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/storage"
	"github.com/cuemby/hcluster/pkg/types"
)

var (
	// ErrNotFound is returned for a name that was never registered
	ErrNotFound = storage.ErrNotFound

	// ErrExists is returned when registering a name twice
	ErrExists = errors.New("cluster already registered")
)

// Factory builds a cluster from a stored configuration. It is responsible
// for supplying credentials, which are never stored.
type Factory func(ctx context.Context, cfg *config.Config) (*cluster.Cluster, error)

// Registry looks clusters up by name. Configurations are persisted in a
// storage.Store; clusters are built on first use and kept for the life of
// the registry.
type Registry struct {
	mu       sync.Mutex
	store    storage.Store
	factory  Factory
	clusters map[string]*cluster.Cluster
}

// New creates a registry over store
func New(store storage.Store, factory Factory) *Registry {
	return &Registry{
		store:    store,
		factory:  factory,
		clusters: make(map[string]*cluster.Cluster),
	}
}

// Register builds a cluster from cfg and records its configuration under
// the cluster name.
func (r *Registry) Register(ctx context.Context, cfg *config.Config) (*cluster.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := cfg.Prefix
	if _, ok := r.clusters[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if _, err := r.store.GetCluster(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check cluster %s: %w", name, err)
	}

	c, err := r.factory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode config for %s: %w", name, err)
	}
	if err := r.store.SaveCluster(&storage.Record{Name: name, Config: data}); err != nil {
		return nil, fmt.Errorf("failed to save cluster %s: %w", name, err)
	}

	r.clusters[name] = c
	log.Logger.Info().Str("component", "registry").Str("cluster", name).Msg("Cluster registered")
	return c, nil
}

// Get returns the named cluster, building it from its stored configuration
// the first time. The cluster has not been synced.
func (r *Registry) Get(ctx context.Context, name string) (*cluster.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(ctx, name)
}

func (r *Registry) get(ctx context.Context, name string) (*cluster.Cluster, error) {
	if c, ok := r.clusters[name]; ok {
		return c, nil
	}

	rec, err := r.store.GetCluster(name)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(rec.Config)
	if err != nil {
		return nil, fmt.Errorf("stored config for %s: %w", name, err)
	}
	c, err := r.factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.clusters[name] = c
	return c, nil
}

// Names returns every registered cluster name in order
func (r *Registry) Names() ([]string, error) {
	recs, err := r.store.ListClusters()
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.Name)
	}
	return names, nil
}

// Forget removes a cluster from the registry. Its nodes are not touched.
func (r *Registry) Forget(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clusters, name)
	if err := r.store.DeleteCluster(name); err != nil {
		return fmt.Errorf("failed to forget cluster %s: %w", name, err)
	}
	return nil
}

// SyncAll syncs every registered cluster and returns their statuses in name
// order. A cluster that cannot be built or synced is reported in the joined
// error and left out.
func (r *Registry) SyncAll(ctx context.Context) ([]types.Status, error) {
	names, err := r.Names()
	if err != nil {
		return nil, err
	}

	var (
		statuses []types.Status
		errs     []error
	)
	for _, name := range names {
		r.mu.Lock()
		c, err := r.get(ctx, name)
		r.mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		st, err := c.Sync(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		statuses = append(statuses, st)
	}
	return statuses, errors.Join(errs...)
}
