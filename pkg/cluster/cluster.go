package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/hcluster/pkg/bootstrap"
	"github.com/cuemby/hcluster/pkg/config"
	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/images"
	"github.com/cuemby/hcluster/pkg/launcher"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/perimeter"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/readiness"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/types"
)

var (
	// ErrNoPrimary is returned when an operation needs the primary and none
	// is known.
	ErrNoPrimary = bootstrap.ErrNoPrimary

	// ErrClusterTerminated is returned when launching a terminated cluster
	ErrClusterTerminated = errors.New("cluster is terminated")

	// ErrInvalidTransition is returned for a lifecycle move that goes backward
	ErrInvalidTransition = errors.New("invalid cluster state transition")
)

// Deps are the collaborators a cluster drives. Gateway and Channel are
// required; the rest may be nil.
type Deps struct {
	Gateway provider.Gateway
	Channel remote.Channel

	// Resolver resolves role images. When nil one is built over Gateway,
	// scoped to the configured account.
	Resolver *images.Resolver

	Broker *events.Broker

	// Progress receives one dot per line of bootstrap output when not
	// running with debug verbosity.
	Progress io.Writer
}

// Cluster is one multi-role cluster on the provider, keyed by its perimeter
// prefix. Launch, Sync and Terminate are serialized.
type Cluster struct {
	mu sync.Mutex

	cfg      *config.Config
	name     string
	gateway  provider.Gateway
	channel  remote.Channel
	resolver *images.Resolver
	broker   *events.Broker

	perimeter *perimeter.Manager
	gate      *readiness.Gate
	launcher  *launcher.Launcher
	protocol  *bootstrap.Protocol

	state       types.ClusterState
	quorumCount int
	workerCount int
	auxCount    int
	images      map[types.Role]types.ImageReference
	nodes       map[types.Role][]*types.Node

	primaryAddress string
	quorum         string
	zone           string
	launchTime     time.Time
}

// New validates cfg, resolves every role's image when image validation is
// on, and returns a cluster in the initialized state. It does not look at
// existing nodes; call Sync for that.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Cluster, error) {
	if deps.Gateway == nil || deps.Channel == nil {
		return nil, fmt.Errorf("%w: cluster needs a provider gateway and a remote channel", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = images.NewResolver(deps.Gateway, cfg.Credentials.AccountID)
	}

	pcfg := perimeter.DefaultConfig(cfg.Prefix)
	pcfg.AuthorizePause = cfg.Provider.AuthorizePause
	pcfg.Retry = cfg.Retry.Provider.Policy()

	gate := readiness.NewGate(deps.Gateway, deps.Channel, readiness.Config{
		Running: cfg.Retry.Running.Policy(),
		Remote:  cfg.Retry.Remote.Policy(),
	})

	c := &Cluster{
		cfg:         cfg,
		name:        cfg.Prefix,
		gateway:     deps.Gateway,
		channel:     deps.Channel,
		resolver:    resolver,
		broker:      deps.Broker,
		perimeter:   perimeter.NewManager(deps.Gateway, pcfg, deps.Broker),
		gate:        gate,
		launcher:    launcher.NewLauncher(deps.Gateway, gate, cfg.Prefix, deps.Broker, cfg.Retry.Provider.Policy()),
		quorumCount: cfg.Role(types.RoleQuorum).Count,
		workerCount: cfg.Role(types.RoleWorker).Count,
		auxCount:    cfg.Role(types.RoleAuxiliary).Count,
		images:      make(map[types.Role]types.ImageReference),
		nodes:       make(map[types.Role][]*types.Node),
		zone:        cfg.Zone,
	}
	c.protocol = bootstrap.NewProtocol(deps.Channel, bootstrap.Config{
		CredentialFile: cfg.Bootstrap.CredentialFile,
		InitScript:     cfg.Bootstrap.InitScript,
		QuorumScript:   cfg.Bootstrap.QuorumScript,
		LogLevel:       cfg.LogLevel,
		Retry:          cfg.Retry.Bootstrap.Policy(),
		Verbose:        cfg.Debug > 0,
		Progress:       deps.Progress,
	}, cfg.Prefix, deps.Broker)

	if cfg.ValidateImages {
		if err := c.resolveImages(ctx); err != nil {
			return nil, err
		}
	}

	c.state = types.ClusterStateInitialized
	metrics.RecordState(c.name, c.state)
	logger := log.WithCluster(c.name)
	logger.Info().Msg("Cluster initialized")
	return c, nil
}

// Name returns the cluster name, which is also its group prefix
func (c *Cluster) Name() string {
	return c.name
}

// Config returns the configuration the cluster was built from
func (c *Cluster) Config() *config.Config {
	return c.cfg
}

// State returns the lifecycle state
func (c *Cluster) State() types.ClusterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Nodes returns a copy of the tracked nodes for role
func (c *Cluster) Nodes(role types.Role) []*types.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CloneNodes(c.nodes[role])
}

// Primary returns the tracked primary node, or nil
func (c *Cluster) Primary() *types.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary().Clone()
}

// PrimaryAddress returns the primary's address once it is known
func (c *Cluster) PrimaryAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primaryAddress
}

// Quorum returns the comma separated private addresses of the quorum nodes
func (c *Cluster) Quorum() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quorum
}

// Zone returns the placement zone roles are launched into
func (c *Cluster) Zone() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zone
}

// Image returns the image resolved for role
func (c *Cluster) Image(role types.Role) (types.ImageReference, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.images[role]
	return ref, ok
}

// Status returns a point-in-time summary
func (c *Cluster) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

func (c *Cluster) status() types.Status {
	st := types.Status{
		Name:           c.name,
		State:          c.state,
		QuorumCount:    c.quorumCount,
		WorkerCount:    c.workerCount,
		AuxCount:       c.auxCount,
		LaunchTime:     c.launchTime,
		PrimaryAddress: c.primaryAddress,
	}
	if p := c.primary(); p != nil {
		st.PrimaryID = p.ID
	}
	return st
}

func (c *Cluster) String() string {
	st := c.Status()
	return fmt.Sprintf("cluster %s: %s (quorum=%d workers=%d aux=%d primary=%s)",
		st.Name, st.State, st.QuorumCount, st.WorkerCount, st.AuxCount, st.PrimaryAddress)
}

func (c *Cluster) primary() *types.Node {
	if nodes := c.nodes[types.RolePrimary]; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// count is the number of nodes launched for role
func (c *Cluster) count(role types.Role) int {
	switch role {
	case types.RoleQuorum:
		return c.quorumCount
	case types.RoleWorker:
		return c.workerCount
	case types.RoleAuxiliary:
		return c.auxCount
	default:
		return 1
	}
}

// transition moves the lifecycle forward. Terminated is reachable from any
// state; every other move must advance.
func (c *Cluster) transition(to types.ClusterState) error {
	from := c.state
	if from == to {
		return nil
	}
	if to != types.ClusterStateTerminated && to.Rank() <= from.Rank() {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	c.state = to
	metrics.RecordState(c.name, to)
	c.broker.Publish(&events.Event{
		Type:    events.EventClusterState,
		Cluster: c.name,
		Message: fmt.Sprintf("cluster %s", to),
		Metadata: map[string]string{
			"from": string(from),
			"to":   string(to),
		},
	})
	logger := log.WithCluster(c.name)
	logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Cluster state changed")
	return nil
}

func (c *Cluster) recordNodes() {
	counts := make(map[types.Role]int, len(types.LaunchOrder))
	for _, role := range types.LaunchOrder {
		counts[role] = len(c.nodes[role])
	}
	metrics.RecordNodes(c.name, counts)
}

// resolveImages resolves the image of every role that will be launched.
// Roles sharing a label hit the resolver's cache.
func (c *Cluster) resolveImages(ctx context.Context) error {
	for _, role := range types.LaunchOrder {
		if c.count(role) == 0 {
			continue
		}
		if _, ok := c.images[role]; ok {
			continue
		}
		rc := c.cfg.Role(role)
		ref, err := c.resolver.Resolve(ctx, role, rc.Label, rc.ImageID)
		if err != nil {
			return err
		}
		c.images[role] = ref
	}
	return nil
}

// quorumString joins the private addresses of the quorum nodes
func quorumString(nodes []*types.Node) string {
	addrs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		addr := n.PrivateAddress
		if addr == "" {
			addr = n.Host()
		}
		addrs = append(addrs, addr)
	}
	return strings.Join(addrs, ",")
}
