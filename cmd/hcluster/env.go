package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/hcluster/pkg/cluster"
	"github.com/cuemby/hcluster/pkg/config"
	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/registry"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/storage"
	"github.com/cuemby/hcluster/pkg/types"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hcluster"
	}
	return filepath.Join(home, ".hcluster")
}

// loadConfig reads the configuration file and layers the global flags on
// top. It does not validate; cluster.New does.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	applyProviderFlag(cmd, cfg)
	return cfg, nil
}

func applyProviderFlag(cmd *cobra.Command, cfg *config.Config) {
	if kind, _ := cmd.Flags().GetString("provider"); kind != "" {
		cfg.Provider.Kind = kind
	}
}

// env holds the collaborators shared by every cluster in one invocation
type env struct {
	cmd     *cobra.Command
	store   *storage.BoltStore
	reg     *registry.Registry
	broker  *events.Broker
	sub     events.Subscriber
	gateway provider.Gateway
	channel remote.Channel
}

// openEnv opens the catalogue. Provider and channel are built on first use,
// from the first cluster configuration seen.
func openEnv(cmd *cobra.Command) (*env, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, err
	}
	e := &env{cmd: cmd, store: store, broker: events.NewBroker()}
	e.reg = registry.New(store, e.build)
	e.broker.Start()
	e.sub = e.broker.Subscribe()
	go logEvents(e.sub)
	return e, nil
}

func (e *env) Close() error {
	e.broker.Unsubscribe(e.sub)
	e.broker.Stop()
	return e.store.Close()
}

// logEvents writes lifecycle events to the log until the broker stops
func logEvents(sub events.Subscriber) {
	for ev := range sub {
		logger := log.WithCluster(ev.Cluster)
		entry := logger.Info().Str("event", string(ev.Type))
		for k, v := range ev.Metadata {
			entry = entry.Str(k, v)
		}
		entry.Msg(ev.Message)
	}
}

// build is the registry factory. Stored configurations carry no credentials,
// so they are taken from the environment again here.
func (e *env) build(ctx context.Context, cfg *config.Config) (*cluster.Cluster, error) {
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ExpandPaths()
	applyProviderFlag(e.cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if e.gateway == nil {
		gw, ch, err := newTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		e.gateway, e.channel = gw, ch
	}
	return cluster.New(ctx, cfg, cluster.Deps{
		Gateway:  e.gateway,
		Channel:  e.channel,
		Broker:   e.broker,
		Progress: e.cmd.OutOrStdout(),
	})
}

// newTransport builds the provider gateway and remote channel for cfg. The
// memory provider is paired with a dry-run channel and seeded with the
// configured images so a whole launch can be rehearsed.
func newTransport(ctx context.Context, cfg *config.Config) (provider.Gateway, remote.Channel, error) {
	switch cfg.Provider.Kind {
	case config.ProviderMemory:
		mem := provider.NewMemoryGateway(provider.MemoryConfig{OwnerID: cfg.Credentials.AccountID, PendingDescribes: 1})
		seeded := make(map[string]bool)
		for i, role := range types.LaunchOrder {
			rc := cfg.Role(role)
			id, name := rc.ImageID, rc.Label
			if id == "" {
				id = fmt.Sprintf("ami-dryrun%02d", i)
			}
			if name == "" {
				name = id
			}
			if seeded[id] || (rc.ImageID == "" && seeded[name]) {
				continue
			}
			mem.AddImage(id, name, "")
			seeded[id], seeded[name] = true, true
		}
		return provider.NewThrottled(mem, 0, 0), remote.DryRun{}, nil

	case config.ProviderEC2:
		ec2gw, err := provider.NewEC2Gateway(ctx, provider.EC2Config{
			Region:          cfg.Provider.Region,
			Endpoint:        cfg.Provider.Endpoint,
			AccessKeyID:     cfg.Credentials.AccessKeyID,
			SecretAccessKey: cfg.Credentials.SecretAccessKey,
			OwnerID:         cfg.Credentials.AccountID,
		})
		if err != nil {
			return nil, nil, err
		}
		ch, err := remote.NewSSHChannel(remote.SSHConfig{
			User:    cfg.Bootstrap.RemoteUser,
			KeyFile: cfg.Bootstrap.CredentialFile,
			Port:    cfg.Bootstrap.SSHPort,
		})
		if err != nil {
			return nil, nil, err
		}
		return provider.NewThrottled(ec2gw, cfg.Provider.Rate, cfg.Provider.Burst), ch, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown provider kind %q", config.ErrInvalid, cfg.Provider.Kind)
}

// lookup finds a registered cluster and syncs it
func (e *env) lookup(ctx context.Context, name string) (*cluster.Cluster, error) {
	c, err := e.reg.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, err := c.Sync(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
