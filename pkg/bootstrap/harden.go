package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/types"
)

// HardenCommands returns the commands that switch a bootstrapped cluster to
// strong authentication, keyed by the host they run on, in order.
func HardenCommands(primary *types.Node, workers []*types.Node) []HostCommand {
	principal := "hadoop/" + strings.ToLower(primary.PrivateAddress)
	cmds := []HostCommand{
		{Host: primary.Host(), Command: "cd /usr/local/hadoop-*; kinit -k -t conf/nn.keytab " + principal +
			"; bin/hadoop fs -mkdir /hbase; bin/hadoop fs -chown hbase /hbase"},
		{Host: primary.Host(), Command: "/usr/local/hbase-*/bin/hbase-daemon.sh start master"},
	}
	for _, w := range workers {
		cmds = append(cmds, HostCommand{Host: w.Host(), Command: "/usr/local/hbase-*/bin/hbase-daemon.sh start regionserver"})
	}
	return cmds
}

// HostCommand is a command bound to the host it runs on
type HostCommand struct {
	Host    string
	Command string
}

// Harden runs the strong authentication commands against the primary and
// then every worker. It is not retried: the services it starts are not
// idempotent.
func (p *Protocol) Harden(ctx context.Context, primary *types.Node, workers []*types.Node) error {
	if primary == nil || primary.Host() == "" {
		return fmt.Errorf("%w: cannot harden cluster", ErrNoPrimary)
	}

	logger := log.WithCluster(p.cluster)
	logger.Info().Int("workers", len(workers)).Msg("Enabling strong authentication")

	for _, hc := range HardenCommands(primary, workers) {
		if err := remote.Run(ctx, p.channel, hc.Host, hc.Command, p.consumer(hc.Host)); err != nil {
			return fmt.Errorf("failed to harden %s: %w", hc.Host, err)
		}
	}

	p.broker.Publish(&events.Event{
		Type:    events.EventClusterHardened,
		Cluster: p.cluster,
		Message: "strong authentication enabled",
	})
	return nil
}

// Finalize runs commands on the primary after every role is bootstrapped. A
// command that runs and exits non-zero is logged and skipped; a command that
// cannot be run fails the step.
func (p *Protocol) Finalize(ctx context.Context, primary *types.Node, commands []string) error {
	if len(commands) == 0 {
		return nil
	}
	if primary == nil || primary.Host() == "" {
		return fmt.Errorf("%w: cannot run final initialization", ErrNoPrimary)
	}

	host := primary.Host()
	logger := log.WithCluster(p.cluster)
	for _, cmd := range commands {
		err := remote.Run(ctx, p.channel, host, cmd, p.consumer(host))
		var exitErr *remote.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			logger.Warn().Int("status", exitErr.Code).Str("command", cmd).Msg("Final initialization command failed")
		default:
			return fmt.Errorf("final initialization on %s: %w", host, err)
		}
	}
	return nil
}
