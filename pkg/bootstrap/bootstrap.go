package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

const (
	// CredentialPath is where the cluster private key is installed on nodes
	CredentialPath = "/root/.ssh/id_rsa"

	scriptDir       = "/root"
	quorumScriptDir = "/var/tmp"
)

var (
	// ErrNoQuorum is returned when a role needs the quorum membership string
	// before the quorum has been bootstrapped.
	ErrNoQuorum = errors.New("quorum membership not known")

	// ErrNoPrimary is returned when a role needs the primary address before
	// the primary has been bootstrapped.
	ErrNoPrimary = errors.New("primary address not known")
)

// Config configures the protocol
type Config struct {
	// CredentialFile is the local private key installed on every node
	CredentialFile string

	// InitScript is the local init script for primary, standby, worker and
	// auxiliary nodes.
	InitScript string

	// QuorumScript is the local init script for quorum nodes
	QuorumScript string

	// LogLevel is passed to the init script as the service log verbosity
	LogLevel string

	// Retry bounds the per-node sequence, retried as one unit
	Retry retry.Policy

	// Verbose echoes command output into the log instead of summarizing it
	Verbose bool

	// Progress receives one dot per output chunk when not Verbose
	Progress io.Writer
}

// DefaultRetry retries a node's bootstrap every ten seconds for up to twenty
// minutes.
func DefaultRetry() retry.Policy {
	return retry.Fixed(10*time.Second, 0, 20*time.Minute)
}

// Params are the role parameters passed to a node's init script
type Params struct {
	Role           types.Role
	PrimaryAddress string
	Quorum         string
	WorkerCount    int
	ExtraPackages  string
}

// Validate checks the upstream state the role depends on is known
func (p Params) Validate() error {
	switch p.Role {
	case types.RoleQuorum:
		if p.Quorum == "" {
			return fmt.Errorf("%w: quorum nodes need their own membership", ErrNoQuorum)
		}
	case types.RolePrimary:
		if p.Quorum == "" {
			return fmt.Errorf("%w: cannot bootstrap primary", ErrNoQuorum)
		}
	case types.RoleStandby, types.RoleWorker, types.RoleAuxiliary:
		if p.Quorum == "" {
			return fmt.Errorf("%w: cannot bootstrap %s", ErrNoQuorum, p.Role)
		}
		if p.PrimaryAddress == "" {
			return fmt.Errorf("%w: cannot bootstrap %s", ErrNoPrimary, p.Role)
		}
	default:
		return fmt.Errorf("unknown role %q", p.Role)
	}
	return nil
}

// Protocol installs credentials and init scripts on nodes and runs them
type Protocol struct {
	channel remote.Channel
	cfg     Config
	broker  *events.Broker
	cluster string
}

// NewProtocol creates a protocol for the named cluster. broker may be nil.
func NewProtocol(channel remote.Channel, cfg Config, cluster string, broker *events.Broker) *Protocol {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "DEBUG"
	}
	if cfg.Progress != nil {
		cfg.Progress = &syncWriter{w: cfg.Progress}
	}
	return &Protocol{channel: channel, cfg: cfg, broker: broker, cluster: cluster}
}

// Role bootstraps every node concurrently and returns once all succeeded
func (p *Protocol) Role(ctx context.Context, nodes []*types.Node, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		eg.Go(func() error {
			return p.Node(egCtx, node, params)
		})
	}
	return eg.Wait()
}

// Node runs the full bootstrap sequence on one node, retrying the whole
// sequence on any failure until the retry policy is exhausted.
func (p *Protocol) Node(ctx context.Context, node *types.Node, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	host := node.Host()
	logger := log.WithRole(p.cluster, string(params.Role)).With().
		Str("node_id", node.ID).
		Str("host", host).
		Logger()
	consume := p.consumer(host)

	steps := p.steps(params)
	err := p.cfg.Retry.Do(ctx, fmt.Sprintf("bootstrap %s node %s", params.Role, node.ID), func(attempt int) error {
		for _, step := range steps {
			if err := step.run(ctx, p.channel, host, consume); err != nil {
				metrics.BootstrapAttemptsTotal.WithLabelValues(string(params.Role), "error").Inc()
				logger.Warn().Err(err).Int("attempt", attempt).Msg("Bootstrap attempt failed, retrying")
				p.broker.Publish(&events.Event{
					Type:    events.EventBootstrapRetrying,
					Cluster: p.cluster,
					Message: err.Error(),
					Metadata: map[string]string{
						"role":    string(params.Role),
						"node_id": node.ID,
						"attempt": strconv.Itoa(attempt),
					},
				})
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap %s node %s (%s): %w", params.Role, node.ID, host, err)
	}

	metrics.BootstrapAttemptsTotal.WithLabelValues(string(params.Role), "ok").Inc()
	p.broker.Publish(&events.Event{
		Type:    events.EventNodeBootstrapped,
		Cluster: p.cluster,
		Message: fmt.Sprintf("%s node %s bootstrapped", params.Role, node.ID),
		Metadata: map[string]string{
			"role":    string(params.Role),
			"node_id": node.ID,
			"host":    host,
		},
	})
	logger.Info().Msg("Node bootstrapped")
	return nil
}

type step struct {
	local   string
	remote  string
	command string
}

func (s step) run(ctx context.Context, ch remote.Channel, host string, consume remote.Consumer) error {
	if s.local != "" {
		return ch.CopyFile(ctx, host, s.local, s.remote)
	}
	return remote.Run(ctx, ch, host, s.command, consume)
}

func (p *Protocol) steps(params Params) []step {
	if params.Role == types.RoleQuorum {
		script := quorumScriptDir + "/" + filepath.Base(p.cfg.QuorumScript)
		return []step{
			{local: p.cfg.QuorumScript, remote: script},
			{command: QuorumCommand(script, params.Quorum)},
		}
	}

	script := scriptDir + "/" + filepath.Base(p.cfg.InitScript)
	return []step{
		{local: p.cfg.CredentialFile, remote: CredentialPath},
		{command: "chmod 600 " + CredentialPath},
		{local: p.cfg.InitScript, remote: script},
		{command: "chmod 700 " + script},
		{command: InitCommand(script, params, p.cfg.LogLevel)},
	}
}

// QuorumCommand runs the quorum init script with the membership string in
// its environment.
func QuorumCommand(script, quorum string) string {
	inner := fmt.Sprintf("ZOOKEEPER_QUORUM=%s sh %s", remote.Quote(quorum), remote.Quote(script))
	return "sh -c " + remote.Quote(inner)
}

// InitCommand runs the role init script with its positional parameters:
// primary address, quorum, worker count, extra packages, log level.
func InitCommand(script string, params Params, level string) string {
	return strings.Join([]string{
		"sh",
		remote.Quote(script),
		remote.Quote(params.PrimaryAddress),
		remote.Quote(params.Quorum),
		strconv.Itoa(params.WorkerCount),
		remote.Quote(params.ExtraPackages),
		remote.Quote(level),
	}, " ")
}

func (p *Protocol) consumer(host string) remote.Consumer {
	if p.cfg.Verbose {
		return remote.Echo(log.WithComponent("bootstrap"), host)
	}
	if p.cfg.Progress != nil {
		return remote.Summarize(p.cfg.Progress)
	}
	return remote.Discard
}

// syncWriter serializes progress output from concurrent node bootstraps
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
