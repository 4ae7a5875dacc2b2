package perimeter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cuemby/hcluster/pkg/events"
	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/retry"
	"github.com/cuemby/hcluster/pkg/types"
)

// ErrPerimeterBootstrap is returned when the isolation groups could not be
// fully authorized. No node may be launched into a partial perimeter.
var ErrPerimeterBootstrap = errors.New("security perimeter bootstrap failed")

// Config configures a Manager
type Config struct {
	// Prefix names the groups: <prefix>, <prefix>-master, <prefix>-secondary,
	// <prefix>-zk and <prefix>-aux.
	Prefix string

	// AuthorizePause is slept after each mutual-trust authorization. Some
	// providers reject bursts of rule changes on the same group.
	AuthorizePause time.Duration

	// Retry bounds retries of throttled and transport failures per call
	Retry retry.Policy

	Clock clock.Clock
}

// DefaultConfig returns the production settings for prefix
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:         prefix,
		AuthorizePause: time.Second,
		Retry:          retry.Fixed(2*time.Second, 10, 2*time.Minute),
	}
}

// Manager ensures the five role isolation groups exist and trust each other
type Manager struct {
	gateway provider.Gateway
	cfg     Config
	broker  *events.Broker
}

// NewManager creates a perimeter manager. broker may be nil.
func NewManager(gateway provider.Gateway, cfg Config, broker *events.Broker) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Manager{gateway: gateway, cfg: cfg, broker: broker}
}

// Groups returns the five group names in launch order
func (m *Manager) Groups() []string {
	groups := make([]string, 0, len(types.LaunchOrder))
	for _, role := range types.LaunchOrder {
		groups = append(groups, role.GroupName(m.cfg.Prefix))
	}
	return groups
}

// Ensure creates any missing group. If it created one, it authorizes remote
// execution access from anywhere on every group, then full trust between
// every ordered pair of groups including each group with itself. It returns
// the names of the groups it created; an existing perimeter is a no-op.
func (m *Manager) Ensure(ctx context.Context) ([]string, error) {
	logger := log.WithComponent("perimeter")
	logger.Info().Str("prefix", m.cfg.Prefix).Msg("Checking security groups")

	var existing []string
	err := m.cfg.Retry.Do(ctx, "list isolation groups", func(int) error {
		var err error
		existing, err = m.gateway.ListIsolationGroups(ctx)
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPerimeterBootstrap, err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	var created []string
	for _, role := range types.LaunchOrder {
		name := role.GroupName(m.cfg.Prefix)
		if have[name] {
			continue
		}
		logger.Info().Str("group", name).Msg("Creating security group")
		err := m.cfg.Retry.Do(ctx, "create isolation group "+name, func(int) error {
			err := m.gateway.CreateIsolationGroup(ctx, name, role.Description())
			if errors.Is(err, provider.ErrDuplicateGroup) {
				return nil
			}
			return classify(err)
		})
		if err != nil {
			return created, fmt.Errorf("%w: create %s: %w", ErrPerimeterBootstrap, name, err)
		}
		created = append(created, name)
	}

	if len(created) == 0 {
		return nil, nil
	}

	groups := m.Groups()
	for _, group := range groups {
		if err := m.authorize(ctx, group, provider.SSHFromAnywhere()); err != nil {
			return created, err
		}
	}
	for _, group := range groups {
		for _, source := range groups {
			if err := m.authorize(ctx, group, provider.TrustGroup(source)); err != nil {
				return created, err
			}
			if err := m.pause(ctx); err != nil {
				return created, fmt.Errorf("%w: %w", ErrPerimeterBootstrap, err)
			}
		}
	}

	m.broker.Publish(&events.Event{
		Type:     events.EventPerimeterCreated,
		Cluster:  m.cfg.Prefix,
		Message:  fmt.Sprintf("created %d security groups", len(created)),
		Metadata: map[string]string{"prefix": m.cfg.Prefix},
	})
	logger.Info().Strs("created", created).Msg("Security groups authorized")
	return created, nil
}

func (m *Manager) authorize(ctx context.Context, group string, rule provider.IngressRule) error {
	err := m.cfg.Retry.Do(ctx, "authorize "+group, func(int) error {
		err := m.gateway.AuthorizeIngress(ctx, group, rule)
		if errors.Is(err, provider.ErrDuplicatePermission) {
			return nil
		}
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("%w: authorize %s on %s: %w", ErrPerimeterBootstrap, describe(rule), group, err)
	}
	return nil
}

func (m *Manager) pause(ctx context.Context) error {
	if m.cfg.AuthorizePause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.cfg.Clock.After(m.cfg.AuthorizePause):
		return nil
	}
}

// classify keeps throttling, transport errors and not-yet-visible groups
// retryable and makes everything else final, provider-internal errors
// included.
func classify(err error) error {
	if err == nil || provider.IsTransient(err) {
		return err
	}
	return retry.Permanent(err)
}

func describe(rule provider.IngressRule) string {
	if rule.SourceGroup != "" {
		return "trust from " + rule.SourceGroup
	}
	return fmt.Sprintf("%s %d-%d from %s", rule.Protocol, rule.FromPort, rule.ToPort, rule.CIDR)
}
