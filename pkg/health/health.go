package health

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/remote"
	"github.com/cuemby/hcluster/pkg/types"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP   CheckType = "http"
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeRemote CheckType = "remote"
)

// Service ports of the cluster daemons
const (
	PortQuorum           = 2181
	PortMaster           = 60000
	PortMasterInfo       = 60010
	PortRegionServer     = 60020
	PortRegionServerInfo = 60030
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Probe binds a checker to the node it inspects
type Probe struct {
	Role    types.Role
	NodeID  string
	Host    string
	Service string
	Checker Checker
}

// Report is the result of one probe
type Report struct {
	Probe
	Result
}

// Config contains common configuration for all probes
type Config struct {
	// Timeout bounds each individual check
	Timeout time.Duration

	// Concurrency caps the checks in flight
	Concurrency int

	// Channel runs remote checks; without one they are skipped
	Channel remote.Channel
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		Concurrency: 16,
	}
}

// ProbesFor returns the service probes for one node of role. Every node gets
// a remote session check; daemons are checked on their service ports and the
// masters and region servers on their info pages.
func ProbesFor(role types.Role, node *types.Node, cfg Config) []Probe {
	host := node.Host()
	probe := func(service string, c Checker) Probe {
		return Probe{Role: role, NodeID: node.ID, Host: host, Service: service, Checker: c}
	}

	var probes []Probe
	if cfg.Channel != nil {
		probes = append(probes, probe("session", NewRemoteChecker(cfg.Channel, host, "true").WithTimeout(cfg.Timeout)))
	}
	switch role {
	case types.RoleQuorum:
		probes = append(probes,
			probe("zookeeper", NewTCPChecker(host, PortQuorum).WithTimeout(cfg.Timeout)))
	case types.RolePrimary, types.RoleStandby:
		probes = append(probes,
			probe("master", NewTCPChecker(host, PortMaster).WithTimeout(cfg.Timeout)),
			probe("master-info", NewHTTPChecker(infoURL(host, PortMasterInfo, "/master.jsp")).WithTimeout(cfg.Timeout)))
	case types.RoleWorker:
		probes = append(probes,
			probe("regionserver", NewTCPChecker(host, PortRegionServer).WithTimeout(cfg.Timeout)),
			probe("regionserver-info", NewHTTPChecker(infoURL(host, PortRegionServerInfo, "/regionserver.jsp")).WithTimeout(cfg.Timeout)))
	}
	return probes
}

// Run executes probes concurrently and returns their reports ordered by
// launch order, node and service.
func Run(ctx context.Context, probes []Probe, cfg Config) []Report {
	reports := make([]Report, len(probes))

	eg, egCtx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		eg.SetLimit(cfg.Concurrency)
	}
	for i, p := range probes {
		eg.Go(func() error {
			res := p.Checker.Check(egCtx)
			reports[i] = Report{Probe: p, Result: res}
			if !res.Healthy {
				logger := log.WithNodeID(p.NodeID)
				logger.Debug().
					Str("service", p.Service).
					Str("check", string(p.Checker.Type())).
					Str("message", res.Message).
					Msg("Check failed")
			}
			return nil
		})
	}
	_ = eg.Wait()

	rank := make(map[types.Role]int, len(types.LaunchOrder))
	for i, role := range types.LaunchOrder {
		rank[role] = i
	}
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if rank[a.Role] != rank[b.Role] {
			return rank[a.Role] < rank[b.Role]
		}
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		return a.Service < b.Service
	})
	return reports
}

// Healthy reports whether every report passed
func Healthy(reports []Report) bool {
	for _, r := range reports {
		if !r.Healthy {
			return false
		}
	}
	return true
}

func result(start time.Time, healthy bool, message string) Result {
	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
