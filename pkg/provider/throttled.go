package provider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/cuemby/hcluster/pkg/metrics"
	"github.com/cuemby/hcluster/pkg/types"
)

// Throttled wraps a Gateway with a shared rate limiter and call metrics. The
// provider enforces per-account request limits; pacing client side keeps
// polling loops from tripping them.
type Throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewThrottled limits next to rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewThrottled(next Gateway, rps float64, burst int) *Throttled {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) wait(ctx context.Context, op string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limiter: %w", op, err)
	}
	return nil
}

func observe(op string, timer *metrics.Timer, err error) {
	timer.ObserveDurationVec(metrics.ProviderCallDuration, op)
	metrics.RecordProviderCall(op, err)
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrInternal) {
		metrics.Health.UpdateComponent("provider", false, fmt.Sprintf("%s: %v", op, err))
	} else {
		metrics.Health.UpdateComponent("provider", true, "")
	}
}

func (t *Throttled) LaunchNodes(ctx context.Context, req LaunchRequest) ([]*types.Node, error) {
	if err := t.wait(ctx, "LaunchNodes"); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	nodes, err := t.next.LaunchNodes(ctx, req)
	observe("LaunchNodes", timer, err)
	if err == nil {
		metrics.NodesLaunchedTotal.WithLabelValues(string(req.Role)).Add(float64(len(nodes)))
	}
	return nodes, err
}

func (t *Throttled) DescribeNodes(ctx context.Context, filter Filter) ([]*types.Node, error) {
	if err := t.wait(ctx, "DescribeNodes"); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	nodes, err := t.next.DescribeNodes(ctx, filter)
	observe("DescribeNodes", timer, err)
	return nodes, err
}

func (t *Throttled) TerminateNodes(ctx context.Context, ids []string) error {
	if err := t.wait(ctx, "TerminateNodes"); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := t.next.TerminateNodes(ctx, ids)
	observe("TerminateNodes", timer, err)
	return err
}

func (t *Throttled) DescribeImages(ctx context.Context, filter ImageFilter) ([]*types.Image, error) {
	if err := t.wait(ctx, "DescribeImages"); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	images, err := t.next.DescribeImages(ctx, filter)
	observe("DescribeImages", timer, err)
	return images, err
}

func (t *Throttled) ListIsolationGroups(ctx context.Context) ([]string, error) {
	if err := t.wait(ctx, "ListIsolationGroups"); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	groups, err := t.next.ListIsolationGroups(ctx)
	observe("ListIsolationGroups", timer, err)
	return groups, err
}

func (t *Throttled) CreateIsolationGroup(ctx context.Context, name, description string) error {
	if err := t.wait(ctx, "CreateIsolationGroup"); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := t.next.CreateIsolationGroup(ctx, name, description)
	observe("CreateIsolationGroup", timer, err)
	return err
}

func (t *Throttled) AuthorizeIngress(ctx context.Context, group string, rule IngressRule) error {
	if err := t.wait(ctx, "AuthorizeIngress"); err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err := t.next.AuthorizeIngress(ctx, group, rule)
	observe("AuthorizeIngress", timer, err)
	return err
}
