package provider

import (
	"context"
	"errors"

	"github.com/cuemby/hcluster/pkg/types"
)

var (
	// ErrNotFound is returned for instances the provider does not know about
	// yet. Freshly launched instances are briefly invisible to describe calls.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicatePermission is returned when an ingress rule already exists
	ErrDuplicatePermission = errors.New("permission already authorized")

	// ErrDuplicateGroup is returned when an isolation group already exists
	ErrDuplicateGroup = errors.New("isolation group already exists")

	// ErrThrottled is returned when the provider rejects a call for rate
	ErrThrottled = errors.New("request throttled")

	// ErrTransport covers TLS and connection failures talking to the provider
	ErrTransport = errors.New("provider transport error")

	// ErrInternal is a provider-side failure
	ErrInternal = errors.New("provider internal error")

	// ErrInvalidRequest is a malformed request (bad image id, bad instance type)
	ErrInvalidRequest = errors.New("invalid provider request")
)

// IsTransient reports whether err is worth retrying in place
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrTransport)
}

// LaunchRequest asks for exactly Count nodes; partial fulfilment is a failure
type LaunchRequest struct {
	ImageID      string
	Count        int
	InstanceType string
	Group        string
	Zone         string
	KeyName      string
	Role         types.Role
	Cluster      string
	ClientToken  string
}

// Filter narrows DescribeNodes. Empty fields do not filter.
type Filter struct {
	InstanceIDs []string
	Groups      []string
}

// ImageFilter narrows DescribeImages. Empty Owners means all visible images.
type ImageFilter struct {
	ImageIDs []string
	Owners   []string
	Name     string
}

// IngressRule is either a CIDR rule on a port range or a full-trust rule
// naming a source group.
type IngressRule struct {
	Protocol    string
	FromPort    int
	ToPort      int
	CIDR        string
	SourceGroup string
}

// SSHFromAnywhere allows remote execution access from any address
func SSHFromAnywhere() IngressRule {
	return IngressRule{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: "0.0.0.0/0"}
}

// TrustGroup allows all protocols and ports from members of group
func TrustGroup(group string) IngressRule {
	return IngressRule{Protocol: "-1", SourceGroup: group}
}

// Gateway is the call surface over the cloud compute provider. Implementations
// are stateless with respect to clusters and safe for concurrent use.
type Gateway interface {
	LaunchNodes(ctx context.Context, req LaunchRequest) ([]*types.Node, error)
	DescribeNodes(ctx context.Context, filter Filter) ([]*types.Node, error)
	TerminateNodes(ctx context.Context, ids []string) error
	DescribeImages(ctx context.Context, filter ImageFilter) ([]*types.Image, error)
	ListIsolationGroups(ctx context.Context) ([]string, error)
	CreateIsolationGroup(ctx context.Context, name, description string) error
	AuthorizeIngress(ctx context.Context, group string, rule IngressRule) error
}

// launchTags is the tag set every launched node carries
func launchTags(req LaunchRequest) map[string]string {
	tags := map[string]string{}
	if req.Role != "" {
		tags[types.TagRole] = string(req.Role)
	}
	if req.Cluster != "" {
		tags[types.TagCluster] = req.Cluster
	}
	return tags
}
