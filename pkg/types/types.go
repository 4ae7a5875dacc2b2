package types

import (
	"fmt"
	"strings"
	"time"
)

// Tag keys attached to every launched node so reconciliation does not have
// to infer roles from isolation-group names.
const (
	TagRole    = "hcluster:role"
	TagCluster = "hcluster:cluster"
)

// Role identifies the part a node plays in the cluster
type Role string

const (
	RoleQuorum    Role = "quorum"
	RolePrimary   Role = "primary"
	RoleStandby   Role = "standby"
	RoleWorker    Role = "worker"
	RoleAuxiliary Role = "aux"
)

// LaunchOrder is the fixed order roles are brought up in. Each role depends on
// state produced by the ones before it.
var LaunchOrder = []Role{RoleQuorum, RolePrimary, RoleStandby, RoleWorker, RoleAuxiliary}

// ParseRole converts a tag value back into a Role
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleQuorum, RolePrimary, RoleStandby, RoleWorker, RoleAuxiliary:
		return r, nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// GroupName returns the isolation group name for this role under prefix
func (r Role) GroupName(prefix string) string {
	switch r {
	case RoleQuorum:
		return prefix + "-zk"
	case RolePrimary:
		return prefix + "-master"
	case RoleStandby:
		return prefix + "-secondary"
	case RoleAuxiliary:
		return prefix + "-aux"
	default:
		return prefix
	}
}

// Description is the human readable isolation group description
func (r Role) Description() string {
	switch r {
	case RoleQuorum:
		return "Group for cluster coordination quorum."
	case RolePrimary:
		return "Group for cluster primary."
	case RoleStandby:
		return "Group for cluster standby primary."
	case RoleAuxiliary:
		return "Group for cluster auxiliaries."
	default:
		return "Group for cluster workers."
	}
}

// RoleForGroup maps an isolation group name back onto a role. It is only used
// for nodes launched without role tags.
func RoleForGroup(prefix, group string) (Role, bool) {
	for _, r := range LaunchOrder {
		if r.GroupName(prefix) == group {
			return r, true
		}
	}
	return "", false
}

// ComputeState is the provider-reported state of a node
type ComputeState string

const (
	ComputeStatePending      ComputeState = "pending"
	ComputeStateRunning      ComputeState = "running"
	ComputeStateShuttingDown ComputeState = "shutting-down"
	ComputeStateTerminated   ComputeState = "terminated"
	ComputeStateStopping     ComputeState = "stopping"
	ComputeStateStopped      ComputeState = "stopped"
	ComputeStateUnknown      ComputeState = "unknown"
)

// ParseComputeState normalizes a provider state name
func ParseComputeState(s string) ComputeState {
	switch st := ComputeState(strings.ToLower(s)); st {
	case ComputeStatePending, ComputeStateRunning, ComputeStateShuttingDown,
		ComputeStateTerminated, ComputeStateStopping, ComputeStateStopped:
		return st
	}
	return ComputeStateUnknown
}

// Gone reports whether a node in this state is on its way out and must not
// be tracked in a role collection.
func (s ComputeState) Gone() bool {
	return s == ComputeStateTerminated || s == ComputeStateShuttingDown
}

// Node is a single compute instance as observed from the provider
type Node struct {
	ID             string
	Role           Role
	Group          string
	ImageID        string
	InstanceType   string
	PublicAddress  string
	PrivateAddress string
	State          ComputeState
	Zone           string
	LaunchTime     time.Time
	Tags           map[string]string

	// Ready is set once the node's role bootstrap has completed
	Ready bool
}

// Host returns the address used for remote execution
func (n *Node) Host() string {
	if n.PublicAddress != "" {
		return n.PublicAddress
	}
	return n.PrivateAddress
}

// Clone returns a deep copy of the node snapshot
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Tags != nil {
		c.Tags = make(map[string]string, len(n.Tags))
		for k, v := range n.Tags {
			c.Tags[k] = v
		}
	}
	return &c
}

// CloneNodes deep copies a node slice
func CloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// NodeIDs returns the instance ids of nodes
func NodeIDs(nodes []*Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Image is a registered boot image visible to the account
type Image struct {
	ID      string
	Name    string
	OwnerID string
	State   string
}

// ImageReference pairs a label with the provider image it resolved to
type ImageReference struct {
	Label   string
	ImageID string
}

func (r ImageReference) String() string {
	return fmt.Sprintf("%s (%s)", r.Label, r.ImageID)
}

// ClusterState is the lifecycle state of a cluster
type ClusterState string

const (
	ClusterStateInitialized ClusterState = "initialized"
	ClusterStateLaunching   ClusterState = "launching"
	ClusterStateRunning     ClusterState = "running"
	ClusterStateTerminated  ClusterState = "terminated"
)

// Rank orders states so transitions can be checked for forward progress
func (s ClusterState) Rank() int {
	switch s {
	case ClusterStateInitialized:
		return 0
	case ClusterStateLaunching:
		return 1
	case ClusterStateRunning:
		return 2
	case ClusterStateTerminated:
		return 3
	}
	return -1
}

// Status is a point-in-time summary of a cluster
type Status struct {
	Name           string       `json:"name"`
	State          ClusterState `json:"state"`
	QuorumCount    int          `json:"quorum_count"`
	WorkerCount    int          `json:"worker_count"`
	AuxCount       int          `json:"aux_count"`
	LaunchTime     time.Time    `json:"launch_time,omitempty"`
	PrimaryAddress string       `json:"primary_address,omitempty"`
	PrimaryID      string       `json:"primary_id,omitempty"`
}
