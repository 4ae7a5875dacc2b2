/*
Package types defines the data model shared by every hcluster package.

# Roles

A cluster is made of five roles, launched strictly in LaunchOrder:

	quorum  -> coordination service nodes; their private addresses form the
	           quorum membership string
	primary -> active leader; its address is needed by every later role
	standby -> passive leader mirroring the primary
	worker  -> data-serving pool
	aux     -> optional supplementary pool

Each role owns one network isolation group derived from the cluster prefix:

	quorum   <prefix>-zk
	primary  <prefix>-master
	standby  <prefix>-secondary
	worker   <prefix>
	aux      <prefix>-aux

# Nodes

Node is a snapshot of a provider instance. Its identity is the instance id;
orchestration code replaces stale snapshots with fresh ones and never edits an
id. Nodes carry TagRole and TagCluster so reconciliation can bucket them by
role without string-matching group names. RoleForGroup remains for nodes that
predate tagging.

# Lifecycle

ClusterState only moves forward (Rank increases), except that terminated is
reachable from anywhere and is final.
*/
package types
