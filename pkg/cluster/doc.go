/*
Package cluster orchestrates the lifecycle of one multi-role cluster.

A Cluster moves through four states:

	initialized ──Launch──▶ launching ──▶ running
	      │                     │            │
	      └─────────Terminate───┴────────────┴──▶ terminated

Launch ensures the isolation groups exist, then launches the roles in a fixed
order, each one bootstrapped before the next starts:

	quorum → primary → standby → worker → aux

The quorum membership string is derived from the quorum nodes before the
primary is bootstrapped. The primary address is recorded when the primary
has bootstrapped, before any standby, worker or auxiliary node is. After the
last role, the final initialization commands run on the primary and, for
kerberized clusters, the hardening commands run on the primary and every
worker.

Sync rebuilds the node collections from the provider on demand. Nodes are
matched to roles by their role tag, or by isolation group for untagged
nodes. Role counts only change when a role has at least one live node, so a
role observed empty keeps its last known size.

Launch runs once per Cluster. A failed launch leaves the cluster launching
with every started node tracked; the way out is Terminate, which is terminal.
Launch, Sync and Terminate share one lock and never interleave.
*/
package cluster
