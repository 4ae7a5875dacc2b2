/*
Package readiness implements the polling barrier between launching nodes and
bootstrapping them.

AwaitRunning polls the provider until every node reports running and swaps in
the fresh snapshots, which carry the addresses assigned at boot. A node the
provider reports as not found is still pending: describe calls lag behind
launches.

AwaitRemoteReady runs a trivial command on every node until it succeeds.
Authentication failures, refused or reset connections, timeouts and TLS
errors mean the host is still booting.

Nodes are checked concurrently and a gate returns only when every node is
ready. Each gate is bounded by its own retry.Policy; exhaustion returns an
error matching retry.ErrExhausted and naming the node.
*/
package readiness
