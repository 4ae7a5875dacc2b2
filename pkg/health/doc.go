/*
Package health probes the services of a launched cluster.

Each node gets a set of probes chosen by its role: a remote session check on
every node, the ZooKeeper client port on quorum nodes, the master RPC port
and info page on the primary and standby, and the region server RPC port and
info page on workers. Checkers share one interface:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

Run executes a probe set concurrently and returns the reports in launch
order. A failed check is a Report with Healthy false, never an error.
*/
package health
