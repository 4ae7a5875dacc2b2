/*
Package bootstrap implements the per-node remote bootstrap protocol.

For primary, standby, worker and auxiliary nodes the sequence is:

 1. copy the cluster private key to /root/.ssh/id_rsa and chmod 600
 2. copy the init script to /root and chmod 700
 3. run it with the primary address, quorum membership, worker count,
    extra packages and service log level

Quorum nodes get the quorum init script in /var/tmp, run with
ZOOKEEPER_QUORUM set in its environment.

The sequence is retried as one unit under a retry.Policy. Nodes within a role
bootstrap concurrently. Params.Validate refuses to start a role whose upstream
state (quorum membership, primary address) is not known yet; those are state
errors and are never retried.

Harden and Finalize run the optional post-bootstrap commands on the primary
and workers.
*/
package bootstrap
