/*
Package provider is the call surface over the cloud compute provider.

Gateway covers the seven calls the orchestrator needs: launching, describing
and terminating nodes, describing images, and managing isolation groups and
their ingress rules. Provider failures are folded onto the package sentinels
so callers classify them with errors.Is; IsTransient reports the ones worth
retrying in place (not yet visible, throttled, transport).

Three implementations are provided:

  - EC2Gateway talks to EC2 through aws-sdk-go-v2. Launch requests are sized
    with minimum equal to maximum and carry role and cluster tags.
  - MemoryGateway simulates a provider in a go-memdb database, including the
    window in which new instances are invisible or pending. It backs dry runs
    and tests and supports fault injection.
  - Throttled wraps any Gateway with a shared rate limiter and records call
    metrics.
*/
package provider
