// Package launcher launches the nodes of one cluster role.
//
// LaunchRole sends one sized launch request (minimum equal to maximum, so
// the provider either starts every node or none), waits on the readiness
// gate until all of them report running, and then calls the role's OnReady
// routine once with the fresh node snapshots. Each request is tagged with
// the role and cluster and carries a client token.
package launcher
