// Package registry finds clusters by name.
//
// A Registry is an explicit object handed to whatever needs lookup by name,
// usually the CLI. It stores each cluster's configuration (without
// credentials) in a storage.Store and rebuilds the cluster through a Factory
// when it is asked for by a later process. Node state is never stored; call
// Sync on a rebuilt cluster to learn its nodes.
package registry
