package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no cluster is stored under a name
var ErrNotFound = errors.New("cluster not found")

// Record is a named cluster configuration. Config holds the configuration
// document as written by config.Config.Marshal; credentials are never part
// of it.
type Record struct {
	Name      string    `json:"name"`
	Config    []byte    `json:"config"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for the cluster catalogue. Only
// configurations are stored; node state always comes from the provider.
type Store interface {
	SaveCluster(rec *Record) error
	GetCluster(name string) (*Record, error)
	ListClusters() ([]*Record, error)
	DeleteCluster(name string) error

	// Utility
	Close() error
}
