/*
Package storage provides BoltDB-backed persistence for named cluster
configurations.

Cluster state is never stored: the provider is the source of truth for
nodes, and a cluster rebuilt from its configuration learns them with Sync.
What is stored is the configuration a cluster was launched with, so a later
invocation can find the cluster by name:

	<dataDir>/hcluster.db
	  clusters   name → Record{Name, Config (YAML), CreatedAt, UpdatedAt}

Records are JSON encoded. Reads run in db.View and writes in db.Update, so
concurrent readers see consistent snapshots and writes are atomic.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	data, _ := cfg.Marshal()
	err = store.SaveCluster(&storage.Record{Name: cfg.Prefix, Config: data})

	rec, err := store.GetCluster("analytics")
	if errors.Is(err, storage.ErrNotFound) {
		...
	}

Deleting a missing record is not an error.
*/
package storage
