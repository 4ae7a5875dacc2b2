package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/cuemby/hcluster/pkg/types"
)

const (
	tableInstances = "instances"
	tableImages    = "images"
	tableGroups    = "groups"
)

type instanceRecord struct {
	ID        string
	Group     string
	Node      *types.Node
	Describes int
}

type imageRecord struct {
	ID    string
	Image *types.Image
}

type groupRecord struct {
	Name        string
	Description string
	Rules       []IngressRule
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableInstances: {
				Name: tableInstances,
				Indexes: map[string]*memdb.IndexSchema{
					"id":    {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"group": {Name: "group", Indexer: &memdb.StringFieldIndex{Field: "Group"}},
				},
			},
			tableImages: {
				Name: tableImages,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableGroups: {
				Name: tableGroups,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				},
			},
		},
	}
}

// MemoryConfig shapes the simulated provider's eventual consistency
type MemoryConfig struct {
	// OwnerID is the account that owns images added with AddImage
	OwnerID string

	// PendingDescribes is how many describe observations a new instance
	// spends in pending before it reports running.
	PendingDescribes int

	// HiddenDescribes is how many describe-by-id calls for a new instance
	// fail with ErrNotFound before it becomes visible.
	HiddenDescribes int
}

type fault struct {
	err   error
	times int
}

// MemoryGateway is an in-process provider used for dry runs and tests. It
// keeps instances, images and isolation groups in a go-memdb database.
type MemoryGateway struct {
	cfg MemoryConfig
	db  *memdb.MemDB

	mu     sync.Mutex
	seq    int
	calls  map[string]int
	faults map[string][]*fault
}

// NewMemoryGateway creates an empty simulated provider
func NewMemoryGateway(cfg MemoryConfig) *MemoryGateway {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		// the schema is static; a failure here is a programming error
		panic(fmt.Sprintf("memory provider schema: %v", err))
	}
	return &MemoryGateway{
		cfg:    cfg,
		db:     db,
		calls:  make(map[string]int),
		faults: make(map[string][]*fault),
	}
}

// InjectFault makes the next times calls to op fail with err
func (m *MemoryGateway) InjectFault(op string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], &fault{err: err, times: times})
}

// Calls returns how many times op has been invoked
func (m *MemoryGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryGateway) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	queue := m.faults[op]
	if len(queue) == 0 {
		return nil
	}
	f := queue[0]
	f.times--
	if f.times <= 0 {
		m.faults[op] = queue[1:]
	}
	return f.err
}

func (m *MemoryGateway) nextID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// AddImage registers an image. An empty owner uses the configured OwnerID.
func (m *MemoryGateway) AddImage(id, name, owner string) {
	if owner == "" {
		owner = m.cfg.OwnerID
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	_ = txn.Insert(tableImages, &imageRecord{
		ID:    id,
		Image: &types.Image{ID: id, Name: name, OwnerID: owner, State: "available"},
	})
	txn.Commit()
}

// AddNode inserts an already-running node, as if launched by someone else
func (m *MemoryGateway) AddNode(node *types.Node) {
	n := node.Clone()
	if n.ID == "" {
		n.ID = fmt.Sprintf("i-%08x", m.nextID())
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	_ = txn.Insert(tableInstances, &instanceRecord{ID: n.ID, Group: n.Group, Node: n, Describes: m.cfg.PendingDescribes + m.cfg.HiddenDescribes})
	txn.Commit()
}

// LaunchNodes creates req.Count pending instances
func (m *MemoryGateway) LaunchNodes(ctx context.Context, req LaunchRequest) ([]*types.Node, error) {
	if err := m.enter("LaunchNodes"); err != nil {
		return nil, err
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidRequest)
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	if raw, err := txn.First(tableImages, "id", req.ImageID); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: image %s does not exist", ErrInvalidRequest, req.ImageID)
	}
	if raw, err := txn.First(tableGroups, "id", req.Group); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: isolation group %s", ErrNotFound, req.Group)
	}

	zone := req.Zone
	if zone == "" {
		zone = "sim-1a"
	}

	nodes := make([]*types.Node, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		seq := m.nextID()
		node := &types.Node{
			ID:             fmt.Sprintf("i-%08x", seq),
			Role:           req.Role,
			Group:          req.Group,
			ImageID:        req.ImageID,
			InstanceType:   req.InstanceType,
			PublicAddress:  fmt.Sprintf("ec2-10-0-%d-%d.compute.sim", seq/250, seq%250+1),
			PrivateAddress: fmt.Sprintf("ip-10-0-%d-%d.internal", seq/250, seq%250+1),
			State:          types.ComputeStatePending,
			Zone:           zone,
			LaunchTime:     time.Now().UTC(),
			Tags:           launchTags(req),
		}
		if err := txn.Insert(tableInstances, &instanceRecord{ID: node.ID, Group: node.Group, Node: node}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		nodes = append(nodes, node.Clone())
	}
	txn.Commit()
	return nodes, nil
}

// DescribeNodes returns snapshots of matching instances. Each observation of
// a pending instance moves it closer to running.
func (m *MemoryGateway) DescribeNodes(ctx context.Context, filter Filter) ([]*types.Node, error) {
	if err := m.enter("DescribeNodes"); err != nil {
		return nil, err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	var records []*instanceRecord
	if len(filter.InstanceIDs) > 0 {
		for _, id := range filter.InstanceIDs {
			raw, err := txn.First(tableInstances, "id", id)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInternal, err)
			}
			if raw == nil {
				return nil, fmt.Errorf("%w: instance %s", ErrNotFound, id)
			}
			rec := *raw.(*instanceRecord)
			if rec.Describes < m.cfg.HiddenDescribes {
				rec.Describes++
				_ = txn.Insert(tableInstances, &rec)
				txn.Commit()
				return nil, fmt.Errorf("%w: instance %s", ErrNotFound, id)
			}
			records = append(records, &rec)
		}
	} else {
		it, err := txn.Get(tableInstances, "id")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			rec := *raw.(*instanceRecord)
			if len(filter.Groups) > 0 && !contains(filter.Groups, rec.Group) {
				continue
			}
			records = append(records, &rec)
		}
	}

	nodes := make([]*types.Node, 0, len(records))
	for _, rec := range records {
		rec.Describes++
		if rec.Node.State == types.ComputeStatePending && rec.Describes >= m.cfg.HiddenDescribes+m.cfg.PendingDescribes {
			n := rec.Node.Clone()
			n.State = types.ComputeStateRunning
			rec.Node = n
		}
		if err := txn.Insert(tableInstances, rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		nodes = append(nodes, rec.Node.Clone())
	}
	txn.Commit()
	return nodes, nil
}

// TerminateNodes marks instances terminated
func (m *MemoryGateway) TerminateNodes(ctx context.Context, ids []string) error {
	if err := m.enter("TerminateNodes"); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()
	for _, id := range ids {
		raw, err := txn.First(tableInstances, "id", id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if raw == nil {
			return fmt.Errorf("%w: instance %s", ErrNotFound, id)
		}
		rec := *raw.(*instanceRecord)
		n := rec.Node.Clone()
		n.State = types.ComputeStateTerminated
		rec.Node = n
		if err := txn.Insert(tableInstances, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}
	txn.Commit()
	return nil
}

// DescribeImages lists images matching filter
func (m *MemoryGateway) DescribeImages(ctx context.Context, filter ImageFilter) ([]*types.Image, error) {
	if err := m.enter("DescribeImages"); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	var out []*types.Image
	if len(filter.ImageIDs) > 0 {
		for _, id := range filter.ImageIDs {
			raw, err := txn.First(tableImages, "id", id)
			if err != nil || raw == nil {
				return nil, fmt.Errorf("%w: image %s", ErrNotFound, id)
			}
			img := *raw.(*imageRecord).Image
			out = append(out, &img)
		}
		return out, nil
	}

	it, err := txn.Get(tableImages, "id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		img := *raw.(*imageRecord).Image
		if len(filter.Owners) > 0 && !contains(filter.Owners, img.OwnerID) {
			continue
		}
		if filter.Name != "" && img.Name != filter.Name {
			continue
		}
		out = append(out, &img)
	}
	return out, nil
}

// ListIsolationGroups returns every group name
func (m *MemoryGateway) ListIsolationGroups(ctx context.Context) ([]string, error) {
	if err := m.enter("ListIsolationGroups"); err != nil {
		return nil, err
	}

	txn := m.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableGroups, "id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	var names []string
	for raw := it.Next(); raw != nil; raw = it.Next() {
		names = append(names, raw.(*groupRecord).Name)
	}
	return names, nil
}

// CreateIsolationGroup creates an empty group
func (m *MemoryGateway) CreateIsolationGroup(ctx context.Context, name, description string) error {
	if err := m.enter("CreateIsolationGroup"); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()
	if raw, _ := txn.First(tableGroups, "id", name); raw != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateGroup, name)
	}
	if err := txn.Insert(tableGroups, &groupRecord{Name: name, Description: description}); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	txn.Commit()
	return nil
}

// AuthorizeIngress adds rule to group
func (m *MemoryGateway) AuthorizeIngress(ctx context.Context, group string, rule IngressRule) error {
	if err := m.enter("AuthorizeIngress"); err != nil {
		return err
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableGroups, "id", group)
	if err != nil || raw == nil {
		return fmt.Errorf("%w: isolation group %s", ErrNotFound, group)
	}
	if rule.SourceGroup != "" {
		if src, _ := txn.First(tableGroups, "id", rule.SourceGroup); src == nil {
			return fmt.Errorf("%w: isolation group %s", ErrNotFound, rule.SourceGroup)
		}
	}

	rec := *raw.(*groupRecord)
	for _, existing := range rec.Rules {
		if existing == rule {
			return fmt.Errorf("%w: %s", ErrDuplicatePermission, group)
		}
	}
	rec.Rules = append(append([]IngressRule(nil), rec.Rules...), rule)
	if err := txn.Insert(tableGroups, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	txn.Commit()
	return nil
}

// Rules returns the ingress rules on group, for inspection
func (m *MemoryGateway) Rules(group string) []IngressRule {
	txn := m.db.Txn(false)
	defer txn.Abort()
	raw, _ := txn.First(tableGroups, "id", group)
	if raw == nil {
		return nil
	}
	return append([]IngressRule(nil), raw.(*groupRecord).Rules...)
}

// Instances returns every instance ever launched, sorted by id
func (m *MemoryGateway) Instances() []*types.Node {
	txn := m.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableInstances, "id")
	if err != nil {
		return nil
	}
	var out []*types.Node
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*instanceRecord).Node.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
