package surrealkeeptesting

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// Primitive names reported in [Call] and accepted by [MemoryStore.FailOn].
const (
	OpNodeExists              = "NodeExists"
	OpInsertNode              = "InsertNode"
	OpUpdateNode              = "UpdateNode"
	OpDeleteNode              = "DeleteNode"
	OpDeleteNodeTree          = "DeleteNodeTree"
	OpDeleteNodeLabels        = "DeleteNodeLabels"
	OpInsertNodeLabelIfAbsent = "InsertNodeLabelIfAbsent"
)

// Call is one primitive invocation observed by a MemoryStore transaction.
type Call struct {
	Op     string
	NodeID models.NodeID
	Labels []models.LabelID
	Rows   int64
}

type failure struct {
	op  string
	id  models.NodeID
	err error
}

// MemoryStore is an in-memory [store.Store] with real transaction semantics:
// each transaction works on a copy of the data that replaces the committed
// state only when the callback succeeds. Transactions are serialized.
//
// It also implements [store.ChangeTracker], records every primitive call and
// can inject failures, which makes it the backend of choice for unit tests
// of the reconciler, the HTTP API and the CQRS sync.
type MemoryStore struct {
	mu sync.Mutex

	nodes   map[models.NodeID]models.Node
	labels  map[models.NodeID]map[models.LabelID]struct{}
	changes []*models.ChangeTracking
	nextID  uint64

	failures []failure
	calls    []Call
	commits  int
	aborts   int
	closed   bool
	now      func() time.Time
}

var (
	_ store.Store         = (*MemoryStore)(nil)
	_ store.ChangeTracker = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[models.NodeID]models.Node),
		labels: make(map[models.NodeID]map[models.LabelID]struct{}),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp change tracking rows.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes the named primitive return err when called for the given
// node. An empty id matches every node.
func (s *MemoryStore) FailOn(op string, id models.NodeID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{op: op, id: id, err: err})
}

// ClearFailures removes every injected failure.
func (s *MemoryStore) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Calls returns every primitive call made so far, including calls made by
// transactions that were rolled back.
func (s *MemoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ResetCalls forgets the recorded calls.
func (s *MemoryStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Commits returns the number of committed transactions.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Rollbacks returns the number of rolled back transactions.
func (s *MemoryStore) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborts
}

// Seed stores nodes and label associations directly, bypassing transactions
// and change tracking.
func (s *MemoryStore) Seed(nodes []models.Node, labels map[models.NodeID][]models.LabelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.nodes[n.ID] = persisted(&n)
	}
	for id, ls := range labels {
		set := s.labels[id]
		if set == nil {
			set = make(map[models.LabelID]struct{})
			s.labels[id] = set
		}
		for _, l := range ls {
			set[l] = struct{}{}
		}
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MemoryStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:      s,
		nodes:  make(map[models.NodeID]models.Node, len(s.nodes)),
		labels: make(map[models.NodeID]map[models.LabelID]struct{}, len(s.labels)),
		nextID: s.nextID,
	}
	for id, n := range s.nodes {
		tx.nodes[id] = n
	}
	for id, set := range s.labels {
		cp := make(map[models.LabelID]struct{}, len(set))
		for l := range set {
			cp[l] = struct{}{}
		}
		tx.labels[id] = cp
	}

	if err := fn(tx); err != nil {
		s.aborts++
		return err
	}
	if err := ctx.Err(); err != nil {
		s.aborts++
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.nodes = tx.nodes
	s.labels = tx.labels
	s.changes = append(s.changes, tx.changes...)
	s.nextID = tx.nextID
	s.commits++
	return nil
}

func (s *MemoryStore) GetNode(ctx context.Context, id models.NodeID) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (s *MemoryStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(models.Node) bool { return true }), nil
}

func (s *MemoryStore) ListChildNodes(ctx context.Context, parent models.NodeID) ([]*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(n models.Node) bool {
		return !n.Parent.IsTopLevel() && n.Parent.ID() == parent
	}), nil
}

func (s *MemoryStore) ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := make([]models.LabelID, 0, len(s.labels[id]))
	for l := range s.labels[id] {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels, nil
}

func (s *MemoryStore) sorted(keep func(models.Node) bool) []*models.Node {
	nodes := make([]*models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if keep(n) {
			n := n
			nodes = append(nodes, &n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Change tracking

func (s *MemoryStore) ListChangesSince(ctx context.Context, since, until time.Time, limit int) ([]*models.ChangeTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ChangeTracking
	for _, c := range s.changes {
		if c.ChangedAt.Before(since) || !c.ChangedAt.Before(until) {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnprocessedChanges(ctx context.Context, limit int) ([]*models.ChangeTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ChangeTracking
	for _, c := range s.changes {
		if c.IsProcessed() {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkChangeProcessed(ctx context.Context, changeID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.change(changeID)
	if err != nil {
		return err
	}
	c.MarkProcessed(s.now())
	return nil
}

func (s *MemoryStore) MarkChangeError(ctx context.Context, changeID uint64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.change(changeID)
	if err != nil {
		return err
	}
	c.MarkError(errorMessage)
	return nil
}

func (s *MemoryStore) GetChangeStats(ctx context.Context) (*store.ChangeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &store.ChangeStats{TotalChanges: int64(len(s.changes))}
	for _, c := range s.changes {
		switch {
		case c.IsProcessed():
			stats.ProcessedChanges++
		case c.ErrorMessage != "":
			stats.FailedChanges++
		}
		if c.ProcessedAt == nil {
			stats.PendingChanges++
			if stats.OldestPendingTime == nil || c.ChangedAt.Before(*stats.OldestPendingTime) {
				t := c.ChangedAt
				stats.OldestPendingTime = &t
			}
		}
		if stats.LatestChangeTime == nil || c.ChangedAt.After(*stats.LatestChangeTime) {
			t := c.ChangedAt
			stats.LatestChangeTime = &t
		}
	}
	return stats, nil
}

func (s *MemoryStore) PurgeProcessedChanges(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.changes[:0]
	for _, c := range s.changes {
		if c.IsProcessed() && c.ProcessedAt.Before(before) {
			continue
		}
		kept = append(kept, c)
	}
	s.changes = kept
	return nil
}

func (s *MemoryStore) change(id uint64) (*models.ChangeTracking, error) {
	for _, c := range s.changes {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("change %d not found", id)
}

// memTx operates on a private copy of the store's data. The parent store's
// mutex is held for the transaction's lifetime.
type memTx struct {
	s       *MemoryStore
	nodes   map[models.NodeID]models.Node
	labels  map[models.NodeID]map[models.LabelID]struct{}
	changes []*models.ChangeTracking
	nextID  uint64
}

func (t *memTx) fail(op string, id models.NodeID) error {
	for _, f := range t.s.failures {
		if f.op == op && (f.id == "" || f.id == id) {
			return f.err
		}
	}
	return nil
}

func (t *memTx) record(op string, id models.NodeID, labels []models.LabelID, rows int64) {
	t.s.calls = append(t.s.calls, Call{
		Op:     op,
		NodeID: id,
		Labels: append([]models.LabelID(nil), labels...),
		Rows:   rows,
	})
}

func (t *memTx) track(entityType, entityID string, op models.ChangeOperation, payload any) {
	var p models.JSONMap
	if payload != nil {
		data, _ := json.Marshal(payload)
		_ = json.Unmarshal(data, &p)
	}
	t.nextID++
	t.changes = append(t.changes, &models.ChangeTracking{
		ID:         t.nextID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		ChangedAt:  t.s.now(),
		Payload:    p,
	})
}

func (t *memTx) NodeExists(ctx context.Context, id models.NodeID) (bool, error) {
	if err := t.fail(OpNodeExists, id); err != nil {
		t.record(OpNodeExists, id, nil, 0)
		return false, err
	}
	_, ok := t.nodes[id]
	t.record(OpNodeExists, id, nil, 0)
	return ok, nil
}

func (t *memTx) InsertNode(ctx context.Context, node *models.Node) (int64, error) {
	if err := t.fail(OpInsertNode, node.ID); err != nil {
		t.record(OpInsertNode, node.ID, nil, 0)
		return 0, err
	}
	if _, ok := t.nodes[node.ID]; ok {
		t.record(OpInsertNode, node.ID, nil, 0)
		return 0, fmt.Errorf("%w: node %s already exists", store.ErrConflict, node.ID)
	}
	stored := persisted(node)
	t.nodes[node.ID] = stored
	t.record(OpInsertNode, node.ID, nil, 1)
	t.track(models.EntityNode, node.ID.String(), models.ChangeOperationCreate, stored)
	return 1, nil
}

func (t *memTx) UpdateNode(ctx context.Context, node *models.Node) (int64, error) {
	if err := t.fail(OpUpdateNode, node.ID); err != nil {
		t.record(OpUpdateNode, node.ID, nil, 0)
		return 0, err
	}
	current, ok := t.nodes[node.ID]
	if !ok {
		t.record(OpUpdateNode, node.ID, nil, 0)
		return 0, nil
	}
	updated := persisted(node)
	updated.Parent = current.Parent
	t.nodes[node.ID] = updated
	t.record(OpUpdateNode, node.ID, nil, 1)
	t.track(models.EntityNode, node.ID.String(), models.ChangeOperationUpdate, updated)
	return 1, nil
}

func (t *memTx) DeleteNode(ctx context.Context, id models.NodeID) (int64, error) {
	if err := t.fail(OpDeleteNode, id); err != nil {
		t.record(OpDeleteNode, id, nil, 0)
		return 0, err
	}
	rows := t.remove(id)
	t.record(OpDeleteNode, id, nil, rows)
	return rows, nil
}

func (t *memTx) DeleteNodeTree(ctx context.Context, id models.NodeID) (int64, error) {
	if err := t.fail(OpDeleteNodeTree, id); err != nil {
		t.record(OpDeleteNodeTree, id, nil, 0)
		return 0, err
	}
	var victims []models.NodeID
	for childID, n := range t.nodes {
		if !n.Parent.IsTopLevel() && n.Parent.ID() == id {
			victims = append(victims, childID)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i] < victims[j] })
	victims = append(victims, id)

	var rows int64
	for _, v := range victims {
		rows += t.remove(v)
	}
	t.record(OpDeleteNodeTree, id, nil, rows)
	return rows, nil
}

func (t *memTx) remove(id models.NodeID) int64 {
	if _, ok := t.nodes[id]; !ok {
		return 0
	}
	delete(t.nodes, id)
	delete(t.labels, id)
	t.track(models.EntityNode, id.String(), models.ChangeOperationDelete, nil)
	return 1
}

func (t *memTx) DeleteNodeLabels(ctx context.Context, id models.NodeID, labels []models.LabelID) (int64, error) {
	if err := t.fail(OpDeleteNodeLabels, id); err != nil {
		t.record(OpDeleteNodeLabels, id, labels, 0)
		return 0, err
	}
	var rows int64
	set := t.labels[id]
	for _, l := range labels {
		if _, ok := set[l]; ok {
			delete(set, l)
			rows++
			t.track(models.EntityNodeLabel, models.NodeLabelEntityID(id, l), models.ChangeOperationDelete,
				models.NodeLabel{NodeID: id, LabelID: l})
		}
	}
	t.record(OpDeleteNodeLabels, id, labels, rows)
	return rows, nil
}

func (t *memTx) InsertNodeLabelIfAbsent(ctx context.Context, id models.NodeID, label models.LabelID) (int64, error) {
	if err := t.fail(OpInsertNodeLabelIfAbsent, id); err != nil {
		t.record(OpInsertNodeLabelIfAbsent, id, []models.LabelID{label}, 0)
		return 0, err
	}
	set := t.labels[id]
	if set == nil {
		set = make(map[models.LabelID]struct{})
		t.labels[id] = set
	}
	if _, ok := set[label]; ok {
		t.record(OpInsertNodeLabelIfAbsent, id, []models.LabelID{label}, 0)
		return 0, nil
	}
	set[label] = struct{}{}
	t.record(OpInsertNodeLabelIfAbsent, id, []models.LabelID{label}, 1)
	t.track(models.EntityNodeLabel, models.NodeLabelEntityID(id, label), models.ChangeOperationCreate,
		models.NodeLabel{NodeID: id, LabelID: label})
	return 1, nil
}

// persisted returns the node as a database row would hold it: scalar fields
// and parent only.
func persisted(n *models.Node) models.Node {
	return models.Node{
		ID:         n.ID,
		Parent:     n.Parent,
		Kind:       n.Kind,
		Title:      n.Title,
		Text:       n.Text,
		Checked:    n.Checked,
		Pinned:     n.Pinned,
		Archived:   n.Archived,
		Version:    n.Version,
		Timestamps: n.Timestamps,
	}
}
