package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// nodeState is what the transaction knows about a node after its own writes.
type nodeState struct {
	exists bool
	parent models.ParentRef
}

// surrealTx buffers write statements until commit and answers reads from an
// overlay of its own writes on top of committed data.
type surrealTx struct {
	store *SurrealStore

	stmts []string
	vars  map[string]any

	nodes map[models.NodeID]nodeState
	// labels holds the complete label set of every node it has an entry for.
	labels map[models.NodeID]map[models.LabelID]struct{}
}

var _ store.Tx = (*surrealTx)(nil)

func newSurrealTx(s *SurrealStore) *surrealTx {
	return &surrealTx{
		store:  s,
		vars:   make(map[string]any),
		nodes:  make(map[models.NodeID]nodeState),
		labels: make(map[models.NodeID]map[models.LabelID]struct{}),
	}
}

// bind registers a query parameter and returns its placeholder.
func (t *surrealTx) bind(v any) string {
	name := fmt.Sprintf("p%d", len(t.vars))
	t.vars[name] = v
	return "$" + name
}

func (t *surrealTx) exec(format string, args ...any) {
	t.stmts = append(t.stmts, fmt.Sprintf(format, args...))
}

// script returns the transaction as one SurrealQL query.
func (t *surrealTx) script() string {
	var b strings.Builder
	b.WriteString("BEGIN TRANSACTION;\n")
	for _, stmt := range t.stmts {
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	b.WriteString("COMMIT TRANSACTION;")
	return b.String()
}

func (t *surrealTx) commit(ctx context.Context) error {
	if len(t.stmts) == 0 {
		return nil
	}
	res, err := surrealdb.Query[any](ctx, t.store.db, t.script(), t.vars)
	if err != nil {
		return err
	}
	if res != nil {
		for i, r := range *res {
			if r.Status != "OK" {
				return fmt.Errorf("statement %d returned status %s: %v", i, r.Status, r.Result)
			}
		}
	}
	return nil
}

func (t *surrealTx) NodeExists(ctx context.Context, id models.NodeID) (bool, error) {
	if st, ok := t.nodes[id]; ok {
		return st.exists, nil
	}
	ids, err := t.store.selectNodeIDs(ctx, "SELECT VALUE id FROM $node", map[string]any{"node": id.RecordID()})
	if err != nil {
		return false, fmt.Errorf("failed to look up node %s: %w", id, err)
	}
	return len(ids) > 0, nil
}

func (t *surrealTx) InsertNode(ctx context.Context, node *models.Node) (int64, error) {
	exists, err := t.NodeExists(ctx, node.ID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: node %s already exists", store.ErrConflict, node.ID)
	}

	t.exec("CREATE %s CONTENT %s", t.bind(node.ID.RecordID()), t.bind(nodeContent(node)))
	t.nodes[node.ID] = nodeState{exists: true, parent: node.Parent}
	// A node that did not exist has no labels: deletes remove them.
	t.labels[node.ID] = make(map[models.LabelID]struct{})
	return 1, nil
}

func (t *surrealTx) UpdateNode(ctx context.Context, node *models.Node) (int64, error) {
	exists, err := t.NodeExists(ctx, node.ID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	t.exec("UPDATE %s MERGE %s", t.bind(node.ID.RecordID()), t.bind(node.ScalarFields()))
	return 1, nil
}

func (t *surrealTx) DeleteNode(ctx context.Context, id models.NodeID) (int64, error) {
	exists, err := t.NodeExists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	rid := t.bind(id.RecordID())
	t.exec("DELETE node_labels WHERE node = %s", rid)
	t.exec("DELETE %s", rid)
	t.forget(id)
	return 1, nil
}

func (t *surrealTx) DeleteNodeTree(ctx context.Context, id models.NodeID) (int64, error) {
	victims, err := t.children(ctx, id)
	if err != nil {
		return 0, err
	}
	exists, err := t.NodeExists(ctx, id)
	if err != nil {
		return 0, err
	}
	if exists {
		victims = append(victims, id)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	rids := make([]surrealdb_models.RecordID, len(victims))
	for i, v := range victims {
		rids[i] = v.RecordID()
	}
	rid := t.bind(id.RecordID())
	t.exec("DELETE node_labels WHERE node IN %s", t.bind(rids))
	t.exec("DELETE nodes WHERE parent = %s OR id = %s", rid, rid)

	for _, v := range victims {
		t.forget(v)
	}
	return int64(len(victims)), nil
}

// children returns the current direct children of id: committed children
// not deleted by this transaction plus children it inserted.
func (t *surrealTx) children(ctx context.Context, id models.NodeID) ([]models.NodeID, error) {
	committed, err := t.store.selectNodeIDs(ctx, "SELECT VALUE id FROM nodes WHERE parent = $parent",
		map[string]any{"parent": id.RecordID()})
	if err != nil {
		return nil, fmt.Errorf("failed to collect children of node %s: %w", id, err)
	}

	seen := make(map[models.NodeID]struct{})
	var out []models.NodeID
	for _, c := range committed {
		if st, ok := t.nodes[c]; ok && !st.exists {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for c, st := range t.nodes {
		if _, dup := seen[c]; dup || !st.exists {
			continue
		}
		if !st.parent.IsTopLevel() && st.parent.ID() == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *surrealTx) forget(id models.NodeID) {
	t.nodes[id] = nodeState{exists: false}
	t.labels[id] = make(map[models.LabelID]struct{})
}

// labelSet returns the transaction's view of the node's labels, loading the
// committed set on first use.
func (t *surrealTx) labelSet(ctx context.Context, id models.NodeID) (map[models.LabelID]struct{}, error) {
	if set, ok := t.labels[id]; ok {
		return set, nil
	}
	committed, err := t.store.selectLabels(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels of node %s: %w", id, err)
	}
	set := make(map[models.LabelID]struct{}, len(committed))
	for _, l := range committed {
		set[l] = struct{}{}
	}
	t.labels[id] = set
	return set, nil
}

func (t *surrealTx) DeleteNodeLabels(ctx context.Context, id models.NodeID, labels []models.LabelID) (int64, error) {
	if len(labels) == 0 {
		return 0, nil
	}
	set, err := t.labelSet(ctx, id)
	if err != nil {
		return 0, err
	}

	var removed []int64
	for _, l := range labels {
		if _, ok := set[l]; ok {
			delete(set, l)
			removed = append(removed, int64(l))
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	t.exec("DELETE node_labels WHERE node = %s AND label IN %s", t.bind(id.RecordID()), t.bind(removed))
	return int64(len(removed)), nil
}

func (t *surrealTx) InsertNodeLabelIfAbsent(ctx context.Context, id models.NodeID, label models.LabelID) (int64, error) {
	set, err := t.labelSet(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, ok := set[label]; ok {
		return 0, nil
	}
	set[label] = struct{}{}

	content := map[string]any{
		"node":  id.RecordID(),
		"label": int64(label),
	}
	t.exec("UPSERT %s CONTENT %s", t.bind(labelRecordID(id, label)), t.bind(content))
	return 1, nil
}
