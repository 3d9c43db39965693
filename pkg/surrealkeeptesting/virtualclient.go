package surrealkeeptesting

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/client"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

// VirtualClient simulates an offline note-taking client.
//
// Edits are made against a local copy of the client's notes and queued. Push
// sends everything queued as one change request, the way a real client syncs
// after being offline. Once the server commits the batch the local copy
// becomes the expected server state, which VerifyAllData compares against what
// the server actually stores.
//
// Behaviour is deterministic for a given Index: the random number generator is
// seeded with it, even indices create more than they delete and odd indices
// delete more. Node IDs carry a per-instance prefix so several runs against
// the same database do not collide.
type VirtualClient struct {
	Index  int // Virtual client index (0, 1, 2...)
	Client *client.Client
	RNG    *rand.Rand
	Author models.User

	// Outcomes of every batch the server committed, oldest first.
	Outcomes []*models.BatchOutcome

	prefix  string
	seq     int
	pending []models.Node

	local     state
	confirmed state

	mu sync.Mutex
}

type state struct {
	nodes   map[models.NodeID]models.Node
	labels  map[models.NodeID]map[models.LabelID]struct{}
	deleted map[models.NodeID]struct{}
}

func newState() state {
	return state{
		nodes:   make(map[models.NodeID]models.Node),
		labels:  make(map[models.NodeID]map[models.LabelID]struct{}),
		deleted: make(map[models.NodeID]struct{}),
	}
}

func (s state) clone() state {
	c := newState()
	for id, n := range s.nodes {
		c.nodes[id] = n
	}
	for id, set := range s.labels {
		c.labels[id] = make(map[models.LabelID]struct{}, len(set))
		for l := range set {
			c.labels[id][l] = struct{}{}
		}
	}
	for id := range s.deleted {
		c.deleted[id] = struct{}{}
	}
	return c
}

// NewVirtualClient creates a virtual client talking to the server at baseURL.
func NewVirtualClient(index int, baseURL string) *VirtualClient {
	rng := rand.New(rand.NewSource(int64(index)))

	return &VirtualClient{
		Index:  index,
		Client: client.NewClient(baseURL),
		RNG:    rng,
		Author: models.User{
			ID:    fmt.Sprintf("virtual-%d", index),
			Email: fmt.Sprintf("client%d@test.com", index),
			Name:  fmt.Sprintf("Virtual Client %d", index),
		},
		prefix:    uuid.NewString()[:8],
		local:     newState(),
		confirmed: newState(),
	}
}

func (vc *VirtualClient) nextID(kind string) models.NodeID {
	vc.seq++
	return models.NodeID(fmt.Sprintf("%s-%d-%s%d", vc.prefix, vc.Index, kind, vc.seq))
}

// queue stamps node and records it as a pending edit. The caller holds vc.mu.
func (vc *VirtualClient) queue(node models.Node) models.Node {
	now := time.Now().UTC()
	if node.Created.IsZero() {
		node.Created = now
	}
	node.Updated = now
	node.LastModifiedBy = &vc.Author
	vc.pending = append(vc.pending, node)
	return node
}

// CreateNote queues a new top-level note.
func (vc *VirtualClient) CreateNote(title, text string) models.NodeID {
	return vc.createTopLevel(models.KindNote, title, text)
}

// CreateList queues a new top-level checklist.
func (vc *VirtualClient) CreateList(title string) models.NodeID {
	return vc.createTopLevel(models.KindList, title, "")
}

func (vc *VirtualClient) createTopLevel(kind models.NodeKind, title, text string) models.NodeID {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	node := vc.queue(models.Node{ID: vc.nextID("n"), Kind: kind, Title: title, Text: text, CreatedBy: &vc.Author})
	vc.local.nodes[node.ID] = node
	return node.ID
}

// AddItem queues a new item on a list.
func (vc *VirtualClient) AddItem(list models.NodeID, title string) (models.NodeID, error) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if n, ok := vc.local.nodes[list]; !ok || !n.IsTopLevel() {
		return "", fmt.Errorf("virtual client %d: no list %s", vc.Index, list)
	}
	node := vc.queue(models.Node{ID: vc.nextID("i"), Kind: models.KindListItem, Parent: models.Under(list), Title: title, CreatedBy: &vc.Author})
	vc.local.nodes[node.ID] = node
	return node.ID, nil
}

// EditItem queues new content for a list item. Items are stored with every
// field the client sends.
func (vc *VirtualClient) EditItem(item models.NodeID, title string, checked bool) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	node, ok := vc.local.nodes[item]
	if !ok || node.IsTopLevel() {
		return fmt.Errorf("virtual client %d: no item %s", vc.Index, item)
	}
	node.Title = title
	node.Checked = checked
	node.Version++
	vc.local.nodes[item] = vc.queue(node)
	return nil
}

// Delete queues the deletion of a node. Deleting a top-level node removes its
// items as well.
func (vc *VirtualClient) Delete(id models.NodeID) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	node, ok := vc.local.nodes[id]
	if !ok {
		return fmt.Errorf("virtual client %d: no node %s", vc.Index, id)
	}
	node.Deleted = true
	_ = vc.queue(node)

	vc.forget(id)
	if node.IsTopLevel() {
		for childID, child := range vc.local.nodes {
			if child.Parent.ID() == id {
				vc.forget(childID)
			}
		}
	}
	return nil
}

func (vc *VirtualClient) forget(id models.NodeID) {
	delete(vc.local.nodes, id)
	delete(vc.local.labels, id)
	vc.local.deleted[id] = struct{}{}
}

// Trash queues a move of a top-level node to the trash. Trashing does not
// change what the server stores for the node.
func (vc *VirtualClient) Trash(id models.NodeID) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	node, ok := vc.local.nodes[id]
	if !ok || !node.IsTopLevel() {
		return fmt.Errorf("virtual client %d: no top-level node %s", vc.Index, id)
	}
	node.Trashed = true
	_ = vc.queue(node)
	return nil
}

// SetLabels queues label changes on a top-level node: attach are selected,
// detach are asserted deleted. A label in both ends up attached.
func (vc *VirtualClient) SetLabels(id models.NodeID, attach, detach []models.LabelID) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	node, ok := vc.local.nodes[id]
	if !ok || !node.IsTopLevel() {
		return fmt.Errorf("virtual client %d: no top-level node %s", vc.Index, id)
	}

	labels := make([]models.Label, 0, len(attach)+len(detach))
	for _, l := range detach {
		labels = append(labels, models.Label{ID: l, Deleted: true})
	}
	for _, l := range attach {
		labels = append(labels, models.Label{ID: l, Selected: true})
	}
	node.Labels = labels
	_ = vc.queue(node)

	set := vc.local.labels[id]
	if set == nil {
		set = make(map[models.LabelID]struct{})
		vc.local.labels[id] = set
	}
	for _, l := range detach {
		delete(set, l)
	}
	for _, l := range attach {
		set[l] = struct{}{}
	}
	return nil
}

// Pending returns the number of queued edits.
func (vc *VirtualClient) Pending() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.pending)
}

// Push sends every queued edit as one change request. On success the queue
// is cleared and the local state becomes the expected server state. On
// failure the queue is kept so the caller can retry or Discard it.
func (vc *VirtualClient) Push(ctx context.Context) (*models.BatchOutcome, error) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if len(vc.pending) == 0 {
		return nil, nil
	}

	req := &models.ChangeRequest{
		RequestID: uuid.NewString(),
		Nodes:     slices.Clone(vc.pending),
	}
	outcome, err := vc.Client.ApplyChanges(ctx, req)
	if err != nil {
		return outcome, fmt.Errorf("virtual client %d failed to push %d nodes: %w", vc.Index, len(req.Nodes), err)
	}

	vc.pending = nil
	vc.confirmed = vc.local.clone()
	vc.Outcomes = append(vc.Outcomes, outcome)
	return outcome, nil
}

// Discard drops the queued edits and rolls the local state back to the last
// pushed state.
func (vc *VirtualClient) Discard() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.pending = nil
	vc.local = vc.confirmed.clone()
}

// Nodes returns the IDs of the nodes the server is expected to hold for this
// client, sorted.
func (vc *VirtualClient) Nodes() []models.NodeID {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return sortedIDs(vc.confirmed.nodes)
}

func sortedIDs(nodes map[models.NodeID]models.Node) []models.NodeID {
	ids := make([]models.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// topLevel returns the IDs of the client's local top-level nodes of kind,
// sorted so random picks are reproducible.
func (vc *VirtualClient) topLevel(kind models.NodeKind) []models.NodeID {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	var ids []models.NodeID
	for _, id := range sortedIDs(vc.local.nodes) {
		if n := vc.local.nodes[id]; n.IsTopLevel() && n.Kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

func (vc *VirtualClient) items(list models.NodeID) []models.NodeID {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	var ids []models.NodeID
	for _, id := range sortedIDs(vc.local.nodes) {
		if vc.local.nodes[id].Parent.ID() == list {
			ids = append(ids, id)
		}
	}
	return ids
}

// VerifyAllData checks that the server holds exactly what this client pushed:
// every expected node with its fields, the labels of top-level nodes, and no
// node the client deleted.
func (vc *VirtualClient) VerifyAllData(ctx context.Context) error {
	vc.mu.Lock()
	expected := vc.confirmed.clone()
	vc.mu.Unlock()

	for _, id := range sortedIDs(expected.nodes) {
		want := expected.nodes[id]
		got, err := vc.Client.GetNode(ctx, id)
		if err != nil {
			return fmt.Errorf("virtual client %d failed to get node %s: %w", vc.Index, id, err)
		}
		if got.Kind != want.Kind || got.Parent != want.Parent || got.Title != want.Title ||
			got.Text != want.Text || got.Checked != want.Checked {
			return fmt.Errorf("virtual client %d node %s mismatch: expected %s %q checked=%t under %s, got %s %q checked=%t under %s",
				vc.Index, id, want.Kind, want.Title, want.Checked, want.Parent, got.Kind, got.Title, got.Checked, got.Parent)
		}

		if !want.IsTopLevel() {
			continue
		}
		labels, err := vc.Client.ListNodeLabels(ctx, id)
		if err != nil {
			return fmt.Errorf("virtual client %d failed to list labels of %s: %w", vc.Index, id, err)
		}
		wantLabels := make([]models.LabelID, 0, len(expected.labels[id]))
		for l := range expected.labels[id] {
			wantLabels = append(wantLabels, l)
		}
		slices.Sort(wantLabels)
		if !slices.Equal(labels, wantLabels) {
			return fmt.Errorf("virtual client %d labels of %s mismatch: expected %v, got %v", vc.Index, id, wantLabels, labels)
		}
	}

	for id := range expected.deleted {
		_, err := vc.Client.GetNode(ctx, id)
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return fmt.Errorf("virtual client %d: deleted node %s still exists (err=%v)", vc.Index, id, err)
		}
	}

	return nil
}

// RunScenario edits notes and lists offline and pushes them in several
// batches, then verifies the server state.
func (vc *VirtualClient) RunScenario(ctx context.Context) error {
	deleteBias := vc.Index%2 == 1

	numLists := vc.RNG.Intn(3) + 1
	for i := 0; i < numLists; i++ {
		list := vc.CreateList(fmt.Sprintf("List %d-%d", vc.Index, i))

		numItems := vc.RNG.Intn(5) + 1
		for j := 0; j < numItems; j++ {
			if _, err := vc.AddItem(list, fmt.Sprintf("Item %d-%d-%d", vc.Index, i, j)); err != nil {
				return err
			}
		}

		// Sometimes push a list together with its items, sometimes later
		if vc.RNG.Float32() < 0.5 {
			if _, err := vc.Push(ctx); err != nil {
				return err
			}
		}
	}

	if vc.RNG.Float32() < 0.7 {
		vc.CreateNote(fmt.Sprintf("Note %d", vc.Index), fmt.Sprintf("Written offline by client %d", vc.Index))
	}
	if _, err := vc.Push(ctx); err != nil {
		return err
	}

	for _, list := range vc.topLevel(models.KindList) {
		for _, item := range vc.items(list) {
			// Tick off about a third of the items
			if vc.RNG.Float32() < 0.35 {
				if err := vc.EditItem(item, fmt.Sprintf("%s (done)", item), true); err != nil {
					return err
				}
			}

			deleteChance := float32(0.05)
			if deleteBias {
				deleteChance = 0.2
			}
			if vc.RNG.Float32() < deleteChance {
				if err := vc.Delete(item); err != nil {
					return err
				}
			}
		}

		attach := []models.LabelID{models.LabelID(vc.RNG.Intn(5) + 1), models.LabelID(vc.RNG.Intn(5) + 1)}
		if err := vc.SetLabels(list, attach, nil); err != nil {
			return err
		}
	}
	if _, err := vc.Push(ctx); err != nil {
		return err
	}

	for _, list := range vc.topLevel(models.KindList) {
		if vc.RNG.Float32() < 0.4 {
			if err := vc.SetLabels(list, nil, []models.LabelID{models.LabelID(vc.RNG.Intn(5) + 1)}); err != nil {
				return err
			}
		}
		if vc.RNG.Float32() < 0.2 {
			if err := vc.Trash(list); err != nil {
				return err
			}
		}
	}

	// Odd clients sometimes delete a whole list, never the last one
	if lists := vc.topLevel(models.KindList); deleteBias && len(lists) > 1 && vc.RNG.Float32() < 0.5 {
		if err := vc.Delete(lists[vc.RNG.Intn(len(lists))]); err != nil {
			return err
		}
	}
	if _, err := vc.Push(ctx); err != nil {
		return err
	}

	return vc.VerifyAllData(ctx)
}
