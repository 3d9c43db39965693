package reconcile

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// LabelDiff is the result of reconciling one node's labels.
type LabelDiff struct {
	Removed int64
	Added   int64
}

// LabelDiffer turns a node's label assertions into association deletes and
// inserts.
type LabelDiffer struct {
	log zerolog.Logger
}

func NewLabelDiffer(log zerolog.Logger) *LabelDiffer {
	return &LabelDiffer{log: log}
}

// Diff partitions label assertions in a single scan. A deleted label goes to
// del whatever its selected flag; a selected label that is not deleted goes
// to add; anything else is ignored. Each set keeps the first-seen order
// without duplicates.
func Diff(labels []models.Label) (del, add []models.LabelID) {
	seenDel := make(map[models.LabelID]struct{})
	seenAdd := make(map[models.LabelID]struct{})
	for _, l := range labels {
		switch {
		case l.Deleted:
			if _, ok := seenDel[l.ID]; !ok {
				seenDel[l.ID] = struct{}{}
				del = append(del, l.ID)
			}
		case l.Selected:
			if _, ok := seenAdd[l.ID]; !ok {
				seenAdd[l.ID] = struct{}{}
				add = append(add, l.ID)
			}
		}
	}
	return del, add
}

// ReconcileLabels removes every label in the delete set with one call, then
// attaches every label in the add set that is not attached yet.
//
// Deletes run first. A label asserted deleted in one entry and selected in
// another therefore ends up attached.
func (d *LabelDiffer) ReconcileLabels(ctx context.Context, tx store.Tx, id models.NodeID, labels []models.Label) (LabelDiff, error) {
	var diff LabelDiff
	del, add := Diff(labels)

	if len(del) > 0 {
		rows, err := tx.DeleteNodeLabels(ctx, id, del)
		if err != nil {
			return diff, &PersistenceError{NodeID: id, Op: "delete labels of", Err: err}
		}
		diff.Removed = rows
	}

	for _, label := range add {
		rows, err := tx.InsertNodeLabelIfAbsent(ctx, id, label)
		if err != nil {
			return diff, &PersistenceError{NodeID: id, Op: "attach label " + label.String() + " to", Err: err}
		}
		diff.Added += rows
	}

	d.log.Debug().
		Str("node_id", id.String()).
		Int("delete_set", len(del)).
		Int("add_set", len(add)).
		Int64("removed", diff.Removed).
		Int64("added", diff.Added).
		Msg("Labels reconciled")
	return diff, nil
}
