package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// Result describes what Apply did before it returned.
type Result struct {
	Counts models.BatchCounts
	// FailedNode is the node being applied when Apply failed.
	FailedNode models.NodeID
}

// Reconciler applies change requests node by node through a store.Tx.
type Reconciler struct {
	labels      *LabelDiffer
	trash       TrashHook
	attachments AttachmentInserter
	log         zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithTrashHook replaces the default hook, which only logs.
func WithTrashHook(h TrashHook) Option {
	return func(r *Reconciler) { r.trash = h }
}

// WithAttachmentInserter replaces the default inserter, which fails with
// ErrUnsupportedOperation.
func WithAttachmentInserter(a AttachmentInserter) Option {
	return func(r *Reconciler) { r.attachments = a }
}

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "reconciler").Logger()
	if r.trash == nil {
		r.trash = logTrashHook{log: r.log}
	}
	if r.attachments == nil {
		r.attachments = unsupportedAttachments{log: r.log}
	}
	r.labels = NewLabelDiffer(r.log)
	return r
}

// Apply reconciles every node of req in submission order using tx.
//
// The first error stops the batch and is returned; the caller's transaction
// is expected to roll back. Nodes are validated before any of them is looked
// up, so an invalid node fails the batch without touching the store.
func (r *Reconciler) Apply(ctx context.Context, tx store.Tx, req *models.ChangeRequest) (Result, error) {
	var res Result

	for i := range req.Nodes {
		node := &req.Nodes[i]
		if err := node.Validate(); err != nil {
			res.FailedNode = node.ID
			return res, fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
	}

	log := r.log.With().Str("request_id", req.RequestID).Logger()
	for i := range req.Nodes {
		node := &req.Nodes[i]
		counts, err := r.applyNode(ctx, tx, node, log)
		res.Counts.Add(counts)
		if err != nil {
			res.FailedNode = node.ID
			return res, err
		}
	}
	return res, nil
}

func (r *Reconciler) applyNode(ctx context.Context, tx store.Tx, node *models.Node, log zerolog.Logger) (models.BatchCounts, error) {
	exists, err := tx.NodeExists(ctx, node.ID)
	if err != nil {
		return models.BatchCounts{}, &LookupError{NodeID: node.ID, Err: err}
	}

	switch {
	case !exists:
		return r.insert(ctx, tx, node, log)
	case node.Deleted:
		return r.delete(ctx, tx, node, log)
	default:
		return r.update(ctx, tx, node, log)
	}
}

func (r *Reconciler) insert(ctx context.Context, tx store.Tx, node *models.Node, log zerolog.Logger) (models.BatchCounts, error) {
	var (
		rows int64
		err  error
	)
	switch node.Kind {
	case models.KindBlob:
		rows, err = r.attachments.InsertAttachment(ctx, tx, node)
		if err != nil {
			return models.BatchCounts{}, err
		}
	case models.KindNote, models.KindList, models.KindListItem:
		rows, err = tx.InsertNode(ctx, node)
		if err != nil {
			return models.BatchCounts{}, &PersistenceError{NodeID: node.ID, Op: "insert", Err: err}
		}
	default:
		return models.BatchCounts{}, fmt.Errorf("%w: node %s: unknown node type %q", ErrInvalidNode, node.ID, node.Kind)
	}

	log.Debug().Str("node_id", node.ID.String()).Str("node_type", string(node.Kind)).
		Int64("rows", rows).Msg("Node inserted")
	return models.BatchCounts{Inserted: rows}, nil
}

func (r *Reconciler) delete(ctx context.Context, tx store.Tx, node *models.Node, log zerolog.Logger) (models.BatchCounts, error) {
	if node.IsTopLevel() {
		rows, err := tx.DeleteNodeTree(ctx, node.ID)
		if err != nil {
			return models.BatchCounts{}, &PersistenceError{NodeID: node.ID, Op: "cascade delete", Err: err}
		}
		log.Debug().Str("node_id", node.ID.String()).Int64("rows", rows).Msg("Top-level node deleted with children")
		return models.BatchCounts{Deleted: rows}, nil
	}

	rows, err := tx.DeleteNode(ctx, node.ID)
	if err != nil {
		return models.BatchCounts{}, &PersistenceError{NodeID: node.ID, Op: "delete", Err: err}
	}
	log.Debug().Str("node_id", node.ID.String()).Int64("rows", rows).Msg("Node deleted")
	return models.BatchCounts{Deleted: rows}, nil
}

// update applies an existing node that was not deleted.
//
// For a top-level node only the trash hook and the labels are processed;
// the node's own columns are left as stored. Child nodes get every scalar
// column overwritten and no label processing.
func (r *Reconciler) update(ctx context.Context, tx store.Tx, node *models.Node, log zerolog.Logger) (models.BatchCounts, error) {
	if !node.IsTopLevel() {
		rows, err := tx.UpdateNode(ctx, node)
		if err != nil {
			return models.BatchCounts{}, &PersistenceError{NodeID: node.ID, Op: "update", Err: err}
		}
		log.Debug().Str("node_id", node.ID.String()).Int64("rows", rows).Msg("Node updated")
		return models.BatchCounts{Updated: rows}, nil
	}

	if node.Trashed {
		if err := r.trash.NodeTrashed(ctx, tx, node); err != nil {
			return models.BatchCounts{}, &PersistenceError{NodeID: node.ID, Op: "trash", Err: err}
		}
	}

	diff, err := r.labels.ReconcileLabels(ctx, tx, node.ID, node.Labels)
	if err != nil {
		return models.BatchCounts{LabelsRemoved: diff.Removed, LabelsAdded: diff.Added}, err
	}
	log.Debug().Str("node_id", node.ID.String()).Bool("trashed", node.Trashed).
		Msg("Top-level node reconciled, scalar fields left unchanged")
	return models.BatchCounts{LabelsRemoved: diff.Removed, LabelsAdded: diff.Added}, nil
}
