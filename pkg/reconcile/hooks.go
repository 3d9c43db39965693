package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// TrashHook runs when an existing top-level node arrives trashed. It is the
// extension point for whatever trashing should do to the node's children and
// runs inside the batch transaction.
type TrashHook interface {
	NodeTrashed(ctx context.Context, tx store.Tx, node *models.Node) error
}

// AttachmentInserter creates attachment nodes. Attachments have no storage
// yet, so the default implementation refuses.
type AttachmentInserter interface {
	InsertAttachment(ctx context.Context, tx store.Tx, node *models.Node) (int64, error)
}

// TrashHookFunc adapts a function to TrashHook.
type TrashHookFunc func(ctx context.Context, tx store.Tx, node *models.Node) error

func (f TrashHookFunc) NodeTrashed(ctx context.Context, tx store.Tx, node *models.Node) error {
	return f(ctx, tx, node)
}

// logTrashHook records that a node was trashed and changes nothing.
type logTrashHook struct {
	log zerolog.Logger
}

func (h logTrashHook) NodeTrashed(ctx context.Context, tx store.Tx, node *models.Node) error {
	h.log.Debug().Str("node_id", node.ID.String()).Msg("Node trashed, children left unchanged")
	return nil
}

type unsupportedAttachments struct {
	log zerolog.Logger
}

func (u unsupportedAttachments) InsertAttachment(ctx context.Context, tx store.Tx, node *models.Node) (int64, error) {
	u.log.Warn().Str("node_id", node.ID.String()).Msg("Attachment insert requested but not supported")
	return 0, fmt.Errorf("insert attachment node %s: %w", node.ID, ErrUnsupportedOperation)
}
