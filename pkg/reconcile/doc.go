// Package reconcile applies client change requests to a store.
//
// A change request is a batch of nodes, each carrying what the client
// believes the node should look like. [Reconciler.Apply] walks the batch in
// submission order and picks one action per node:
//
//   - the node is not stored: insert it. Attachments ([models.KindBlob]) go
//     through an [AttachmentInserter], and the default one fails with
//     [ErrUnsupportedOperation].
//   - the node is stored and marked deleted: delete it. A top-level node
//     takes its direct children with it in one statement.
//   - the node is stored and not deleted: update it. A child node gets all
//     its scalar columns overwritten. A top-level node only runs the
//     [TrashHook] when trashed and then reconciles its labels with a
//     [LabelDiffer]; its own columns are not written.
//
// The last rule means edits to a note's title or text are not persisted
// through this path. That is the established behaviour clients rely on and
// is kept as is until the product decision about it is made.
//
// Order matters: a list item may follow the list that introduced it in the
// same batch, so nodes are never applied concurrently.
//
// # Transactions
//
// The reconciler never opens or commits a transaction. It receives a
// [store.Tx] from its caller, and any error it returns must make the caller
// roll back. [Service] is that caller for the HTTP API: one
// [store.Store.WithinTx] per request.
//
// # Concurrency
//
// Nothing coordinates two batches touching the same node. The node's version
// is carried but never compared, so whichever batch commits last wins.
//
// # Errors
//
// A failed existence check is a [*LookupError]; a failed write is a
// [*PersistenceError]. Both unwrap to the store's error, so
// [store.ErrConflict] and friends remain visible through errors.Is.
package reconcile
