// Package store provides the persistence layer abstraction for surrealkeep.
//
// The reconciler never talks to a database directly. It receives a [Tx], a
// small set of persistence primitives bound to one open transaction, and
// every primitive it calls during a batch runs inside that transaction.
// [Store.WithinTx] owns the transaction: it commits when the callback returns
// nil and rolls back when it returns an error, so a batch is applied entirely
// or not at all.
//
// # Implementations
//
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/postgres.PostgresStore]: GORM over PostgreSQL.
//     Each primitive is a SQL statement inside a database transaction and is
//     recorded in the change tracking table.
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/surrealdb.SurrealStore]: native SurrealQL.
//     SurrealDB transactions must be composed within a single query, so the
//     transaction buffers statements and sends them as one
//     BEGIN/COMMIT query when the callback succeeds.
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs.CQRSStore]: routes transactions and reads
//     between two stores during a migration.
//
// [ReadOnlyStore] wraps any of them and rejects new transactions while the
// application is in read-only mode.
//
// # Concurrency
//
// Batches are not coordinated with each other. Two batches touching the same
// node both apply and the one that commits last wins; the node's version
// field is carried but never compared.
package store

import (
	"context"
	"errors"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

var (
	// ErrReadOnly is returned when a write is attempted in read-only mode.
	ErrReadOnly = errors.New("operation denied: application is in read-only mode")

	// ErrConflict is returned when a write violates a uniqueness or
	// referential constraint.
	ErrConflict = errors.New("constraint violation")
)

// Tx is the set of persistence primitives available to the reconciler
// while a batch is being applied. Write methods return the number of rows
// they affected.
//
// A Tx is only valid inside the [Store.WithinTx] callback that produced it
// and must not be used concurrently.
type Tx interface {
	// NodeExists reports whether a node with the given ID is stored.
	// Writes made earlier in the same transaction are visible.
	NodeExists(ctx context.Context, id models.NodeID) (bool, error)

	// InsertNode creates the node row with all scalar fields and the parent
	// reference.
	InsertNode(ctx context.Context, node *models.Node) (int64, error)

	// UpdateNode overwrites every scalar field of the stored node. The
	// parent reference is left unchanged.
	UpdateNode(ctx context.Context, node *models.Node) (int64, error)

	// DeleteNode removes the single node row.
	DeleteNode(ctx context.Context, id models.NodeID) (int64, error)

	// DeleteNodeTree removes the node and every node whose parent it is, in
	// one set-based statement. A childless node still removes itself.
	DeleteNodeTree(ctx context.Context, id models.NodeID) (int64, error)

	// DeleteNodeLabels removes the associations between the node and each of
	// the given labels. Labels that are not attached are ignored.
	DeleteNodeLabels(ctx context.Context, id models.NodeID, labels []models.LabelID) (int64, error)

	// InsertNodeLabelIfAbsent attaches the label to the node unless it is
	// already attached. It returns 0 when the association existed.
	InsertNodeLabelIfAbsent(ctx context.Context, id models.NodeID, label models.LabelID) (int64, error)
}

// Store is the complete persistence interface used by the application.
type Store interface {
	// Migrate creates or updates the schema. It is idempotent.
	Migrate(ctx context.Context) error

	// Close releases database connections. The store is unusable afterwards.
	Close() error

	// WithinTx runs fn inside one transaction. The transaction commits if fn
	// returns nil and rolls back otherwise; fn's error is returned as is,
	// wrapped only when the commit itself fails. Transactions do not nest.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetNode returns the stored node, or nil without error if it does not
	// exist. Transient fields are left at their zero values.
	GetNode(ctx context.Context, id models.NodeID) (*models.Node, error)

	// ListNodes returns every stored node ordered by ID.
	ListNodes(ctx context.Context) ([]*models.Node, error)

	// ListChildNodes returns the direct children of the node ordered by ID.
	ListChildNodes(ctx context.Context, parent models.NodeID) ([]*models.Node, error)

	// ListNodeLabels returns the labels attached to the node in ascending
	// order.
	ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error)
}
