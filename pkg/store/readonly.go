package store

import (
	"context"
	"fmt"
)

// ReadOnlyStore wraps a Store and refuses to open transactions while the
// application is in read-only mode.
//
// The read-only state is determined dynamically by the isReadOnly function,
// so the application can toggle it at runtime without recreating the store.
// It is used during the final catch-up sync of a migration, when no new
// batch may land on the primary store.
//
// Reads are passed through untouched. A batch that already holds a Tx when
// the mode flips is allowed to finish.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store Store, isReadOnly func() bool) *ReadOnlyStore {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

// checkReadOnly returns an error if the store is in read-only mode
func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

func (r *ReadOnlyStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.WithinTx(ctx, fn)
}

func (r *ReadOnlyStore) Migrate(ctx context.Context) error {
	if err := r.checkReadOnly(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return r.Store.Migrate(ctx)
}
