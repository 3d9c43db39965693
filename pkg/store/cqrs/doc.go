// Package cqrs provides a CQRS (Command Query Responsibility Segregation) store for moving surrealkeep between database backends without downtime.
//
// [CQRSStore] holds a primary and a secondary [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Store]. Change
// batches are applied to exactly one of them per mode and reads are served by
// one of them per mode. The other store catches up through background
// synchronization, never through dual writes.
//
// # Migration Modes
//
//  1. Single Mode ([ModeSingle]): batches and reads use the primary. Background
//     sync may run to prepare the secondary.
//
//  2. Read-Only Mode ([ModeReadOnly]): new batches are rejected with
//     [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.ErrReadOnly] while the final catch-up sync runs.
//     Reads continue from the primary.
//
//  3. Switching Mode ([ModeSwitching]): reads come from the secondary while
//     batches still go to the primary. Rolling back is switching back to
//     ModeSingle.
//
//  4. Reversed Mode ([ModeReversed]): batches and reads use the secondary.
//
// The usual sequence is single with continuous sync, read_only for the final
// sync, switching to validate the secondary under read traffic, then
// [CQRSStore.SwapStores] and back to single.
//
// # Synchronization Strategies
//
// Change Tracking ([SyncStrategyChangeTracking]):
// The PostgreSQL store records every primitive of a committed batch in the
// change_tracking table, inside the batch transaction. The sync replays those
// rows onto the secondary in commit order through the same primitives and
// marks each row processed or failed. Deletes and label changes are replayed
// exactly.
//
// Timestamp-Based ([SyncStrategyTimestamp]):
// Copies nodes whose client-supplied update timestamp falls inside the
// window, with their full label set. It works with any source store but
// cannot see deletions.
//
// Both strategies are idempotent, so a window can be synchronized twice.
//
// # Usage Example
//
//	primary, _ := postgres.NewPostgresStore(postgresDSN)
//	secondary, _ := surrealdb.NewSurrealStore(ctx, surrealURL, ns, db, user, pass)
//
//	cqrsStore := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle)
//	defer cqrsStore.Close()
//
//	cqrsStore.StartContinuousSync(ctx, 30*time.Second)
//
//	// Final switchover
//	cqrsStore.SetMode(cqrs.ModeReadOnly)
//	cqrsStore.SyncWithStrategy(ctx, lastSync, time.Now())
//	cqrsStore.SetMode(cqrs.ModeSwitching)
//
//	// After validation
//	cqrsStore.SwapStores()
//	cqrsStore.SetMode(cqrs.ModeSingle)
package cqrs
