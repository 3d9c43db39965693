package surrealkeep

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs"
)

// Sync brings one store of the cqrs backend up to date with the other.
//
// Forward sync uses cmd.Strategy: change tracking replays every change the
// primary recorded in [since, until), the timestamp strategy copies nodes
// whose update timestamp falls in the window. Reverse sync is always
// timestamp based.
//
// Returns an error when the backend is not cqrs or the application was
// started read-only.
func (a *App) Sync(ctx context.Context, cmd *SyncCommand, since, until time.Time) error {
	if a.cqrs == nil {
		return fmt.Errorf("sync requires the cqrs backend, have %s", a.config.Backend)
	}
	if a.IsReadOnly() {
		return fmt.Errorf("sync cannot run in read-only mode as it needs write access to databases")
	}

	switch cmd.Direction {
	case "forward":
		if cmd.Strategy != "" {
			a.cqrs.SetSyncStrategy(cqrs.SyncStrategy(cmd.Strategy))
		}
		a.log.Info().Str("strategy", string(a.cqrs.GetSyncStrategy())).
			Time("since", since).Time("until", until).
			Msg("Performing forward sync (PostgreSQL -> SurrealDB)")
		if err := a.cqrs.SyncWithStrategy(ctx, since, until); err != nil {
			return fmt.Errorf("forward sync failed: %w", err)
		}
		if stats, err := a.cqrs.GetSyncStats(ctx); err == nil {
			a.log.Info().Int64("pending", stats.PendingChanges).Int64("failed", stats.FailedChanges).
				Msg("Forward sync completed")
		} else {
			a.log.Info().Msg("Forward sync completed")
		}

	case "reverse":
		a.log.Info().Time("since", since).Time("until", until).
			Msg("Performing reverse sync (SurrealDB -> PostgreSQL)")
		if err := a.cqrs.ReverseSyncMissedUpdates(ctx, since, until); err != nil {
			return fmt.Errorf("reverse sync failed: %w", err)
		}
		a.log.Info().Msg("Reverse sync completed")

	default:
		return fmt.Errorf("invalid sync direction: %s (must be 'forward' or 'reverse')", cmd.Direction)
	}

	return nil
}
