package surrealkeep

import (
	"context"
	"fmt"
)

// Migrate creates or updates the schema of the configured stores. With the
// cqrs backend both stores are migrated, primary first.
//
// It refuses to run in read-only mode.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Str("backend", a.config.Backend).Msg("Running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("Migrations completed successfully")
	return nil
}
