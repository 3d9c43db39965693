package surrealkeep

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

// Main is the entry point of the surrealkeep application. It loads a .env
// file from the working directory when one exists, parses args and runs the
// selected command until it finishes or ctx is cancelled.
//
// Tests call it directly instead of building the binary.
//
// # Environment Variables
//
//	POSTGRES_DSN     - PostgreSQL connection string (default: built from -postgres-port)
//	SURREALDB_URL    - SurrealDB WebSocket URL (default: ws://localhost:8000/rpc)
//	SURREALDB_NS     - SurrealDB namespace (default: surrealkeep)
//	SURREALDB_DB     - SurrealDB database (default: surrealkeep)
//	SURREALDB_USER   - SurrealDB username (default: root)
//	SURREALDB_PASS   - SurrealDB password (default: root)
//	REDIS_URL        - Redis URL of the batch audit log (default: disabled)
//	AUDIT_TTL        - How long batch outcomes are kept (default: 24h)
//
// Variables already set in the environment win over the .env file.
//
// # Migration Strategy
//
//  1. Run with -backend postgres, or -backend cqrs -mode single. Batches go
//     to PostgreSQL and every write lands in its change tracking table.
//  2. Run "sync" repeatedly to bring SurrealDB up to date.
//  3. Switch to -mode read_only, run a last sync, then -mode switching to
//     serve reads from SurrealDB.
//  4. Use -mode reversed to apply batches to SurrealDB, and finally
//     -backend surrealdb once PostgreSQL can be decommissioned.
func Main(ctx context.Context, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *SyncCommand:
		since, err := ParseTime(c.Since, time.Now().Add(-24*time.Hour))
		if err != nil {
			return fmt.Errorf("invalid since time: %w", err)
		}
		until, err := ParseTime(c.Until, time.Now())
		if err != nil {
			return fmt.Errorf("invalid until time: %w", err)
		}

		if err := app.Sync(ctx, c, since, until); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}
