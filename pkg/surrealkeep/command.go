package surrealkeep

// Command represents a discrete application operation with its specific configuration.
//
// Commands are created by [Parse] and executed by [Main], which dispatches
// each one to the matching method on [App] (App.Migrate, App.Run, App.Sync).
// Options shared by every command live in [Config] instead.
type Command interface {
	// Name returns the command identifier, which matches the CLI sub-command.
	Name() string
}

// MigrateCommand creates or updates the database schema of the configured
// backend. With the cqrs backend both stores are migrated.
//
// It is safe to run repeatedly: the PostgreSQL store uses GORM AutoMigrate
// and the SurrealDB store only issues DEFINE ... IF NOT EXISTS statements.
//
// Example usage:
//
//	surrealkeep migrate
//	surrealkeep -backend cqrs migrate
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

// RunCommand starts the HTTP server.
//
// The server accepts change request batches, serves the stored nodes and
// exposes the administrative endpoints used while migrating between
// backends. See [App.Run] for the routes.
//
// Example usage:
//
//	./bin/surrealkeep run
//	./bin/surrealkeep -backend surrealdb run
//	./bin/surrealkeep -backend cqrs -mode switching run
//	./bin/surrealkeep -read-only run
type RunCommand struct{}

func (c *RunCommand) Name() string {
	return "run"
}

// SyncCommand performs a catch-up synchronization between the two stores of
// the cqrs backend.
//
// # Synchronization Strategy
//
// Forward sync (PostgreSQL to SurrealDB) replays the primary's change
// tracking rows by default. Every insert, update and delete the reconciler
// made, label associations included, is applied to the secondary in order
// and marked processed. The timestamp strategy copies nodes whose client
// update timestamp falls in the window instead; it cannot see deletions.
//
// Reverse sync (SurrealDB to PostgreSQL) is always timestamp based since the
// SurrealDB store keeps no change log.
//
// # Time Window
//
//   - Since: inclusive start, 24 hours ago when empty
//   - Until: exclusive end, now when empty
//
// Example usage:
//
//	surrealkeep -backend cqrs sync
//	surrealkeep -backend cqrs -sync-since 2024-01-01T00:00:00Z sync
//	surrealkeep -backend cqrs -sync-strategy timestamp sync
//	surrealkeep -backend cqrs -sync-direction reverse sync
type SyncCommand struct {
	// Direction is "forward" (primary to secondary) or "reverse".
	Direction string

	// Strategy is "change_tracking" or "timestamp". Ignored for reverse sync.
	Strategy string

	// Since and Until bound the sync window in RFC3339. Either may be empty.
	Since string
	Until string
}

func (c *SyncCommand) Name() string {
	return "sync"
}
