// Package surrealkeep wires the note sync server together: configuration,
// storage backend, batch audit log and the HTTP API in front of the change
// reconciler.
//
// Clients edit notes and checklists offline and push their edits as change
// requests. Each request is applied by [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/reconcile.Service]
// in one transaction on the configured backend:
//
//   - postgres: GORM over PostgreSQL, with change tracking
//   - surrealdb: native SurrealQL over the SurrealDB Go SDK
//   - cqrs: both, with one store serving batches and the other kept in sync,
//     for a zero-downtime move from PostgreSQL to SurrealDB
//
// # Getting Started
//
// For the command line, see [Main]. For the API routes, see [App.Handler].
//
// # Prerequisites
//
//   - Go 1.23+
//   - PostgreSQL and/or SurrealDB, depending on the backend
//   - Redis, optionally, for the batch audit log
//
// # Basic Usage
//
//	# Create the schema, then serve on PostgreSQL
//	./bin/surrealkeep migrate
//	./bin/surrealkeep run
//
//	# Serve on SurrealDB only
//	./bin/surrealkeep -backend surrealdb run
//
//	# Migrate with both stores
//	./bin/surrealkeep -backend cqrs migrate
//	./bin/surrealkeep -backend cqrs -mode single -sync-interval 30s run
//	./bin/surrealkeep -backend cqrs sync
//
//	# Keep batch outcomes for an hour
//	REDIS_URL=redis://localhost:6379/0 AUDIT_TTL=1h ./bin/surrealkeep run
package surrealkeep
