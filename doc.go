// Package surrealkeep is a sync server for an offline-first note-taking app,
// built to show a zero-downtime move from PostgreSQL to SurrealDB.
//
// Clients keep notes and checklists on the device and push their edits as
// change requests. The server reconciles every node of a request against what
// it has stored, inside one transaction, and keeps a label association per
// node. It can run on PostgreSQL (using GORM), on SurrealDB (using the
// SurrealDB Go SDK without an ORM) or on both at once while data is migrated.
//
// # Features
//
//   - Change Reconciliation: each node of a batch becomes an insert, an update
//     or a delete depending on what is stored, with cascading deletes for
//     top-level notes and lists
//   - Label Diffing: label assertions turn into the minimal set of association
//     deletes and idempotent inserts
//   - All-or-nothing Batches: a failed node rolls back the whole request
//   - Dual Database Support: the same [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Store]
//     interface over PostgreSQL and SurrealDB
//   - Zero-Downtime Migration: a CQRS store with change tracking, timestamp
//     catch-up sync and a brief read-only cutover
//   - Batch Audit Log: optional Redis record of every batch outcome
//
// # Architecture Overview
//
//   - Reconciliation: [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/reconcile]
//     holds the only non-trivial decision logic. It sees storage through a
//     handful of transaction primitives.
//   - Multi-Backend Support: [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/postgres]
//     and [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/surrealdb]
//     implement those primitives.
//   - CQRS Migration: [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs.CQRSStore]
//     routes batches and reads between the two stores.
//   - Command Pattern: [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeep.Command]
//     organizes the run, migrate and sync operations.
//
// # Migration Strategy
//
//   - Single-write pattern: a batch goes to one database, so it cannot half
//     succeed across two
//   - Background synchronization: the other database catches up from the
//     change tracking table
//   - Read-only switchover: a brief read-only period lets the final sync
//     finish against a store that no longer changes
//   - Reverse sync: PostgreSQL stays a rollback target after writes move to
//     SurrealDB
//
// See the end-to-end migration test in this directory for the full sequence.
//
// # Getting Started
//
// For command-line usage and configuration, see
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeep].
// For the package layout, see [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg].
//
// # API Integration
//
// The [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/client] package provides a Go HTTP client for the API.
// The [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeeptesting] package provides an
// in-memory store and virtual offline clients for tests.
package surrealkeep
