// Package pkg contains the sub-packages of the surrealkeep sync server.
//
// # Application Layer
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeep] - Configuration, commands and the HTTP API.
// Use this package when adding a command or an endpoint.
//
// # Domain Layer
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models] - Nodes, labels, change requests and typed IDs.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/reconcile] - The change reconciler and the label differ.
// Everything that decides between insert, update and delete lives here.
//
// # Infrastructure Layer
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store] - The [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Store]
// and [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Tx] interfaces and the read-only wrapper.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/postgres] - PostgreSQL with GORM, including change tracking.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/surrealdb] - SurrealDB with native SurrealQL.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs] - Routes batches and reads between two stores during a migration
// and keeps them in sync.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/audit] - Redis-backed record of batch outcomes.
//
// # Integration Layer
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/client] - HTTP client for the API.
//
// [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeeptesting] - In-memory store with failure injection
// and virtual offline clients.
//
// # Package Dependencies
//
//	surrealkeep → reconcile, store, store/*, audit, models
//	reconcile → store, models
//	store/postgres, store/surrealdb, store/cqrs → store, models
//	audit → models
//	client → store, models
//	surrealkeeptesting → client, store, models
package pkg
