// Package models defines the domain entities of the surrealkeep note service.
//
// # Domain Model
//
// Clients keep notes and checklists offline and push their edits as batches.
// Every entity a client edits is a [Node]:
//
//   - [KindNote] and [KindList] are top-level containers.
//   - [KindListItem] lives directly under a container.
//   - [KindBlob] is an attachment. It may appear in a batch but the server
//     cannot create one.
//
// The hierarchy is exactly two levels deep. A node's [ParentRef] is either
// top-level or points at a top-level node. The zero ParentRef is top-level,
// which keeps the "root" string that clients send out of the rest of the
// code base: it is translated at the JSON boundary and stored as NULL.
//
// A [ChangeRequest] carries client assertions per node, not commands. The
// Deleted and Trashed flags and the [Label] list say what the client believes
// the state should be. The reconciler decides whether that means an insert,
// an update or a delete.
//
// Labels are attached through [NodeLabel] rows. Only the association is
// stored here; label names and colours belong to another service.
//
// # Typed IDs
//
// [NodeID] is client generated and therefore a string rather than a UUID.
// Like the other IDs in the SurrealDB examples it knows its table: it
// marshals to a SurrealDB RecordID (CBOR tag 8) and implements
// driver.Valuer and sql.Scanner for PostgreSQL. [ParentRef] does the same,
// encoding top-level as NULL in both databases.
//
// # Change Tracking
//
// [ChangeTracking] rows are written by stores that support them in the same
// transaction as the change itself and are consumed by the CQRS sync to
// replay committed batches onto a secondary store.
package models
