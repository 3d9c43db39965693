package store

import (
	"context"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

// ChangeTracker is implemented by stores that record every primitive of a
// committed batch in a change tracking table. The CQRS sync reads these rows
// to replay batches onto a secondary store.
type ChangeTracker interface {
	// ListChangesSince returns changes with ChangedAt in [since, until),
	// ordered by ID so they replay in commit order. A limit of zero means no
	// limit.
	ListChangesSince(ctx context.Context, since, until time.Time, limit int) ([]*models.ChangeTracking, error)

	// ListUnprocessedChanges returns changes that haven't been synchronized
	// yet, including ones that previously failed.
	ListUnprocessedChanges(ctx context.Context, limit int) ([]*models.ChangeTracking, error)

	// MarkChangeProcessed marks a change as successfully synchronized.
	MarkChangeProcessed(ctx context.Context, changeID uint64) error

	// MarkChangeError marks a change as failed with an error message.
	// The retry count is incremented for failure tracking.
	MarkChangeError(ctx context.Context, changeID uint64, errorMessage string) error

	// GetChangeStats returns statistics about pending changes.
	GetChangeStats(ctx context.Context) (*ChangeStats, error)

	// PurgeProcessedChanges removes processed changes older than before.
	PurgeProcessedChanges(ctx context.Context, before time.Time) error
}

// ChangeStats provides statistics about the change tracking table
type ChangeStats struct {
	TotalChanges      int64      `json:"total_changes"`
	ProcessedChanges  int64      `json:"processed_changes"`
	PendingChanges    int64      `json:"pending_changes"`
	FailedChanges     int64      `json:"failed_changes"`
	OldestPendingTime *time.Time `json:"oldest_pending_time,omitempty"`
	LatestChangeTime  *time.Time `json:"latest_change_time,omitempty"`
}
