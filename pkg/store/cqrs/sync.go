package cqrs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// SyncWithStrategy performs synchronization using the configured strategy
func (c *CQRSStore) SyncWithStrategy(ctx context.Context, since, until time.Time) error {
	c.mu.RLock()
	strategy := c.syncStrategy
	c.mu.RUnlock()

	switch strategy {
	case SyncStrategyTimestamp:
		return c.SyncMissedUpdates(ctx, since, until)
	case SyncStrategyChangeTracking:
		return c.SyncFromChangeTracking(ctx, since, until)
	default:
		return fmt.Errorf("unknown sync strategy: %s", strategy)
	}
}

// SyncFromChangeTracking replays the primary's change tracking rows recorded
// in [since, until) onto the secondary store, in commit order.
//
// Each change is applied in its own secondary transaction and marked
// processed or failed on the primary. A failed change does not stop the
// sync; it stays pending and is retried by the next run. Replays are
// idempotent, so running the same window twice is harmless.
func (c *CQRSStore) SyncFromChangeTracking(ctx context.Context, since, until time.Time) error {
	c.mu.RLock()
	primary, secondary := c.primary, c.secondary
	c.mu.RUnlock()

	tracker, ok := primary.(store.ChangeTracker)
	if !ok {
		c.log.Warn().Msg("Primary store has no change tracking, falling back to timestamp sync")
		return c.SyncMissedUpdates(ctx, since, until)
	}

	changes, err := tracker.ListChangesSince(ctx, since, until, 0)
	if err != nil {
		return fmt.Errorf("failed to list changes: %w", err)
	}

	var applied, failed int
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if change.IsProcessed() {
			continue
		}

		err := secondary.WithinTx(ctx, func(tx store.Tx) error {
			return applyChange(ctx, tx, change)
		})
		if err != nil {
			failed++
			c.log.Warn().Err(err).Uint64("change_id", change.ID).Str("entity", change.EntityType).
				Str("entity_id", change.EntityID).Msg("Failed to replay change")
			if markErr := tracker.MarkChangeError(ctx, change.ID, err.Error()); markErr != nil {
				return fmt.Errorf("failed to mark change %d as failed: %w", change.ID, markErr)
			}
			continue
		}

		applied++
		if err := tracker.MarkChangeProcessed(ctx, change.ID); err != nil {
			return fmt.Errorf("failed to mark change %d as processed: %w", change.ID, err)
		}
	}

	c.log.Info().Int("applied", applied).Int("failed", failed).
		Time("since", since).Time("until", until).Msg("Change tracking sync finished")
	return nil
}

// applyChange replays a single change tracking row through the same
// primitives the reconciler uses.
func applyChange(ctx context.Context, tx store.Tx, change *models.ChangeTracking) error {
	switch change.EntityType {
	case models.EntityNode:
		return applyNodeChange(ctx, tx, change)
	case models.EntityNodeLabel:
		return applyNodeLabelChange(ctx, tx, change)
	default:
		return fmt.Errorf("unknown entity type: %s", change.EntityType)
	}
}

func applyNodeChange(ctx context.Context, tx store.Tx, change *models.ChangeTracking) error {
	switch change.Operation {
	case models.ChangeOperationCreate, models.ChangeOperationUpdate:
		var node models.Node
		if err := mapToStruct(change.Payload, &node); err != nil {
			return fmt.Errorf("failed to unmarshal node: %w", err)
		}
		return upsertNode(ctx, tx, &node)

	case models.ChangeOperationDelete:
		id, err := models.ParseNodeID(change.EntityID)
		if err != nil {
			return fmt.Errorf("failed to parse node ID: %w", err)
		}
		_, err = tx.DeleteNode(ctx, id)
		return err

	default:
		return fmt.Errorf("unknown change operation: %s", change.Operation)
	}
}

func applyNodeLabelChange(ctx context.Context, tx store.Tx, change *models.ChangeTracking) error {
	node, label, err := models.ParseNodeLabelEntityID(change.EntityID)
	if err != nil {
		return err
	}

	switch change.Operation {
	case models.ChangeOperationCreate:
		_, err = tx.InsertNodeLabelIfAbsent(ctx, node, label)
	case models.ChangeOperationDelete:
		_, err = tx.DeleteNodeLabels(ctx, node, []models.LabelID{label})
	default:
		err = fmt.Errorf("unknown change operation: %s", change.Operation)
	}
	return err
}

// upsertNode inserts the node or overwrites its scalar fields.
func upsertNode(ctx context.Context, tx store.Tx, node *models.Node) error {
	exists, err := tx.NodeExists(ctx, node.ID)
	if err != nil {
		return err
	}
	if exists {
		_, err = tx.UpdateNode(ctx, node)
	} else {
		_, err = tx.InsertNode(ctx, node)
	}
	return err
}

// mapToStruct converts a change payload back into the entity it was
// recorded from. Payloads are written with encoding/json, so the inverse is
// a JSON round trip.
func mapToStruct(data models.JSONMap, target interface{}) error {
	if data == nil {
		return fmt.Errorf("change has no payload")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// GetSyncStats returns statistics about pending synchronization
func (c *CQRSStore) GetSyncStats(ctx context.Context) (*store.ChangeStats, error) {
	c.mu.RLock()
	primary := c.primary
	c.mu.RUnlock()

	if tracker, ok := primary.(store.ChangeTracker); ok {
		return tracker.GetChangeStats(ctx)
	}

	return nil, fmt.Errorf("sync stats only available with change tracking strategy")
}

// StartContinuousSync starts a background process that continuously syncs
// changes until ctx is cancelled.
func (c *CQRSStore) StartContinuousSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastSync := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if err := c.SyncWithStrategy(ctx, lastSync, now); err != nil {
					c.log.Error().Err(err).Msg("Continuous sync error")
				}
				lastSync = now
			}
		}
	}()
}
