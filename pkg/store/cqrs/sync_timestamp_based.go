package cqrs

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// SyncMissedUpdates performs forward timestamp-based catch-up synchronization
// from primary to secondary store.
//
// Every node whose updated timestamp falls in [since, until) is copied to the
// secondary together with its complete label set. The timestamps are the
// ones clients send, so a client with a skewed clock can place a node outside
// the window; the change tracking strategy does not have that problem.
//
// Deleted nodes leave nothing to copy, so this strategy never removes
// anything from the destination.
//
// Individual node failures are logged as warnings and do not stop the sync.
//
// Typical usage during CQRS migration:
//
//	// Catch up secondary store with primary changes from the last hour
//	since := time.Now().Add(-time.Hour)
//	until := time.Now()
//	err := cqrsStore.SyncMissedUpdates(ctx, since, until)
func (c *CQRSStore) SyncMissedUpdates(ctx context.Context, since, until time.Time) error {
	c.mu.RLock()
	from, to := c.primary, c.secondary
	c.mu.RUnlock()
	return c.syncMissedUpdates(ctx, from, to, since, until)
}

// ReverseSyncMissedUpdates performs the same synchronization from secondary to
// primary. It is used to bring the original store up to date before rolling a
// migration back.
func (c *CQRSStore) ReverseSyncMissedUpdates(ctx context.Context, since, until time.Time) error {
	c.mu.RLock()
	from, to := c.secondary, c.primary
	c.mu.RUnlock()
	return c.syncMissedUpdates(ctx, from, to, since, until)
}

func (c *CQRSStore) syncMissedUpdates(ctx context.Context, from, to store.Store, since, until time.Time) error {
	nodes, err := from.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}

	var copied, failed int
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if node.Updated.Before(since) || !node.Updated.Before(until) {
			continue
		}

		labels, err := from.ListNodeLabels(ctx, node.ID)
		if err != nil {
			return fmt.Errorf("failed to list labels of node %s: %w", node.ID, err)
		}

		current, err := to.ListNodeLabels(ctx, node.ID)
		if err != nil {
			return fmt.Errorf("failed to list destination labels of node %s: %w", node.ID, err)
		}

		if err := to.WithinTx(ctx, func(tx store.Tx) error {
			return copyNode(ctx, tx, node, labels, staleLabels(current, labels))
		}); err != nil {
			failed++
			c.log.Warn().Err(err).Str("node_id", node.ID.String()).Msg("Failed to sync node")
			continue
		}
		copied++
	}

	c.log.Info().Int("copied", copied).Int("failed", failed).
		Time("since", since).Time("until", until).Msg("Timestamp sync finished")
	return nil
}

// copyNode makes the destination's copy of node and its labels match the
// source. stale lists labels attached in the destination only.
func copyNode(ctx context.Context, tx store.Tx, node *models.Node, labels, stale []models.LabelID) error {
	exists, err := tx.NodeExists(ctx, node.ID)
	if err != nil {
		return err
	}
	if exists {
		_, err = tx.UpdateNode(ctx, node)
	} else {
		_, err = tx.InsertNode(ctx, node)
	}
	if err != nil {
		return err
	}

	if len(stale) > 0 {
		if _, err := tx.DeleteNodeLabels(ctx, node.ID, stale); err != nil {
			return err
		}
	}
	for _, l := range labels {
		if _, err := tx.InsertNodeLabelIfAbsent(ctx, node.ID, l); err != nil {
			return err
		}
	}
	return nil
}

// staleLabels returns the labels in have that are not in want.
func staleLabels(have, want []models.LabelID) []models.LabelID {
	keep := make(map[models.LabelID]struct{}, len(want))
	for _, l := range want {
		keep[l] = struct{}{}
	}
	var stale []models.LabelID
	for _, l := range have {
		if _, ok := keep[l]; !ok {
			stale = append(stale, l)
		}
	}
	return stale
}
