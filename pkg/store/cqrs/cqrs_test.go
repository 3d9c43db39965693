package cqrs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeeptesting"
)

func insert(t *testing.T, s store.Store, nodes ...*models.Node) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		for _, n := range nodes {
			if _, err := tx.InsertNode(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestRouting(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	secondary := surrealkeeptesting.NewMemoryStore()
	c := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle)

	insert(t, c, &models.Node{ID: "a", Kind: models.KindNote})
	assert.Equal(t, 1, primary.Commits())
	assert.Equal(t, 0, secondary.Commits())

	got, err := c.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got, "single mode reads the primary")

	require.NoError(t, c.SetMode(cqrs.ModeSwitching))
	got, err = c.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got, "switching mode reads the secondary")

	insert(t, c, &models.Node{ID: "b", Kind: models.KindNote})
	assert.Equal(t, 2, primary.Commits(), "switching mode still writes the primary")

	require.NoError(t, c.SetMode(cqrs.ModeReversed))
	insert(t, c, &models.Node{ID: "c", Kind: models.KindNote})
	assert.Equal(t, 1, secondary.Commits())
}

func TestReadOnlyMode(t *testing.T) {
	ctx := context.Background()
	c := cqrs.NewCQRSStore(surrealkeeptesting.NewMemoryStore(), surrealkeeptesting.NewMemoryStore(), cqrs.ModeReadOnly)

	err := c.WithinTx(ctx, func(tx store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrReadOnly)

	_, err = c.ListNodes(ctx)
	assert.NoError(t, err, "reads continue in read-only mode")

	assert.Error(t, c.SetMode(cqrs.ModeReversed))
	assert.NoError(t, c.SetMode(cqrs.ModeSwitching))
	assert.Equal(t, cqrs.ModeSwitching, c.GetMode())
}

func TestParseMigrationMode(t *testing.T) {
	m, err := cqrs.ParseMigrationMode("read_only")
	require.NoError(t, err)
	assert.Equal(t, cqrs.ModeReadOnly, m)

	_, err = cqrs.ParseMigrationMode("dual_write")
	assert.Error(t, err)
}

func TestSwapStores(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	secondary := surrealkeeptesting.NewMemoryStore()
	c := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle)

	c.SwapStores()
	insert(t, c, &models.Node{ID: "a", Kind: models.KindNote})
	assert.Equal(t, 1, secondary.Commits())

	got, err := secondary.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSyncFromChangeTracking(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	secondary := surrealkeeptesting.NewMemoryStore()
	c := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle)

	since := time.Now().Add(-time.Minute)

	require.NoError(t, c.WithinTx(ctx, func(tx store.Tx) error {
		for _, n := range []*models.Node{
			{ID: "list", Kind: models.KindList, Title: "groceries"},
			{ID: "milk", Kind: models.KindListItem, Parent: models.Under("list")},
			{ID: "eggs", Kind: models.KindListItem, Parent: models.Under("list")},
			{ID: "gone", Kind: models.KindNote},
		} {
			if _, err := tx.InsertNode(ctx, n); err != nil {
				return err
			}
		}
		if _, err := tx.InsertNodeLabelIfAbsent(ctx, "list", 1); err != nil {
			return err
		}
		_, err := tx.InsertNodeLabelIfAbsent(ctx, "list", 2)
		return err
	}))
	require.NoError(t, c.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.UpdateNode(ctx, &models.Node{ID: "milk", Kind: models.KindListItem, Checked: true}); err != nil {
			return err
		}
		if _, err := tx.DeleteNodeLabels(ctx, "list", []models.LabelID{2}); err != nil {
			return err
		}
		_, err := tx.DeleteNodeTree(ctx, "gone")
		return err
	}))

	require.NoError(t, c.SyncFromChangeTracking(ctx, since, time.Now().Add(time.Minute)))

	want, err := primary.ListNodes(ctx)
	require.NoError(t, err)
	got, err := secondary.ListNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	labels, err := secondary.ListNodeLabels(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, []models.LabelID{1}, labels)

	milk, err := secondary.GetNode(ctx, "milk")
	require.NoError(t, err)
	require.NotNil(t, milk)
	assert.True(t, milk.Checked)
	assert.Equal(t, models.NodeID("list"), milk.Parent.ID())

	stats, err := c.GetSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalChanges, stats.ProcessedChanges)
	assert.Zero(t, stats.FailedChanges)
}

func TestSyncFromChangeTrackingMarksFailures(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	secondary := surrealkeeptesting.NewMemoryStore()
	c := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle)

	insert(t, c,
		&models.Node{ID: "ok", Kind: models.KindNote},
		&models.Node{ID: "bad", Kind: models.KindNote},
	)
	secondary.FailOn(surrealkeeptesting.OpInsertNode, "bad", errors.New("secondary unavailable"))

	window := func() (time.Time, time.Time) { return time.Now().Add(-time.Minute), time.Now().Add(time.Minute) }
	since, until := window()
	require.NoError(t, c.SyncFromChangeTracking(ctx, since, until), "individual failures do not fail the sync")

	stats, err := c.GetSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ProcessedChanges)
	assert.Equal(t, int64(1), stats.FailedChanges)

	pending, err := primary.ListUnprocessedChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bad", pending[0].EntityID)
	assert.Equal(t, 1, pending[0].RetryCount)

	secondary.ClearFailures()
	since, until = window()
	require.NoError(t, c.SyncFromChangeTracking(ctx, since, until))

	got, err := secondary.GetNode(ctx, "bad")
	require.NoError(t, err)
	assert.NotNil(t, got, "failed change is retried on the next run")
}

func TestSyncMissedUpdates(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	secondary := surrealkeeptesting.NewMemoryStore()
	c := cqrs.NewCQRSStore(primary, secondary, cqrs.ModeSingle, cqrs.WithSyncStrategy(cqrs.SyncStrategyTimestamp))

	inWindow := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	before := inWindow.Add(-48 * time.Hour)

	primary.Seed([]models.Node{
		{ID: "fresh", Kind: models.KindNote, Title: "new title", Timestamps: models.Timestamps{Updated: inWindow}},
		{ID: "old", Kind: models.KindNote, Timestamps: models.Timestamps{Updated: before}},
	}, map[models.NodeID][]models.LabelID{"fresh": {1, 2}})
	secondary.Seed([]models.Node{
		{ID: "fresh", Kind: models.KindNote, Title: "stale title"},
	}, map[models.NodeID][]models.LabelID{"fresh": {2, 3}})

	require.NoError(t, c.SyncWithStrategy(ctx, inWindow.Add(-time.Hour), inWindow.Add(time.Hour)))

	fresh, err := secondary.GetNode(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, "new title", fresh.Title)

	labels, err := secondary.ListNodeLabels(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, []models.LabelID{1, 2}, labels)

	old, err := secondary.GetNode(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old, "outside the window")
}
