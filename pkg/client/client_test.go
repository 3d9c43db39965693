package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/audit"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/client"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeep"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeeptesting"
)

func newServer(t *testing.T, backend store.Store, opts ...surrealkeep.Option) *client.Client {
	t.Helper()
	cfg := &surrealkeep.Config{
		Backend:       surrealkeep.BackendPostgres,
		MigrationMode: cqrs.ModeSingle,
		SyncStrategy:  cqrs.SyncStrategyChangeTracking,
	}
	if _, ok := backend.(*cqrs.CQRSStore); ok {
		cfg.Backend = surrealkeep.BackendCQRS
	}
	app := surrealkeep.NewWithStore(cfg, backend, opts...)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return client.NewClient(srv.URL)
}

func TestApplyChangesAndRead(t *testing.T) {
	ctx := context.Background()
	c := newServer(t, surrealkeeptesting.NewMemoryStore())

	outcome, err := c.ApplyChanges(ctx, &models.ChangeRequest{
		Nodes: []models.Node{
			{ID: "l1", Kind: models.KindList, Title: "groceries"},
			{ID: "i1", Kind: models.KindListItem, Parent: models.Under("l1"), Title: "milk"},
			{ID: "i2", Kind: models.KindListItem, Parent: models.Under("l1"), Title: "eggs", Checked: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchCommitted, outcome.Status)
	assert.NotEmpty(t, outcome.RequestID)
	assert.Equal(t, int64(3), outcome.Counts.Inserted)

	// Labels are reconciled once the list exists.
	outcome, err = c.ApplyChanges(ctx, &models.ChangeRequest{
		Nodes: []models.Node{
			{ID: "l1", Kind: models.KindList, Labels: []models.Label{{ID: 7, Selected: true}, {ID: 3, Selected: true}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Counts.LabelsAdded)

	node, err := c.GetNode(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, "eggs", node.Title)
	assert.True(t, node.Checked)
	assert.Equal(t, models.NodeID("l1"), node.Parent.ID())

	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	children, err := c.ListChildNodes(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, children, 2)

	labels, err := c.ListNodeLabels(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, []models.LabelID{3, 7}, labels)
}

func TestApplyChangesRejected(t *testing.T) {
	ctx := context.Background()
	c := newServer(t, surrealkeeptesting.NewMemoryStore())

	outcome, err := c.ApplyChanges(ctx, &models.ChangeRequest{
		RequestID: "with-blob",
		Nodes: []models.Node{
			{ID: "n1", Kind: models.KindNote},
			{ID: "b1", Kind: models.KindBlob, Parent: models.Under("n1")},
		},
	})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.NotNil(t, outcome)
	assert.Equal(t, models.BatchFailed, outcome.Status)
	assert.Equal(t, "with-blob", outcome.RequestID)
	assert.Equal(t, models.NodeID("b1"), outcome.FailedNode)

	_, err = c.GetNode(ctx, "n1")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestApplyChangesReadOnly(t *testing.T) {
	ctx := context.Background()
	c := newServer(t, surrealkeeptesting.NewMemoryStore())

	require.NoError(t, c.SetReadOnly(ctx, true))
	readOnly, err := c.GetReadOnly(ctx)
	require.NoError(t, err)
	assert.True(t, readOnly)

	_, err = c.ApplyChanges(ctx, &models.ChangeRequest{Nodes: []models.Node{{ID: "n1", Kind: models.KindNote}}})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	require.NoError(t, c.SetReadOnly(ctx, false))
	_, err = c.ApplyChanges(ctx, &models.ChangeRequest{Nodes: []models.Node{{ID: "n1", Kind: models.KindNote}}})
	require.NoError(t, err)
}

func TestGetBatch(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	log, err := audit.NewRedisLog("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	c := newServer(t, surrealkeeptesting.NewMemoryStore(), surrealkeep.WithBatchLog(log))

	_, err = c.ApplyChanges(ctx, &models.ChangeRequest{
		RequestID: "b-1",
		Nodes:     []models.Node{{ID: "n1", Kind: models.KindNote}},
	})
	require.NoError(t, err)

	outcome, err := c.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCommitted, outcome.Status)
	assert.Equal(t, 1, outcome.NodeCount)

	_, err = c.GetBatch(ctx, "unknown")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "ok", health["audit"])
}

func TestAdminMode(t *testing.T) {
	ctx := context.Background()
	primary := surrealkeeptesting.NewMemoryStore()
	c := newServer(t, cqrs.NewCQRSStore(primary, surrealkeeptesting.NewMemoryStore(), cqrs.ModeSingle))

	mode, err := c.GetMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(cqrs.ModeSingle), mode)

	_, err = c.ApplyChanges(ctx, &models.ChangeRequest{Nodes: []models.Node{{ID: "n1", Kind: models.KindNote}}})
	require.NoError(t, err)

	stats, err := c.SyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingChanges)

	mode, err = c.SetMode(ctx, string(cqrs.ModeReadOnly))
	require.NoError(t, err)
	assert.Equal(t, string(cqrs.ModeReadOnly), mode)

	_, err = c.SetMode(ctx, "sideways")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestAdminModeWithoutCQRS(t *testing.T) {
	c := newServer(t, surrealkeeptesting.NewMemoryStore())

	_, err := c.GetMode(context.Background())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}
