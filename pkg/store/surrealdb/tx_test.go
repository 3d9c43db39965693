package surrealdb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// newOfflineTx returns a transaction whose overlay already knows the given
// nodes are absent, so no primitive needs a database round trip.
func newOfflineTx(absent ...models.NodeID) *surrealTx {
	tx := newSurrealTx(&SurrealStore{})
	for _, id := range absent {
		tx.nodes[id] = nodeState{}
	}
	return tx
}

func TestSurrealTxOverlay(t *testing.T) {
	ctx := context.Background()
	tx := newOfflineTx("list", "item")

	exists, err := tx.NodeExists(ctx, "list")
	require.NoError(t, err)
	assert.False(t, exists)

	rows, err := tx.InsertNode(ctx, &models.Node{ID: "list", Kind: models.KindList})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	exists, err = tx.NodeExists(ctx, "list")
	require.NoError(t, err)
	assert.True(t, exists, "inserted node is visible to later primitives")

	_, err = tx.InsertNode(ctx, &models.Node{ID: "list", Kind: models.KindList})
	assert.ErrorIs(t, err, store.ErrConflict)

	rows, err = tx.InsertNode(ctx, &models.Node{ID: "item", Kind: models.KindListItem, Parent: models.Under("list")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = tx.UpdateNode(ctx, &models.Node{ID: "list", Kind: models.KindList, Title: "groceries"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = tx.DeleteNode(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = tx.DeleteNode(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows, "second delete finds nothing")

	rows, err = tx.UpdateNode(ctx, &models.Node{ID: "item", Kind: models.KindListItem})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestSurrealTxLabels(t *testing.T) {
	ctx := context.Background()
	tx := newOfflineTx("n1")

	_, err := tx.InsertNode(ctx, &models.Node{ID: "n1", Kind: models.KindNote})
	require.NoError(t, err)

	rows, err := tx.InsertNodeLabelIfAbsent(ctx, "n1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = tx.InsertNodeLabelIfAbsent(ctx, "n1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = tx.DeleteNodeLabels(ctx, "n1", []models.LabelID{5, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = tx.DeleteNodeLabels(ctx, "n1", []models.LabelID{5})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	// CREATE, UPSERT and one DELETE; no-op primitives emit nothing.
	assert.Len(t, tx.stmts, 3)
}

func TestSurrealTxScript(t *testing.T) {
	ctx := context.Background()
	tx := newOfflineTx("n1")

	_, err := tx.InsertNode(ctx, &models.Node{ID: "n1", Kind: models.KindNote})
	require.NoError(t, err)
	_, err = tx.InsertNodeLabelIfAbsent(ctx, "n1", 2)
	require.NoError(t, err)

	script := tx.script()
	assert.True(t, strings.HasPrefix(script, "BEGIN TRANSACTION;\n"))
	assert.True(t, strings.HasSuffix(script, "COMMIT TRANSACTION;"))
	assert.Contains(t, script, "CREATE $p0 CONTENT $p1;\n")
	assert.Contains(t, script, "UPSERT $p2 CONTENT $p3;\n")

	assert.Equal(t, models.NodeID("n1").RecordID(), tx.vars["p0"])
	assert.Equal(t, labelRecordID("n1", 2), tx.vars["p2"])

	content, ok := tx.vars["p1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, surrealdb_models.None, content["parent"])
}

func TestSurrealTxEmptyCommit(t *testing.T) {
	tx := newOfflineTx()
	assert.NoError(t, tx.commit(context.Background()), "nothing to send")
}

func TestNodeContentParent(t *testing.T) {
	child := nodeContent(&models.Node{ID: "c", Kind: models.KindListItem, Parent: models.Under("p")})
	assert.Equal(t, models.NodeID("p").RecordID(), child["parent"])
	assert.Equal(t, models.KindListItem, child["node_type"])
}
