package postgres

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deleteTreeSQL removes a node and its direct children in one statement.
const deleteTreeSQL = `DELETE FROM nodes WHERE node_id IN (
	SELECT node_id FROM nodes WHERE parent_node_id = ?
	UNION
	SELECT node_id FROM nodes WHERE node_id = ?
)`

// pgTx implements store.Tx on top of a GORM transaction handle. Every write
// records its change tracking row on the same handle.
type pgTx struct {
	store *PostgresStore
	db    *gorm.DB
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) NodeExists(ctx context.Context, id models.NodeID) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&models.Node{}).
		Where("node_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up node %s: %w", id, err)
	}
	return count > 0, nil
}

func (t *pgTx) InsertNode(ctx context.Context, node *models.Node) (int64, error) {
	res := t.db.WithContext(ctx).Create(node)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to insert node %s: %w", node.ID, classifyError(res.Error))
	}
	if err := t.store.recordChange(t.db, models.EntityNode, node.ID.String(), models.ChangeOperationCreate, node); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (t *pgTx) UpdateNode(ctx context.Context, node *models.Node) (int64, error) {
	res := t.db.WithContext(ctx).
		Model(&models.Node{}).
		Where("node_id = ?", node.ID).
		Updates(node.ScalarFields())
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update node %s: %w", node.ID, classifyError(res.Error))
	}
	if res.RowsAffected > 0 {
		if err := t.store.recordChange(t.db, models.EntityNode, node.ID.String(), models.ChangeOperationUpdate, node); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

func (t *pgTx) DeleteNode(ctx context.Context, id models.NodeID) (int64, error) {
	db := t.db.WithContext(ctx)
	if err := db.Where("node_id = ?", id).Delete(&models.NodeLabel{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete labels of node %s: %w", id, err)
	}
	res := db.Where("node_id = ?", id).Delete(&models.Node{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete node %s: %w", id, classifyError(res.Error))
	}
	if res.RowsAffected > 0 {
		if err := t.store.recordChange(t.db, models.EntityNode, id.String(), models.ChangeOperationDelete, nil); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

func (t *pgTx) DeleteNodeTree(ctx context.Context, id models.NodeID) (int64, error) {
	db := t.db.WithContext(ctx)

	// The IDs are needed for label cleanup and change tracking; the delete
	// itself stays a single statement.
	var victims []models.NodeID
	err := db.Model(&models.Node{}).
		Where("parent_node_id = ? OR node_id = ?", id, id).
		Order("node_id").
		Pluck("node_id", &victims).Error
	if err != nil {
		return 0, fmt.Errorf("failed to collect tree of node %s: %w", id, err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	if err := db.Where("node_id IN ?", victims).Delete(&models.NodeLabel{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete labels of tree %s: %w", id, err)
	}

	res := db.Exec(deleteTreeSQL, id, id)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete tree of node %s: %w", id, classifyError(res.Error))
	}

	for _, v := range victims {
		if err := t.store.recordChange(t.db, models.EntityNode, v.String(), models.ChangeOperationDelete, nil); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

func (t *pgTx) DeleteNodeLabels(ctx context.Context, id models.NodeID, labels []models.LabelID) (int64, error) {
	if len(labels) == 0 {
		return 0, nil
	}
	db := t.db.WithContext(ctx)

	var attached []int64
	err := db.Model(&models.NodeLabel{}).
		Where("node_id = ? AND label_id IN ?", id, labels).
		Order("label_id").
		Pluck("label_id", &attached).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read labels of node %s: %w", id, err)
	}
	if len(attached) == 0 {
		return 0, nil
	}

	res := db.Where("node_id = ? AND label_id IN ?", id, attached).Delete(&models.NodeLabel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete labels of node %s: %w", id, classifyError(res.Error))
	}

	for _, l := range attached {
		label := models.LabelID(l)
		if err := t.store.recordChange(t.db, models.EntityNodeLabel, models.NodeLabelEntityID(id, label),
			models.ChangeOperationDelete, models.NodeLabel{NodeID: id, LabelID: label}); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

func (t *pgTx) InsertNodeLabelIfAbsent(ctx context.Context, id models.NodeID, label models.LabelID) (int64, error) {
	row := &models.NodeLabel{NodeID: id, LabelID: label}
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to attach label %s to node %s: %w", label, id, classifyError(res.Error))
	}
	if res.RowsAffected > 0 {
		if err := t.store.recordChange(t.db, models.EntityNodeLabel, models.NodeLabelEntityID(id, label),
			models.ChangeOperationCreate, row); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}
