package models

import (
	"fmt"
	"strings"
	"time"
)

// ChangeOperation represents the type of database change
type ChangeOperation string

const (
	ChangeOperationCreate ChangeOperation = "CREATE"
	ChangeOperationUpdate ChangeOperation = "UPDATE"
	ChangeOperationDelete ChangeOperation = "DELETE"
)

// Entity types recorded in the change tracking table.
const (
	EntityNode      = "node"
	EntityNodeLabel = "node_label"
)

// ChangeTracking is one row of the change tracking table. A store that
// supports it writes a row per primitive inside the batch transaction, so a
// rolled back batch leaves no trace and a committed one can be replayed onto
// another store in order.
type ChangeTracking struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType   string          `gorm:"not null;index:idx_entity_timestamp" json:"entity_type"`
	EntityID     string          `gorm:"not null;index:idx_entity_timestamp" json:"entity_id"`
	Operation    ChangeOperation `gorm:"not null" json:"operation"`
	ChangedAt    time.Time       `gorm:"not null;index:idx_entity_timestamp" json:"changed_at"`
	ProcessedAt  *time.Time      `gorm:"index" json:"processed_at,omitempty"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int             `gorm:"default:0" json:"retry_count"`
	// Payload holds the node for CREATE/UPDATE and the label IDs for
	// node_label changes.
	Payload JSONMap `gorm:"type:jsonb" json:"payload,omitempty"`
}

// TableName returns the table name for the change tracking model
func (ChangeTracking) TableName() string {
	return "change_tracking"
}

// IsProcessed returns true if the change has been successfully processed
func (c *ChangeTracking) IsProcessed() bool {
	return c.ProcessedAt != nil && c.ErrorMessage == ""
}

// MarkProcessed marks the change as successfully processed
func (c *ChangeTracking) MarkProcessed(processedTime time.Time) {
	c.ProcessedAt = &processedTime
	c.ErrorMessage = ""
}

// MarkError marks the change as failed with an error message
func (c *ChangeTracking) MarkError(errorMsg string) {
	c.ErrorMessage = errorMsg
	c.RetryCount++
}

// NodeLabelEntityID is the entity ID used for a node-label change row.
func NodeLabelEntityID(node NodeID, label LabelID) string {
	return node.String() + "/" + label.String()
}

// ParseNodeLabelEntityID splits an entity ID built by NodeLabelEntityID.
func ParseNodeLabelEntityID(entityID string) (NodeID, LabelID, error) {
	i := strings.LastIndex(entityID, "/")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid node label entity ID %q", entityID)
	}
	node, err := ParseNodeID(entityID[:i])
	if err != nil {
		return "", 0, err
	}
	label, err := ParseLabelID(entityID[i+1:])
	if err != nil {
		return "", 0, err
	}
	return node, label, nil
}
