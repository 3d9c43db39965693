package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind is the closed set of node types a client can submit.
type NodeKind string

const (
	// KindNote is a top-level free-text note.
	KindNote NodeKind = "NOTE"
	// KindList is a top-level checklist container.
	KindList NodeKind = "LIST"
	// KindListItem is a single entry inside a list.
	KindListItem NodeKind = "LIST_ITEM"
	// KindBlob is an attachment. Blobs are accepted on the wire but the
	// server cannot store them.
	KindBlob NodeKind = "BLOB"
)

// Valid reports whether k is one of the known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindNote, KindList, KindListItem, KindBlob:
		return true
	}
	return false
}

// IsContainer reports whether nodes of this kind live at the top level and
// own children.
func (k NodeKind) IsContainer() bool {
	return k == KindNote || k == KindList
}

// JSONMap is a flexible key-value map used for change tracking payloads.
// PostgreSQL stores it as JSONB, SurrealDB as a nested object.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONMap", value)
	}
	return json.Unmarshal(bytes, j)
}

// Timestamps are client-supplied creation and modification times.
// The server stores them as given.
type Timestamps struct {
	Created time.Time `gorm:"column:created_date" json:"created" cbor:"created_date"`
	Updated time.Time `gorm:"column:updated_date" json:"updated" cbor:"updated_date"`
}

// User identifies the author of a change. It travels with the node but is
// not persisted by this service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Label is a client assertion about one label on one node for a single
// change request. Deleted takes precedence over Selected.
type Label struct {
	ID       LabelID `json:"labelId"`
	Selected bool    `json:"selected"`
	Deleted  bool    `json:"deleted"`
}

// Node is the client's view of a note, list, list item or attachment.
//
// Scalar fields map to columns of the nodes table. Deleted, Trashed, Labels
// and the authorship fields are assertions carried by a change request and are
// never persisted on the node row.
type Node struct {
	ID       NodeID    `gorm:"column:node_id;primaryKey" json:"nodeId" cbor:"id"`
	Parent   ParentRef `gorm:"column:parent_node_id;index" json:"parentId" cbor:"parent"`
	Kind     NodeKind  `gorm:"column:node_type;not null" json:"nodeType" cbor:"node_type"`
	Title    string    `gorm:"column:title" json:"title" cbor:"title"`
	Text     string    `gorm:"column:text;type:text" json:"text" cbor:"text"`
	Checked  bool      `gorm:"column:is_checked" json:"isChecked" cbor:"is_checked"`
	Pinned   bool      `gorm:"column:is_pinned" json:"pinned" cbor:"is_pinned"`
	Archived bool      `gorm:"column:is_archived" json:"isArchived" cbor:"is_archived"`
	// Version is carried for the client's benefit only; it is never compared.
	Version int `gorm:"column:base_version" json:"baseVersion" cbor:"base_version"`

	Timestamps `json:"timestamps"`

	Deleted        bool    `gorm:"-" json:"deleted" cbor:"-"`
	Trashed        bool    `gorm:"-" json:"trashed" cbor:"-"`
	AttachmentIDs  []int64 `gorm:"-" json:"attachmentList,omitempty" cbor:"-"`
	Collaborators  []User  `gorm:"-" json:"collaborators,omitempty" cbor:"-"`
	CreatedBy      *User   `gorm:"-" json:"createdBy,omitempty" cbor:"-"`
	LastModifiedBy *User   `gorm:"-" json:"lastModifiedBy,omitempty" cbor:"-"`
	Labels         []Label `gorm:"-" json:"labels,omitempty" cbor:"-"`
}

// TableName returns the table name for the node model
func (Node) TableName() string { return NodesTable }

// IsTopLevel reports whether the node has no parent.
func (n *Node) IsTopLevel() bool { return n.Parent.IsTopLevel() }

// Validate checks the rules a node must satisfy before the server
// looks it up.
func (n *Node) Validate() error {
	if n.ID.IsZero() {
		return fmt.Errorf("node ID is required")
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("node %s: unknown node type %q", n.ID, n.Kind)
	}
	if !n.IsTopLevel() && n.Parent.ID() == n.ID {
		return fmt.Errorf("node %s: cannot be its own parent", n.ID)
	}
	return nil
}

// ScalarFields returns the persisted scalar columns of the node, keyed by
// column name, excluding the primary key and the parent reference.
func (n *Node) ScalarFields() map[string]any {
	return map[string]any{
		"node_type":    n.Kind,
		"title":        n.Title,
		"text":         n.Text,
		"is_checked":   n.Checked,
		"is_pinned":    n.Pinned,
		"is_archived":  n.Archived,
		"base_version": n.Version,
		"created_date": n.Created,
		"updated_date": n.Updated,
	}
}

// NodeLabel associates a label with a node. Rows are created or removed,
// never updated.
type NodeLabel struct {
	NodeID  NodeID  `gorm:"column:node_id;primaryKey" json:"nodeId" cbor:"node"`
	LabelID LabelID `gorm:"column:label_id;primaryKey;autoIncrement:false" json:"labelId" cbor:"label"`
}

// TableName returns the table name for the node-label association
func (NodeLabel) TableName() string { return NodeLabelsTable }

// ChangeRequest is one client batch. Every node in it is reconciled inside a
// single transaction, in submission order.
type ChangeRequest struct {
	RequestID string `json:"requestId"`
	Nodes     []Node `json:"nodeList"`
}
