package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	// NodesTable is the table holding every node regardless of kind.
	NodesTable = "nodes"
	// NodeLabelsTable is the association table between nodes and labels.
	NodeLabelsTable = "node_labels"

	// rootSentinel is the wire value clients send for a top-level node's parent.
	rootSentinel = "root"
)

// NodeID is the client-generated identifier of a node.
//
// Clients mint node IDs before the node ever reaches the server, so unlike the
// server-assigned UUIDs elsewhere the value is an opaque string. It still knows
// its SurrealDB table and marshals to a RecordID over CBOR.
type NodeID string

func ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return "", fmt.Errorf("invalid node ID: empty")
	}
	if s == rootSentinel {
		return "", fmt.Errorf("invalid node ID: %q is reserved for top-level parents", s)
	}
	return NodeID(s), nil
}

func (n NodeID) String() string { return string(n) }
func (n NodeID) IsZero() bool   { return n == "" }

func (n NodeID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: NodesTable,
		ID:    string(n),
	}
}

func (n NodeID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{NodesTable, string(n)},
	})
}

func (n *NodeID) UnmarshalCBOR(data []byte) error {
	id, err := unmarshalCBORID(data, NodesTable)
	if err != nil {
		return err
	}
	*n = NodeID(id)
	return nil
}

func (n NodeID) Value() (driver.Value, error) {
	if n.IsZero() {
		return nil, nil
	}
	return string(n), nil
}

func (n *NodeID) Scan(value any) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	*n = NodeID(s)
	return nil
}

func (NodeID) GormDataType() string { return "text" }

// LabelID identifies a label. Labels themselves are owned elsewhere; this
// service only stores their association with nodes.
type LabelID int64

func ParseLabelID(s string) (LabelID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label ID: %w", err)
	}
	return LabelID(v), nil
}

func (l LabelID) String() string { return strconv.FormatInt(int64(l), 10) }

// ParentRef says where a node sits in the hierarchy: either at the top level
// or directly under another node. The zero value is top-level.
//
// Persisted as NULL for top-level nodes, as the parent's ID otherwise. On the
// JSON wire the top level keeps the "root" sentinel clients already send.
type ParentRef struct {
	id NodeID
}

// TopLevel returns the parent reference of a top-level node.
func TopLevel() ParentRef { return ParentRef{} }

// Under returns a reference to the given parent node.
func Under(id NodeID) ParentRef { return ParentRef{id: id} }

func (p ParentRef) IsTopLevel() bool { return p.id.IsZero() }

// ID returns the parent node ID, or the zero NodeID for top-level nodes.
func (p ParentRef) ID() NodeID { return p.id }

func (p ParentRef) String() string {
	if p.IsTopLevel() {
		return rootSentinel
	}
	return p.id.String()
}

func (p ParentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *ParentRef) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = parentFromString(s)
	return nil
}

func (p ParentRef) MarshalCBOR() ([]byte, error) {
	if p.IsTopLevel() {
		return cbor.Marshal(nil)
	}
	return p.id.MarshalCBOR()
}

func (p *ParentRef) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// null (0xf6), undefined (0xf7) and SurrealDB NONE (tag 6 wrapping null)
	// all mean the node has no parent.
	switch data[0] {
	case 0xf6, 0xf7:
		*p = TopLevel()
		return nil
	}
	if data[0]>>5 == 6 {
		var tag cbor.RawTag
		if err := cbor.Unmarshal(data, &tag); err != nil {
			return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
		}
		if tag.Number == 6 {
			*p = TopLevel()
			return nil
		}
	}

	var id NodeID
	if err := id.UnmarshalCBOR(data); err != nil {
		return err
	}
	*p = parentFromString((*string)(&id))
	return nil
}

func (p ParentRef) Value() (driver.Value, error) {
	if p.IsTopLevel() {
		return nil, nil
	}
	return p.id.String(), nil
}

func (p *ParentRef) Scan(value any) error {
	if value == nil {
		*p = TopLevel()
		return nil
	}
	s, err := scanString(value)
	if err != nil {
		return err
	}
	*p = parentFromString(&s)
	return nil
}

func (ParentRef) GormDataType() string { return "text" }

func parentFromString(s *string) ParentRef {
	if s == nil || *s == "" || *s == rootSentinel {
		return TopLevel()
	}
	return Under(NodeID(*s))
}

// scanString is a helper for implementing sql.Scanner for text columns
func scanString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot scan type %T into string ID", value)
	}
}

// unmarshalCBORID decodes a SurrealDB RecordID (CBOR tag 8, [table, id]) into
// its string ID. A bare CBOR string is accepted as well so values written by
// older clients still decode.
func unmarshalCBORID(data []byte, expectedTable string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty CBOR data")
	}

	if data[0]>>5 != 6 {
		var s string
		if err := cbor.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("expected RecordID or string: %w", err)
		}
		return s, nil
	}

	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return "", fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
	}

	// SurrealDB uses tag 8 for RecordID
	if tag.Number != 8 {
		return "", fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
	}

	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 2 {
		return "", fmt.Errorf("invalid RecordID format: expected [table, id] array")
	}

	table, ok := arr[0].(string)
	if !ok {
		return "", fmt.Errorf("invalid RecordID format: table name must be string")
	}
	if table != expectedTable {
		return "", fmt.Errorf("expected table %s, got %s", expectedTable, table)
	}

	id, ok := arr[1].(string)
	if !ok {
		return "", fmt.Errorf("invalid RecordID format: ID must be string")
	}
	return id, nil
}
