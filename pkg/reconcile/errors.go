package reconcile

import (
	"errors"
	"fmt"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

var (
	// ErrUnsupportedOperation is returned when a batch asks for something the
	// server cannot do yet. Creating attachment nodes is the only such case.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidNode is returned when a node fails validation before lookup.
	ErrInvalidNode = errors.New("invalid node")
)

// LookupError reports that the existence check for a node could not be run.
type LookupError struct {
	NodeID models.NodeID
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to look up node %s: %v", e.NodeID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// PersistenceError reports that a write primitive failed while applying a
// node. Op names the primitive.
type PersistenceError struct {
	NodeID models.NodeID
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
