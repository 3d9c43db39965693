package models

import "time"

// BatchStatus is the final state of a change request.
type BatchStatus string

const (
	BatchCommitted BatchStatus = "committed"
	BatchFailed    BatchStatus = "failed"
)

// BatchCounts tallies the rows touched while reconciling one batch.
type BatchCounts struct {
	Inserted      int64 `json:"inserted"`
	Updated       int64 `json:"updated"`
	Deleted       int64 `json:"deleted"`
	LabelsAdded   int64 `json:"labelsAdded"`
	LabelsRemoved int64 `json:"labelsRemoved"`
}

// Add accumulates other into c.
func (c *BatchCounts) Add(other BatchCounts) {
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Deleted += other.Deleted
	c.LabelsAdded += other.LabelsAdded
	c.LabelsRemoved += other.LabelsRemoved
}

// BatchOutcome is what the server reports, and optionally records, after a
// change request finishes. Counts describe the work done before commit, or
// before the failure for a failed batch whose writes were rolled back.
type BatchOutcome struct {
	RequestID string      `json:"requestId"`
	NodeCount int         `json:"nodeCount"`
	Counts    BatchCounts `json:"counts"`
	Status    BatchStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	// FailedNode is the node being reconciled when the batch aborted.
	FailedNode NodeID    `json:"failedNode,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}
