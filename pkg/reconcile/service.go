package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// AuditLog records the outcome of every submitted batch.
type AuditLog interface {
	Record(ctx context.Context, outcome *models.BatchOutcome) error
}

// Service applies change requests, one transaction per request.
type Service struct {
	store      store.Store
	reconciler *Reconciler
	audit      AuditLog
	log        zerolog.Logger
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditLog records every outcome, committed or failed. Recording is best
// effort: a failure is logged and does not change the outcome.
func WithAuditLog(a AuditLog) ServiceOption {
	return func(s *Service) { s.audit = a }
}

func WithServiceLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func NewService(st store.Store, r *Reconciler, opts ...ServiceOption) *Service {
	s := &Service{
		store:      st,
		reconciler: r,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit applies req inside a single transaction. A request without an ID
// gets a random UUID.
//
// The returned outcome is never nil. When the batch fails, the error is the
// one that stopped it and nothing of the batch is stored.
func (s *Service) Submit(ctx context.Context, req *models.ChangeRequest) (*models.BatchOutcome, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	var res Result
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var applyErr error
		res, applyErr = s.reconciler.Apply(ctx, tx, req)
		return applyErr
	})

	outcome := &models.BatchOutcome{
		RequestID:  req.RequestID,
		NodeCount:  len(req.Nodes),
		Counts:     res.Counts,
		Status:     models.BatchCommitted,
		FinishedAt: s.now(),
	}
	if err != nil {
		outcome.Status = models.BatchFailed
		outcome.Error = err.Error()
		outcome.FailedNode = res.FailedNode
		s.log.Warn().Err(err).
			Str("request_id", req.RequestID).
			Str("failed_node", res.FailedNode.String()).
			Int("nodes", len(req.Nodes)).
			Msg("Change request rolled back")
	} else {
		s.log.Info().
			Str("request_id", req.RequestID).
			Int("nodes", len(req.Nodes)).
			Int64("inserted", res.Counts.Inserted).
			Int64("updated", res.Counts.Updated).
			Int64("deleted", res.Counts.Deleted).
			Int64("labels_added", res.Counts.LabelsAdded).
			Int64("labels_removed", res.Counts.LabelsRemoved).
			Msg("Change request committed")
	}

	if s.audit != nil {
		if auditErr := s.audit.Record(ctx, outcome); auditErr != nil {
			s.log.Error().Err(auditErr).Str("request_id", req.RequestID).Msg("Failed to record batch outcome")
		}
	}

	return outcome, err
}
