// Package surrealdb provides the SurrealDB implementation of the [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Store] interface using native SurrealQL.
//
// # Transactions
//
// SurrealDB does not keep a transaction open across RPC calls: a transaction
// is a BEGIN TRANSACTION ... COMMIT TRANSACTION block inside a single query.
// [SurrealStore.WithinTx] therefore hands the reconciler a transaction that
// buffers its write statements and sends them as one query once the callback
// returns nil. A callback error simply discards the buffer, which is the
// rollback.
//
// Because nothing is written before commit, the transaction keeps an overlay
// of the nodes and labels it has touched. NodeExists and the row counts
// returned by the write primitives consult the overlay first and fall back to
// reading committed data, so writes made earlier in the batch are visible to
// later nodes of the same batch.
//
// # CBOR Marshaling
//
// The connection uses the surrealcbor codec so that time.Time values use
// SurrealDB's native datetime format and [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models.NodeID] values travel as
// RecordIDs (nodes:⟨id⟩). A top-level parent is stored as NONE.
//
// # Schema
//
//   - nodes: one record per node, keyed by the client node ID, with a
//     parent field holding the parent's RecordID
//   - node_labels: one record per association, keyed by the array
//     [node, label] so that attaching a label twice is naturally idempotent
//
// # Security and Query Safety
//
// Every value reaches SurrealDB as a query parameter ($param syntax). IDs
// marshal to RecordIDs; no query is assembled from user-provided strings.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

const migrateQuery = `
DEFINE TABLE IF NOT EXISTS nodes SCHEMALESS;
DEFINE INDEX IF NOT EXISTS nodes_parent ON nodes FIELDS parent;
DEFINE TABLE IF NOT EXISTS node_labels SCHEMALESS;
DEFINE INDEX IF NOT EXISTS node_labels_node ON node_labels FIELDS node;
`

type SurrealStore struct {
	db       *surrealdb.DB
	ns       string
	database string
	log      zerolog.Logger
}

var _ store.Store = (*SurrealStore)(nil)

// Option configures a SurrealStore.
type Option func(*SurrealStore)

// WithLogger sets the logger used for transaction diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(s *SurrealStore) { s.log = log.With().Str("store", "surrealdb").Logger() }
}

func NewSurrealStore(ctx context.Context, wsURL, namespace, database, username, password string, opts ...Option) (*SurrealStore, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// Without surrealcbor, time.Time values are marshaled in a format
	// SurrealDB rejects as an invalid datetime.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	s := &SurrealStore{
		db:       db,
		ns:       namespace,
		database: database,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SurrealStore) Migrate(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, migrateQuery, nil); err != nil {
		return fmt.Errorf("failed to define schema: %w", err)
	}
	return nil
}

func (s *SurrealStore) Close() error {
	return s.db.Close(context.Background())
}

func (s *SurrealStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx := newSurrealTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		s.log.Error().Err(err).Int("statements", len(tx.stmts)).Msg("Transaction commit failed")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nodeRecord is the shape of a nodes record as SurrealDB returns it.
type nodeRecord struct {
	ID       models.NodeID    `json:"id"`
	Parent   models.ParentRef `json:"parent"`
	Kind     models.NodeKind  `json:"node_type"`
	Title    string           `json:"title"`
	Text     string           `json:"text"`
	Checked  bool             `json:"is_checked"`
	Pinned   bool             `json:"is_pinned"`
	Archived bool             `json:"is_archived"`
	Version  int              `json:"base_version"`
	Created  time.Time        `json:"created_date"`
	Updated  time.Time        `json:"updated_date"`
}

func (r *nodeRecord) toNode() *models.Node {
	return &models.Node{
		ID:       r.ID,
		Parent:   r.Parent,
		Kind:     r.Kind,
		Title:    r.Title,
		Text:     r.Text,
		Checked:  r.Checked,
		Pinned:   r.Pinned,
		Archived: r.Archived,
		Version:  r.Version,
		Timestamps: models.Timestamps{
			Created: r.Created,
			Updated: r.Updated,
		},
	}
}

// nodeContent is the record body written for a node.
func nodeContent(n *models.Node) map[string]any {
	content := n.ScalarFields()
	if n.IsTopLevel() {
		content["parent"] = surrealdb_models.None
	} else {
		content["parent"] = n.Parent.ID().RecordID()
	}
	return content
}

func labelRecordID(node models.NodeID, label models.LabelID) surrealdb_models.RecordID {
	return surrealdb_models.NewRecordID(models.NodeLabelsTable, []any{node.String(), int64(label)})
}

func (s *SurrealStore) queryNodes(ctx context.Context, query string, vars map[string]any) ([]*models.Node, error) {
	res, err := surrealdb.Query[[]nodeRecord](ctx, s.db, query, vars)
	if err != nil {
		return nil, err
	}
	var nodes []*models.Node
	if res != nil && len(*res) > 0 {
		for i := range (*res)[0].Result {
			nodes = append(nodes, (*res)[0].Result[i].toNode())
		}
	}
	return nodes, nil
}

func (s *SurrealStore) GetNode(ctx context.Context, id models.NodeID) (*models.Node, error) {
	nodes, err := s.queryNodes(ctx, "SELECT * FROM $node", map[string]any{"node": id.RecordID()})
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func (s *SurrealStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	nodes, err := s.queryNodes(ctx, "SELECT * FROM nodes ORDER BY id", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return nodes, nil
}

func (s *SurrealStore) ListChildNodes(ctx context.Context, parent models.NodeID) ([]*models.Node, error) {
	nodes, err := s.queryNodes(ctx, "SELECT * FROM nodes WHERE parent = $parent ORDER BY id",
		map[string]any{"parent": parent.RecordID()})
	if err != nil {
		return nil, fmt.Errorf("failed to list child nodes: %w", err)
	}
	return nodes, nil
}

func (s *SurrealStore) ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	labels, err := s.selectLabels(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list node labels: %w", err)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels, nil
}

func (s *SurrealStore) selectLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	res, err := surrealdb.Query[[]int64](ctx, s.db, "SELECT VALUE label FROM node_labels WHERE node = $node",
		map[string]any{"node": id.RecordID()})
	if err != nil {
		return nil, err
	}
	var labels []models.LabelID
	if res != nil && len(*res) > 0 {
		for _, l := range (*res)[0].Result {
			labels = append(labels, models.LabelID(l))
		}
	}
	return labels, nil
}

func (s *SurrealStore) selectNodeIDs(ctx context.Context, query string, vars map[string]any) ([]models.NodeID, error) {
	res, err := surrealdb.Query[[]models.NodeID](ctx, s.db, query, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	return (*res)[0].Result, nil
}
