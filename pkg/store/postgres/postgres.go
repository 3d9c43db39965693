// Package postgres provides the PostgreSQL implementation of the [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.Store] interface using GORM ORM.
//
// It is the reference backend: every primitive the reconciler uses maps to
// one SQL statement, and [PostgresStore.WithinTx] maps a batch onto one
// database transaction through GORM's Transaction helper.
//
// # Data Model Mapping
//
// The schema maps [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models] entities to relational tables:
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models.Node] → nodes table keyed by node_id, indexed on parent_node_id
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models.NodeLabel] → node_labels table with a composite (node_id, label_id) key
//   - [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models.ChangeTracking] → change_tracking table
//
// Top-level nodes store NULL in parent_node_id. There is deliberately no
// foreign key between the tables: a batch may carry a list item before its
// list, and a client may delete a list while another still holds its items.
//
// # Transaction and Consistency Model
//
// All primitives run on the *gorm.DB bound to the open transaction, so a
// batch commits or rolls back as a unit. The change tracking row of every
// primitive is written in the same transaction. Constraint violations are
// reported as [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store.ErrConflict].
//
// # Schema Migration
//
// [PostgresStore.Migrate] uses GORM's AutoMigrate. It only adds schema
// elements and never removes existing data or columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type PostgresStore struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

var (
	_ store.Store         = (*PostgresStore)(nil)
	_ store.ChangeTracker = (*PostgresStore)(nil)
)

// Option configures a PostgresStore.
type Option func(*options)

type options struct {
	log             zerolog.Logger
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	logSQL          bool
}

// WithLogger sets the logger used for transaction diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithPool configures the connection pool of the underlying *sql.DB.
// Zero values keep the database/sql defaults.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(o *options) {
		o.maxOpenConns = maxOpen
		o.maxIdleConns = maxIdle
		o.connMaxLifetime = maxLifetime
	}
}

// WithSQLLogging makes GORM log every statement.
func WithSQLLogging() Option {
	return func(o *options) { o.logSQL = true }
}

func NewPostgresStore(dsn string, opts ...Option) (*PostgresStore, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	level := gormlogger.Silent
	if o.logSQL {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if o.maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.maxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(o.maxIdleConns)
	}
	if o.connMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(o.connMaxLifetime)
	}

	s := NewFromDB(db)
	s.log = o.log.With().Str("store", "postgres").Logger()
	return s, nil
}

// NewFromDB wraps an already opened GORM handle.
func NewFromDB(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, log: zerolog.Nop(), now: time.Now}
}

func (s *PostgresStore) getDB() *gorm.DB {
	return s.db
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.getDB().WithContext(ctx).AutoMigrate(
		&models.Node{},
		&models.NodeLabel{},
		&models.ChangeTracking{},
	)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithinTx runs fn in a database transaction. GORM commits when fn returns
// nil and rolls back otherwise.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var fnErr error
	err := s.getDB().WithContext(ctx).Transaction(func(db *gorm.DB) error {
		fnErr = fn(&pgTx{store: s, db: db})
		return fnErr
	})
	if err != nil && fnErr == nil {
		s.log.Error().Err(err).Msg("Transaction commit failed")
		return fmt.Errorf("failed to commit transaction: %w", classifyError(err))
	}
	return err
}

func (s *PostgresStore) GetNode(ctx context.Context, id models.NodeID) (*models.Node, error) {
	var node models.Node
	err := s.getDB().WithContext(ctx).First(&node, "node_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

func (s *PostgresStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	var nodes []*models.Node
	err := s.getDB().WithContext(ctx).Order("node_id").Find(&nodes).Error
	return nodes, err
}

func (s *PostgresStore) ListChildNodes(ctx context.Context, parent models.NodeID) ([]*models.Node, error) {
	var nodes []*models.Node
	err := s.getDB().WithContext(ctx).
		Where("parent_node_id = ?", parent).
		Order("node_id").
		Find(&nodes).Error
	return nodes, err
}

func (s *PostgresStore) ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	var raw []int64
	err := s.getDB().WithContext(ctx).
		Model(&models.NodeLabel{}).
		Where("node_id = ?", id).
		Order("label_id").
		Pluck("label_id", &raw).Error
	if err != nil {
		return nil, err
	}
	labels := make([]models.LabelID, len(raw))
	for i, l := range raw {
		labels[i] = models.LabelID(l)
	}
	return labels, nil
}
