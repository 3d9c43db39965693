package cqrs

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// MigrationMode represents the current phase of database migration
type MigrationMode string

const (
	// ModeSingle uses only the primary store for both reads and writes.
	ModeSingle MigrationMode = "single"

	// ModeReadOnly refuses new batches so the final catch-up sync can run
	// against a primary that no longer changes.
	ModeReadOnly MigrationMode = "read_only"

	// ModeSwitching keeps applying batches to the primary while serving
	// reads from the secondary, which is kept current by the sync.
	ModeSwitching MigrationMode = "switching"

	// ModeReversed applies batches to the secondary and reads from it. The
	// primary is left behind as a rollback target.
	ModeReversed MigrationMode = "reversed"
)

// ParseMigrationMode validates a mode name from configuration.
func ParseMigrationMode(s string) (MigrationMode, error) {
	switch m := MigrationMode(s); m {
	case ModeSingle, ModeReadOnly, ModeSwitching, ModeReversed:
		return m, nil
	default:
		return "", fmt.Errorf("unknown migration mode %q", s)
	}
}

// SyncStrategy represents the synchronization strategy to use
type SyncStrategy string

const (
	// SyncStrategyTimestamp copies nodes whose client update timestamp falls
	// in the sync window. It cannot see deletions.
	SyncStrategyTimestamp SyncStrategy = "timestamp"

	// SyncStrategyChangeTracking replays the primary's change tracking rows.
	SyncStrategyChangeTracking SyncStrategy = "change_tracking"
)

// CQRSStore routes batches and reads between two stores during a migration.
//
// A batch is always applied as one transaction on exactly one store; the
// other store catches up through [CQRSStore.SyncWithStrategy]. Batches
// never write to both stores, so there is no dual-write to keep consistent.
type CQRSStore struct {
	primary      store.Store
	secondary    store.Store
	mode         MigrationMode
	syncStrategy SyncStrategy
	mu           sync.RWMutex
	log          zerolog.Logger
}

var _ store.Store = (*CQRSStore)(nil)

// Option configures a CQRSStore.
type Option func(*CQRSStore)

// WithLogger sets the logger used for routing and sync diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *CQRSStore) { c.log = log.With().Str("store", "cqrs").Logger() }
}

// WithSyncStrategy sets the initial sync strategy.
func WithSyncStrategy(strategy SyncStrategy) Option {
	return func(c *CQRSStore) { c.syncStrategy = strategy }
}

func NewCQRSStore(primary, secondary store.Store, mode MigrationMode, opts ...Option) *CQRSStore {
	c := &CQRSStore{
		primary:      primary,
		secondary:    secondary,
		mode:         mode,
		syncStrategy: SyncStrategyChangeTracking,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMode changes the migration mode
func (c *CQRSStore) SetMode(mode MigrationMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeReadOnly && mode != ModeSwitching && mode != ModeSingle {
		return fmt.Errorf("can only transition from read_only to switching or single mode")
	}

	c.log.Info().Str("from", string(c.mode)).Str("to", string(mode)).Msg("Migration mode changed")
	c.mode = mode
	return nil
}

// SetSyncStrategy changes the synchronization strategy
func (c *CQRSStore) SetSyncStrategy(strategy SyncStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncStrategy = strategy
}

// GetSyncStrategy returns the current synchronization strategy
func (c *CQRSStore) GetSyncStrategy() SyncStrategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncStrategy
}

// SwapStores swaps primary and secondary stores (used after migration completes)
func (c *CQRSStore) SwapStores() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary, c.secondary = c.secondary, c.primary
}

// GetMode returns the current migration mode
func (c *CQRSStore) GetMode() MigrationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *CQRSStore) getReadStore() store.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.mode {
	case ModeSwitching, ModeReversed:
		return c.secondary
	default:
		return c.primary
	}
}

func (c *CQRSStore) getWriteStore() (store.Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.mode == ModeReadOnly {
		return nil, fmt.Errorf("system is in read-only mode during migration: %w", store.ErrReadOnly)
	}

	if c.mode == ModeReversed {
		return c.secondary, nil
	}

	return c.primary, nil
}

func (c *CQRSStore) Migrate(ctx context.Context) error {
	if err := c.primary.Migrate(ctx); err != nil {
		return fmt.Errorf("primary migration failed: %w", err)
	}
	if c.secondary != nil {
		if err := c.secondary.Migrate(ctx); err != nil {
			return fmt.Errorf("secondary migration failed: %w", err)
		}
	}
	return nil
}

func (c *CQRSStore) Close() error {
	var primaryErr, secondaryErr error

	primaryErr = c.primary.Close()
	if c.secondary != nil {
		secondaryErr = c.secondary.Close()
	}

	if primaryErr != nil {
		return primaryErr
	}
	return secondaryErr
}

func (c *CQRSStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s, err := c.getWriteStore()
	if err != nil {
		return err
	}
	return s.WithinTx(ctx, fn)
}

func (c *CQRSStore) GetNode(ctx context.Context, id models.NodeID) (*models.Node, error) {
	return c.getReadStore().GetNode(ctx, id)
}

func (c *CQRSStore) ListNodes(ctx context.Context) ([]*models.Node, error) {
	return c.getReadStore().ListNodes(ctx)
}

func (c *CQRSStore) ListChildNodes(ctx context.Context, parent models.NodeID) ([]*models.Node, error) {
	return c.getReadStore().ListChildNodes(ctx, parent)
}

func (c *CQRSStore) ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	return c.getReadStore().ListNodeLabels(ctx, id)
}
