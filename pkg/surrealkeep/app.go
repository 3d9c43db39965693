package surrealkeep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/audit"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/reconcile"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/postgres"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/surrealdb"
)

// Config holds application configuration.
type Config struct {
	// Database configuration
	PostgresDSN   string
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	// Backend is one of BackendPostgres, BackendSurrealDB or BackendCQRS.
	Backend       string
	MigrationMode cqrs.MigrationMode
	SyncStrategy  cqrs.SyncStrategy
	SyncInterval  time.Duration // Background forward sync while serving; 0 disables
	ReadOnly      bool          // When true, change requests are rejected

	// Batch audit log. An empty RedisURL disables it.
	RedisURL string
	AuditTTL time.Duration

	ServerPort string
	LogLevel   string
	LogFormat  string
}

// BatchLog records batch outcomes and serves them back to clients.
type BatchLog interface {
	reconcile.AuditLog
	Lookup(ctx context.Context, requestID string) (*models.BatchOutcome, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ BatchLog = (*audit.RedisLog)(nil)

// App holds the application state.
type App struct {
	store    store.Store
	cqrs     *cqrs.CQRSStore // nil unless the backend is cqrs
	service  *reconcile.Service
	audit    BatchLog // nil when disabled
	config   *Config
	log      zerolog.Logger
	readOnly atomic.Bool
}

// Option configures an App built by NewWithStore.
type Option func(*App)

// WithBatchLog enables the batch audit log.
func WithBatchLog(l BatchLog) Option {
	return func(a *App) { a.audit = l }
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New connects to the configured backend and the audit log, and returns a
// ready application.
func New(ctx context.Context, config *Config) (*App, error) {
	log, err := NewLogger(config.LogLevel, config.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}

	appStore, err := openStore(ctx, config, log)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithLogger(log)}
	if config.RedisURL != "" {
		auditLog, err := audit.NewRedisLog(config.RedisURL, config.AuditTTL)
		if err != nil {
			_ = appStore.Close()
			return nil, fmt.Errorf("failed to connect to the audit log: %w", err)
		}
		log.Info().Dur("ttl", config.AuditTTL).Msg("Batch audit log enabled")
		opts = append(opts, WithBatchLog(auditLog))
	}

	return NewWithStore(config, appStore, opts...), nil
}

func openStore(ctx context.Context, config *Config, log zerolog.Logger) (store.Store, error) {
	openPostgres := func() (*postgres.PostgresStore, error) {
		s, err := postgres.NewPostgresStore(config.PostgresDSN,
			postgres.WithLogger(log.With().Str("store", "postgres").Logger()))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info().Msg("Connected to PostgreSQL")
		return s, nil
	}
	openSurreal := func() (*surrealdb.SurrealStore, error) {
		s, err := surrealdb.NewSurrealStore(ctx,
			config.SurrealDBURL,
			config.SurrealDBNS,
			config.SurrealDBDB,
			config.SurrealDBUser,
			config.SurrealDBPass,
			surrealdb.WithLogger(log.With().Str("store", "surrealdb").Logger()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		log.Info().Str("url", config.SurrealDBURL).Msg("Connected to SurrealDB")
		return s, nil
	}

	switch config.Backend {
	case BackendPostgres:
		return openPostgres()
	case BackendSurrealDB:
		return openSurreal()
	case BackendCQRS:
		pgStore, err := openPostgres()
		if err != nil {
			return nil, err
		}
		sdbStore, err := openSurreal()
		if err != nil {
			_ = pgStore.Close()
			return nil, err
		}
		log.Info().Str("mode", string(config.MigrationMode)).Msg("Using CQRS store")
		return cqrs.NewCQRSStore(pgStore, sdbStore, config.MigrationMode,
			cqrs.WithLogger(log.With().Str("store", "cqrs").Logger()),
			cqrs.WithSyncStrategy(config.SyncStrategy),
		), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", config.Backend)
	}
}

// NewWithStore builds the application around an already opened store.
func NewWithStore(config *Config, backend store.Store, opts ...Option) *App {
	app := &App{
		config: config,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.readOnly.Store(config.ReadOnly)

	if c, ok := backend.(*cqrs.CQRSStore); ok {
		app.cqrs = c
	}
	app.store = store.NewReadOnlyStore(backend, app.IsReadOnly)

	reconciler := reconcile.NewReconciler(reconcile.WithLogger(app.log))
	serviceOpts := []reconcile.ServiceOption{reconcile.WithServiceLogger(app.log)}
	if app.audit != nil {
		serviceOpts = append(serviceOpts, reconcile.WithAuditLog(app.audit))
	}
	app.service = reconcile.NewService(app.store, reconciler, serviceOpts...)
	return app
}

// Close closes the application and its resources
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	return errors.Join(errs...)
}

// Store returns the read-only guarded store (useful for testing)
func (a *App) Store() store.Store {
	return a.store
}

// Service returns the change request service.
func (a *App) Service() *reconcile.Service {
	return a.service
}

// SetReadOnly toggles read-only mode. While it is on every change request is
// rejected with store.ErrReadOnly; reads keep working. A batch that is
// already running is allowed to finish.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.log.Info().Bool("read_only", readOnly).Msg("Application read-only mode changed")
}

// IsReadOnly returns whether the application is currently in read-only mode.
func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}
