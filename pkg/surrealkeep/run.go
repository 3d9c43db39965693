package surrealkeep

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Handler returns the HTTP routes of the application.
//
// # API Endpoints
//
// Health Check:
//
//	GET  /health, /api/health                     - Service health status
//
// Change requests:
//
//	POST /api/changes                             - Apply a batch in one transaction
//	GET  /api/changes/{requestId}                 - Outcome of an earlier batch (audit log)
//
// Nodes:
//
//	GET  /api/nodes                               - All stored nodes, ordered by ID
//	GET  /api/nodes/{id}                          - One node
//	GET  /api/nodes/{id}/children                 - Direct children of a node
//	GET  /api/nodes/{id}/labels                   - Label IDs attached to a node
//
// Administration:
//
//	GET  /api/admin/read-only                     - Current read-only state
//	POST /api/admin/read-only                     - Toggle read-only mode
//	GET  /api/admin/mode                          - Current migration mode (cqrs backend)
//	POST /api/admin/mode                          - Change migration mode (cqrs backend)
//	GET  /api/admin/sync-stats                    - Change tracking statistics (cqrs backend)
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(a.logRequests)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/changes", a.handleApplyChanges).Methods("POST")
	api.HandleFunc("/changes/{requestId}", a.handleGetBatch).Methods("GET")

	api.HandleFunc("/nodes", a.handleListNodes).Methods("GET")
	api.HandleFunc("/nodes/{id}", a.handleGetNode).Methods("GET")
	api.HandleFunc("/nodes/{id}/children", a.handleListChildNodes).Methods("GET")
	api.HandleFunc("/nodes/{id}/labels", a.handleListNodeLabels).Methods("GET")

	api.HandleFunc("/admin/read-only", a.handleGetReadOnly).Methods("GET")
	api.HandleFunc("/admin/read-only", a.handleSetReadOnly).Methods("POST")
	api.HandleFunc("/admin/mode", a.handleGetMode).Methods("GET")
	api.HandleFunc("/admin/mode", a.handleSetMode).Methods("POST")
	api.HandleFunc("/admin/sync-stats", a.handleSyncStats).Methods("GET")

	// Health check route (outside of /api prefix)
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}

// Run serves [App.Handler] on the configured port until ctx is cancelled,
// then shuts down gracefully, giving in-flight requests up to 5 seconds.
//
// With the cqrs backend and a non-zero Config.SyncInterval a forward sync
// also runs in the background for as long as the server does.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Str("backend", a.config.Backend).
		Str("mode", string(a.config.MigrationMode)).Bool("read_only", a.IsReadOnly()).
		Msg("Starting SurrealKeep server")

	if a.cqrs != nil && a.config.SyncInterval > 0 {
		a.log.Info().Dur("interval", a.config.SyncInterval).Msg("Starting background sync")
		a.cqrs.StartContinuousSync(ctx, a.config.SyncInterval)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
