package surrealkeep

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/audit"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/reconcile"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store/cqrs"
)

// maxBatchBytes bounds the size of a change request body.
const maxBatchBytes = 8 << 20

// handleApplyChanges reconciles one batch of nodes inside a single
// transaction.
//
// HTTP Method: POST
// Endpoint: /api/changes
//
// The response body is always the batch outcome, with the request ID the
// server assigned when the client sent none:
//   - 200 OK: every node was applied and the transaction committed
//   - 400 Bad Request: malformed JSON, or a node with no ID or an unknown type
//   - 409 Conflict: a uniqueness or reference constraint failed
//   - 422 Unprocessable Entity: the batch needs an unsupported operation
//     such as creating an attachment
//   - 503 Service Unavailable: the application is read-only
//   - 500 Internal Server Error: anything else
//
// Whenever the status is not 200 nothing of the batch was stored.
//
// Usage example:
//
//	POST /api/changes
//	{
//	  "requestId": "3f0c...",
//	  "nodeList": [
//	    {"nodeId": "n1", "nodeType": "LIST", "parentId": "root", "labels": [{"labelId": 4, "selected": true}]},
//	    {"nodeId": "i1", "nodeType": "LIST_ITEM", "parentId": "n1", "title": "milk"}
//	  ]
//	}
func (a *App) handleApplyChanges(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	outcome, err := a.service.Submit(r.Context(), &req)
	if err != nil {
		respondJSON(w, statusFor(err), outcome)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (a *App) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		respondError(w, http.StatusNotImplemented, "Batch audit log is not configured")
		return
	}

	requestID := mux.Vars(r)["requestId"]
	outcome, err := a.audit.Lookup(r.Context(), requestID)
	if errors.Is(err, audit.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// Node handlers serve the stored state. Reads go to the read store of the
// cqrs backend and keep working in read-only mode.

func (a *App) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.store.ListNodes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

func (a *App) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDVar(w, r)
	if !ok {
		return
	}

	node, err := a.store.GetNode(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if node == nil {
		respondError(w, http.StatusNotFound, "Node not found")
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (a *App) handleListChildNodes(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDVar(w, r)
	if !ok {
		return
	}

	nodes, err := a.store.ListChildNodes(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

func (a *App) handleListNodeLabels(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDVar(w, r)
	if !ok {
		return
	}

	labels, err := a.store.ListNodeLabels(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, labels)
}

func nodeIDVar(w http.ResponseWriter, r *http.Request) (models.NodeID, bool) {
	id, err := models.ParseNodeID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid node ID")
		return "", false
	}
	return id, true
}

// Admin handlers control the application while a migration is running.
// They are unauthenticated and meant for operators on a private network.

type readOnlyState struct {
	ReadOnly bool `json:"readOnly"`
}

type modeState struct {
	Mode cqrs.MigrationMode `json:"mode"`
}

func (a *App) handleGetReadOnly(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, readOnlyState{ReadOnly: a.IsReadOnly()})
}

func (a *App) handleSetReadOnly(w http.ResponseWriter, r *http.Request) {
	var req readOnlyState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	a.SetReadOnly(req.ReadOnly)
	respondJSON(w, http.StatusOK, readOnlyState{ReadOnly: a.IsReadOnly()})
}

func (a *App) handleGetMode(w http.ResponseWriter, r *http.Request) {
	if a.cqrs == nil {
		respondError(w, http.StatusConflict, "Migration mode requires the cqrs backend")
		return
	}
	respondJSON(w, http.StatusOK, modeState{Mode: a.cqrs.GetMode()})
}

func (a *App) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if a.cqrs == nil {
		respondError(w, http.StatusConflict, "Migration mode requires the cqrs backend")
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	mode, err := cqrs.ParseMigrationMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.cqrs.SetMode(mode); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, modeState{Mode: a.cqrs.GetMode()})
}

func (a *App) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if a.cqrs == nil {
		respondError(w, http.StatusConflict, "Sync statistics require the cqrs backend")
		return
	}
	stats, err := a.cqrs.GetSyncStats(r.Context())
	if err != nil {
		respondError(w, http.StatusNotImplemented, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// statusFor maps a failed batch to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrInvalidNode):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrReadOnly):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response with the specified HTTP status code and payload.
// A nil payload sends headers only.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends {"error": message} with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth reports that the server is up, which backend it uses and
// whether it accepts change requests.
//
// HTTP Method: GET
// Endpoints: /health, /api/health
//
// Response always returns HTTP 200 OK:
//
//	{"status":"healthy","backend":"cqrs","mode":"single","readOnly":false,"audit":"ok","time":1640995200}
//
// audit is "disabled", "ok" or "unavailable". An unreachable audit log does
// not stop batches from being applied, so it does not make the service
// unhealthy.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":   "healthy",
		"backend":  a.config.Backend,
		"readOnly": a.IsReadOnly(),
		"time":     time.Now().Unix(),
	}
	if a.cqrs != nil {
		response["mode"] = a.cqrs.GetMode()
	}

	switch {
	case a.audit == nil:
		response["audit"] = "disabled"
	case a.audit.Ping(r.Context()) != nil:
		response["audit"] = "unavailable"
	default:
		response["audit"] = "ok"
	}
	respondJSON(w, http.StatusOK, response)
}
