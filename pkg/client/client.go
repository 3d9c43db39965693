// Package client provides a Go HTTP client for the surrealkeep API.
//
// It is used by integration tools, load generators and the end-to-end tests
// to push change requests the way an offline note-taking client would, and to
// read back what the server stored.
//
// # Client Architecture
//
// [Client] mirrors the server's endpoint structure:
//   - Change requests: submit a batch of nodes, look up an earlier outcome
//   - Nodes: read stored nodes, their children and their labels
//   - Administration: read-only toggle, migration mode and sync statistics
//
// All operations use the same [github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models]
// types as the server.
//
// # Error Handling
//
// Responses with a status of 400 or above are returned as [*APIError], which
// carries the status code and the body. A rejected change request still
// decodes into a [models.BatchOutcome], so [Client.ApplyChanges] returns both
// the outcome and the error.
//
// # Usage
//
//	c := client.NewClient("http://localhost:8080")
//
//	outcome, err := c.ApplyChanges(ctx, &models.ChangeRequest{
//		Nodes: []models.Node{
//			{ID: "n1", Kind: models.KindList, Labels: []models.Label{{ID: 4, Selected: true}}},
//			{ID: "i1", Kind: models.KindListItem, Parent: models.Under("n1"), Title: "milk"},
//		},
//	})
//	if err != nil {
//		return err
//	}
//	fmt.Println(outcome.RequestID, outcome.Counts.Inserted)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// Client provides typed access to the surrealkeep REST API.
//
// Client instances are safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is returned for any response with a status of 400 or above.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, body=%s", e.StatusCode, e.Body)
}

// NewClient creates a new surrealkeep API client.
//
// The baseURL should include the protocol and host (e.g., "http://localhost:8080")
// but should not include a trailing slash or API path prefix.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into the target struct
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// get is the common shape of every read endpoint.
func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var result T
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return result, err
	}
	if err := decodeResponse(resp, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return get[map[string]any](ctx, c, "/health")
}

// Change requests

// ApplyChanges submits one batch. The server applies it in a single
// transaction.
//
// When the server rejects the batch the returned error is an [*APIError] and
// the outcome, if the body held one, is returned alongside it.
func (c *Client) ApplyChanges(ctx context.Context, req *models.ChangeRequest) (*models.BatchOutcome, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/changes", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var outcome models.BatchOutcome
	decodeErr := json.Unmarshal(body, &outcome)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if decodeErr != nil || outcome.Status == "" {
			return nil, apiErr
		}
		return &outcome, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &outcome, nil
}

// GetBatch retrieves the recorded outcome of an earlier change request.
func (c *Client) GetBatch(ctx context.Context, requestID string) (*models.BatchOutcome, error) {
	outcome, err := get[models.BatchOutcome](ctx, c, "/api/changes/"+url.PathEscape(requestID))
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Nodes

// GetNode retrieves a stored node by ID
func (c *Client) GetNode(ctx context.Context, id models.NodeID) (*models.Node, error) {
	node, err := get[models.Node](ctx, c, "/api/nodes/"+url.PathEscape(id.String()))
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// ListNodes retrieves every stored node
func (c *Client) ListNodes(ctx context.Context) ([]models.Node, error) {
	return get[[]models.Node](ctx, c, "/api/nodes")
}

// ListChildNodes retrieves the direct children of a node
func (c *Client) ListChildNodes(ctx context.Context, parent models.NodeID) ([]models.Node, error) {
	return get[[]models.Node](ctx, c, fmt.Sprintf("/api/nodes/%s/children", url.PathEscape(parent.String())))
}

// ListNodeLabels retrieves the label IDs attached to a node
func (c *Client) ListNodeLabels(ctx context.Context, id models.NodeID) ([]models.LabelID, error) {
	return get[[]models.LabelID](ctx, c, fmt.Sprintf("/api/nodes/%s/labels", url.PathEscape(id.String())))
}

// Administration

type readOnlyState struct {
	ReadOnly bool `json:"readOnly"`
}

type modeState struct {
	Mode string `json:"mode"`
}

// GetReadOnly reports whether the server rejects change requests
func (c *Client) GetReadOnly(ctx context.Context) (bool, error) {
	state, err := get[readOnlyState](ctx, c, "/api/admin/read-only")
	return state.ReadOnly, err
}

// SetReadOnly switches the server in or out of read-only mode
func (c *Client) SetReadOnly(ctx context.Context, readOnly bool) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/admin/read-only", readOnlyState{ReadOnly: readOnly})
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// GetMode retrieves the current migration mode of a cqrs server
func (c *Client) GetMode(ctx context.Context) (string, error) {
	state, err := get[modeState](ctx, c, "/api/admin/mode")
	return state.Mode, err
}

// SetMode changes the migration mode of a cqrs server and returns the mode
// in effect afterwards.
func (c *Client) SetMode(ctx context.Context, mode string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/admin/mode", modeState{Mode: mode})
	if err != nil {
		return "", err
	}
	var state modeState
	if err := decodeResponse(resp, &state); err != nil {
		return "", err
	}
	return state.Mode, nil
}

// SyncStats retrieves change tracking statistics of a cqrs server
func (c *Client) SyncStats(ctx context.Context) (*store.ChangeStats, error) {
	stats, err := get[store.ChangeStats](ctx, c, "/api/admin/sync-stats")
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
