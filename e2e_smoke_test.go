//go:build smoke

// Package surrealkeep_test provides smoke testing for a running SurrealKeep server.
//
// Smoke tests look for correctness bugs, not performance issues. Every test
// verifies that what the virtual clients pushed is exactly what the server
// stores.
//
// Test Modes:
//
//  1. Standard Test (default):
//     Each virtual client edits its own notes and lists offline and pushes them
//     in several batches.
//
//  2. Shared List Test (SMOKE_SHARED_LIST=true):
//     All clients push items onto the SAME list concurrently. Each batch must
//     either land completely or not at all.
//
// Examples:
//
//	go run ./cmd/surrealkeep run &
//	go test -tags=smoke -count=1 -run TestE2ESmoke .
//	SMOKE_SHARED_LIST=true SMOKE_NUM_CLIENTS=50 go test -tags=smoke -count=1 -run TestE2ESmoke .
package surrealkeep_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/client"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeeptesting"
)

// SmokeTestConfig holds configuration for smoke tests
type SmokeTestConfig struct {
	BaseURL     string
	NumClients  int           // Number of concurrent virtual clients
	Timeout     time.Duration // Overall test timeout
	LaunchDelay time.Duration // Delay between launching clients

	SharedList          bool    // Whether clients push onto one shared list
	ItemsPerClient      int     // Batches each client pushes in the shared list test
	RequiredSuccessRate float64 // Minimum success rate (0-100)
}

// DefaultConfig returns a default smoke test configuration
func DefaultConfig() *SmokeTestConfig {
	return &SmokeTestConfig{
		BaseURL:             getEnvOrDefault("SURREALKEEP_URL", "http://localhost:8080"),
		NumClients:          getEnvOrDefaultInt("SMOKE_NUM_CLIENTS", 10),
		Timeout:             getEnvOrDefaultDuration("SMOKE_TIMEOUT", 5*time.Minute),
		LaunchDelay:         getEnvOrDefaultDuration("SMOKE_LAUNCH_DELAY", 10*time.Millisecond),
		SharedList:          getEnvOrDefaultBool("SMOKE_SHARED_LIST", false),
		ItemsPerClient:      getEnvOrDefaultInt("SMOKE_ITEMS_PER_CLIENT", 20),
		RequiredSuccessRate: getEnvOrDefaultFloat("SMOKE_SUCCESS_RATE", 100.0),
	}
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// TestE2ESmoke runs the smoke test against a running server.
//
// Run with: go test -tags=smoke -count=1 -run TestE2ESmoke .
func TestE2ESmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping smoke test in short mode")
	}

	config := DefaultConfig()
	require.Greater(t, config.NumClients, 0, "NumClients must be positive")

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	health, err := client.NewClient(config.BaseURL).Health(ctx)
	require.NoError(t, err, "Server health check failed")
	require.Equal(t, "healthy", health["status"], "Server is not healthy")
	require.Equal(t, false, health["readOnly"], "Server is read-only")

	t.Logf("=== Smoke Test Configuration ===")
	t.Logf("Base URL: %s", config.BaseURL)
	t.Logf("Backend: %v", health["backend"])
	t.Logf("Number of clients: %d", config.NumClients)
	t.Logf("Shared list: %v", config.SharedList)

	if config.SharedList {
		runSharedListTest(t, ctx, config)
	} else {
		runStandardTest(t, ctx, config)
	}
}

// runStandardTest runs one scenario per virtual client
func runStandardTest(t *testing.T, ctx context.Context, config *SmokeTestConfig) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)

	clients := make([]*surrealkeeptesting.VirtualClient, config.NumClients)
	startTime := time.Now()
	for i := range clients {
		clients[i] = surrealkeeptesting.NewVirtualClient(i, config.BaseURL)

		wg.Add(1)
		go func(vc *surrealkeeptesting.VirtualClient) {
			defer wg.Done()
			if err := vc.RunScenario(ctx); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("client %d failed: %w", vc.Index, err))
				mu.Unlock()
			}
		}(clients[i])

		if config.LaunchDelay > 0 {
			time.Sleep(config.LaunchDelay)
		}
	}
	wg.Wait()

	duration := time.Since(startTime)
	var batches int
	for _, vc := range clients {
		batches += len(vc.Outcomes)
	}
	successRate := float64(config.NumClients-len(failed)) / float64(config.NumClients) * 100

	t.Logf("=== Test Results ===")
	t.Logf("Duration: %v", duration)
	t.Logf("Committed batches: %d", batches)
	t.Logf("Failed clients: %d", len(failed))
	t.Logf("Batches per second: %.2f", float64(batches)/duration.Seconds())
	for i, err := range failed {
		if i == 10 {
			break
		}
		t.Logf("  Error %d: %v", i+1, err)
	}

	require.GreaterOrEqual(t, successRate, config.RequiredSuccessRate,
		"Success rate %.2f%% below required %.2f%%", successRate, config.RequiredSuccessRate)
}

// runSharedListTest has every client push single-item batches onto one list.
// The list must end up with exactly the items whose batch committed.
func runSharedListTest(t *testing.T, ctx context.Context, config *SmokeTestConfig) {
	owner := client.NewClient(config.BaseURL)
	list := models.NodeID("shared-" + uuid.NewString())
	_, err := owner.ApplyChanges(ctx, &models.ChangeRequest{
		Nodes: []models.Node{{ID: list, Kind: models.KindList, Title: "Shared List"}},
	})
	require.NoError(t, err, "Failed to create shared list")
	t.Logf("Created shared list %s", list)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		failed    int
	)
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			c := client.NewClient(config.BaseURL)
			for j := 0; j < config.ItemsPerClient && ctx.Err() == nil; j++ {
				now := time.Now().UTC()
				_, err := c.ApplyChanges(ctx, &models.ChangeRequest{Nodes: []models.Node{{
					ID:         models.NodeID(fmt.Sprintf("%s-%d-%d", list, index, j)),
					Kind:       models.KindListItem,
					Parent:     models.Under(list),
					Title:      fmt.Sprintf("Item from client %d at %s", index, now.Format("15:04:05")),
					Timestamps: models.Timestamps{Created: now, Updated: now},
				}}})

				mu.Lock()
				if err != nil {
					failed++
				} else {
					committed++
				}
				mu.Unlock()
			}
		}(i)

		if config.LaunchDelay > 0 {
			time.Sleep(config.LaunchDelay)
		}
	}
	wg.Wait()

	items, err := owner.ListChildNodes(ctx, list)
	require.NoError(t, err, "Failed to list items")

	t.Logf("=== Shared List Test Results ===")
	t.Logf("Committed batches: %d", committed)
	t.Logf("Failed batches: %d", failed)
	t.Logf("Final item count: %d", len(items))

	require.Len(t, items, committed, "every committed item and nothing else is stored")
	successRate := float64(committed) / float64(committed+failed) * 100
	require.GreaterOrEqual(t, successRate, config.RequiredSuccessRate,
		"Success rate %.2f%% below required %.2f%%", successRate, config.RequiredSuccessRate)

	_, err = owner.ApplyChanges(ctx, &models.ChangeRequest{
		Nodes: []models.Node{{ID: list, Kind: models.KindList, Deleted: true}},
	})
	require.NoError(t, err, "Failed to delete shared list")
}
