// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/database"
	"github.com/sweeparr/sweeparr/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestInstanceStore(t *testing.T, db *sql.DB) *models.InstanceStore {
	t.Helper()

	store, err := models.NewInstanceStore(db, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	return store
}

func createTestInstance(t *testing.T, db *sql.DB) *models.Instance {
	t.Helper()

	store := newTestInstanceStore(t, db)
	instance, err := store.Create(context.Background(), "test-sonarr", "http://localhost:8989", models.InstanceKindSonarr, "secret-api-key")
	require.NoError(t, err)

	return instance
}

func newTestTracker(t *testing.T, db *sql.DB, instanceID, decayHours int) *StrikeTracker {
	t.Helper()
	return NewStrikeTracker(models.NewStrikeStore(db), instanceID, decayHours)
}

// stubClient records dispatched side effects instead of talking to a server.
type stubClient struct {
	mu sync.Mutex

	items    []arr.QueueItem
	fetchErr error

	removeErr error
	importErr error

	removed  []int64
	imported []int64
	searches int
}

func (c *stubClient) FetchQueue(ctx context.Context) ([]arr.QueueItem, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.items, nil
}

func (c *stubClient) RemoveItem(ctx context.Context, itemID int64, removeFromClient, addToBlocklist bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeErr != nil {
		return c.removeErr
	}
	c.removed = append(c.removed, itemID)
	return nil
}

func (c *stubClient) TriggerImport(ctx context.Context, itemID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.importErr != nil {
		return c.importErr
	}
	c.imported = append(c.imported, itemID)
	return nil
}

func (c *stubClient) TriggerSearch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches++
	return nil
}

func (c *stubClient) Ping(ctx context.Context) error {
	return nil
}

func (c *stubClient) removedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.removed...)
}

func (c *stubClient) searchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searches
}

func stubFactory(client *stubClient) arr.ClientFactory {
	return func(instance *models.Instance, apiKey string) arr.Client {
		return client
	}
}

// testEnv bundles the stores a Service needs against one temp database.
type testEnv struct {
	db        *sql.DB
	instances *models.InstanceStore
	configs   *models.CleanerConfigStore
	strikes   *models.StrikeStore
	attempts  *models.ImportAttemptStore
	logs      *models.CleanerLogStore

	instance *models.Instance
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	env := &testEnv{
		db:        db,
		instances: newTestInstanceStore(t, db),
		configs:   models.NewCleanerConfigStore(db),
		strikes:   models.NewStrikeStore(db),
		attempts:  models.NewImportAttemptStore(db),
		logs:      models.NewCleanerLogStore(db),
	}

	instance, err := env.instances.Create(context.Background(), "test-sonarr", "http://localhost:8989", models.InstanceKindSonarr, "secret-api-key")
	require.NoError(t, err)
	env.instance = instance

	return env
}

func (e *testEnv) saveConfig(t *testing.T, mutate func(*models.CleanerConfig)) *models.CleanerConfig {
	t.Helper()

	cfg := models.DefaultCleanerConfig(e.instance.ID)
	cfg.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	saved, err := e.configs.Upsert(context.Background(), cfg)
	require.NoError(t, err)

	return saved
}

func (e *testEnv) newService(client *stubClient) *Service {
	return NewService(e.instances, e.configs, e.strikes, e.attempts, e.logs, stubFactory(client), nil)
}
