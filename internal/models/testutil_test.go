// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweeparr/sweeparr/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testEncryptionKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func createTestInstance(t *testing.T, db *sql.DB) *Instance {
	t.Helper()

	store, err := NewInstanceStore(db, testEncryptionKey())
	require.NoError(t, err)

	instance, err := store.Create(context.Background(), "test-sonarr", "http://localhost:8989", InstanceKindSonarr, "secret-api-key")
	require.NoError(t, err)

	return instance
}
