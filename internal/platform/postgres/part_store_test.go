package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to STOCKROOM_TEST_DATABASE_URL and applies migrations,
// skipping the test when no database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := testutils.IntegrationURL(t, testutils.EnvTestDatabaseURL)

	ctx := context.Background()
	db, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return db
}

func TestPartStoreMergeEnrichment(t *testing.T) {
	db := openTestDB(t)
	store := NewPartStore(db)
	ctx := context.Background()
	id := "P-" + uuid.NewString()
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM parts WHERE id = $1`, id) })

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, part.ErrNotFound)

	require.NoError(t, store.MergeEnrichment(ctx, id, part.Enrichment{
		TaskID:   "t1",
		Provider: "acme",
		Artifacts: map[string]any{
			"fetch-datasheet": map[string]any{"url": "a.pdf"},
			"fetch-image":     map[string]any{"url": "a.png"},
		},
	}))
	require.NoError(t, store.MergeEnrichment(ctx, id, part.Enrichment{
		TaskID:    "t2",
		Provider:  "acme",
		Artifacts: map[string]any{"fetch-image": map[string]any{"url": "b.png"}},
		Partial:   true,
	}))

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "t2", r.LastTaskID)
	assert.True(t, r.Partial)
	assert.Equal(t, map[string]any{"url": "a.pdf"}, r.Enrichment["fetch-datasheet"])
	assert.Equal(t, map[string]any{"url": "b.png"}, r.Enrichment["fetch-image"])
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_parts.sql", entries[0].Name())
}
