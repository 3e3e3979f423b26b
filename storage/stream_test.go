package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/model"
)

func newTestRepo(t *testing.T) *StreamRepository {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "hansard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewStreamRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return repo
}

func TestOpen_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hansard.db")
	db, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open("mysql", path)
	assert.Error(t, err)
}

func TestBulkInsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.BulkInsert(ctx, []model.Stream{
		{ID: "a", Title: "Senate", RawPublishedAt: "2 days ago", Summary: "# Senate"},
		{ID: "b", Title: "National Assembly", RawPublishedAt: "1 day ago"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Empty(t, first.Failures)

	result, err := repo.BulkInsert(ctx, []model.Stream{
		{ID: "c", Title: "c", RawPublishedAt: "3 hours ago"},
		{ID: "d", Title: "d", RawPublishedAt: "4 hours ago"},
		{ID: "a", Title: "again", RawPublishedAt: "2 days ago"},
		{ID: "e", Title: "e", RawPublishedAt: "sometime"},
		{ID: "c", Title: "c twice", RawPublishedAt: "3 hours ago"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.ElementsMatch(t, []model.Failure{
		{ID: "e", Reason: model.InvalidPublishedAt("sometime")},
		{ID: "c", Reason: model.DuplicateEntry()},
		{ID: "a", Reason: model.DuplicateEntry()},
	}, result.Failures)

	existing, err := repo.ExistingIDs(ctx, []string{"a", "b", "c", "d", "e", "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}}, existing)
}

func TestBulkInsert_NothingValid(t *testing.T) {
	repo := newTestRepo(t)
	result, err := repo.BulkInsert(context.Background(), []model.Stream{{ID: "x", RawPublishedAt: "soon"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, []model.Failure{{ID: "x", Reason: model.InvalidPublishedAt("soon")}}, result.Failures)

	result, err = repo.BulkInsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Empty(t, result.Failures)
}

func TestBulkInsert_DatabaseError(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.db.Close())

	_, err := repo.BulkInsert(context.Background(), []model.Stream{{ID: "x", RawPublishedAt: "1 day ago"}})
	assert.Error(t, err)
}

func TestExistingIDs_Empty(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.ExistingIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.BulkInsert(ctx, []model.Stream{
		{ID: "old", Title: "old", RawPublishedAt: "3 weeks ago", Duration: "PT2H"},
		{ID: "new", Title: "new", RawPublishedAt: "1 hour ago", Summary: "## Summary", ViewCount: "42"},
		{ID: "mid", Title: "mid", RawPublishedAt: "2 days ago"},
	})
	require.NoError(t, err)

	streams, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, streams, 3)
	assert.Equal(t, "new", streams[0].ID)
	assert.Equal(t, "## Summary", streams[0].Summary)
	assert.Equal(t, "42", streams[0].ViewCount)
	assert.Equal(t, "1 hour ago", streams[0].RawPublishedAt)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), streams[0].PublishedAt, time.Minute)
	assert.Equal(t, "mid", streams[1].ID)
	assert.Equal(t, "old", streams[2].ID)
	assert.Equal(t, "PT2H", streams[2].Duration)
	assert.Empty(t, streams[2].Summary)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
