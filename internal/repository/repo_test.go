package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rdvm/jukebox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenDB(&config.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepo(db)
}

func TestQueueFIFO(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, Track{Title: "one", URL: "u1", AddedBy: "alice"})
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, Track{Title: "two", URL: "u2", AddedBy: "bob"})
	require.NoError(t, err)

	next, err := repo.NextInQueue(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)
	assert.Equal(t, "one", next.Title)
	assert.Equal(t, "alice", next.AddedBy)

	require.NoError(t, repo.DeleteQueueEntry(ctx, first.ID))

	next, err = repo.NextInQueue(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func TestNextInQueueEmpty(t *testing.T) {
	repo := newTestRepo(t)

	next, err := repo.NextInQueue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestQueueEntryByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.Enqueue(ctx, Track{Title: "one", URL: "u1"})
	require.NoError(t, err)

	got, err := repo.QueueEntryByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "one", got.Title)

	got, err = repo.QueueEntryByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListQueueOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := repo.Enqueue(ctx, Track{Title: title, URL: title})
		require.NoError(t, err)
	}

	entries, err := repo.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Title)
	assert.Equal(t, "c", entries[2].Title)
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AppendHistory(ctx, Track{Title: "old", URL: "u1", AddedBy: "alice"}))
	require.NoError(t, repo.AppendHistory(ctx, Track{Title: "new", URL: "u2", AddedBy: "bob"}))

	entries, err := repo.ListHistory(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].Title)
	assert.Equal(t, "bob", entries[0].RequestedBy)

	entries, err = repo.ListHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHistoryEntryByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AppendHistory(ctx, Track{Title: "old", URL: "u1", AddedBy: "alice"}))
	entries, err := repo.ListHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	h, err := repo.HistoryEntryByID(ctx, entries[0].ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "old", h.Title)

	h, err = repo.HistoryEntryByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestSettingsUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.GetSetting(ctx, "volume")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetSetting(ctx, "volume", "80"))
	require.NoError(t, repo.SetSetting(ctx, "volume", "65"))

	v, ok, err := repo.GetSetting(ctx, "volume")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "65", v)
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	u := &User{Username: "alice", PasswordHash: "hash", Name: "Alice", Role: RoleAdmin}
	require.NoError(t, repo.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)

	count, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = repo.UserByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}
