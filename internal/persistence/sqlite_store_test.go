package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/MimeLyc/stratum/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_WatchesRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "stratum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	progress := 42
	w := &watch.Watch{
		ID:        "watch-1",
		Kind:      job.KindImage,
		JobID:     "img-1",
		Source:    "http",
		DedupeKey: "image|img-1",
		Status:    watch.StatusRunning,
		Progress:  &progress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertWatch(ctx, w))

	all, err := store.LoadWatches(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, w.ID, all[0].ID)
	assert.Equal(t, job.KindImage, all[0].Kind)
	assert.Equal(t, watch.StatusRunning, all[0].Status)
	require.NotNil(t, all[0].Progress)
	assert.Equal(t, 42, *all[0].Progress)
	assert.Nil(t, all[0].FinishedAt)
	assert.True(t, now.Equal(all[0].CreatedAt.UTC()))

	finished := now.Add(time.Second)
	w.Status = watch.StatusFailed
	w.Error = "Processing error"
	w.FinishedAt = &finished
	w.UpdatedAt = finished
	require.NoError(t, store.UpsertWatch(ctx, w))

	all, err = store.LoadWatches(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, watch.StatusFailed, all[0].Status)
	assert.Equal(t, "Processing error", all[0].Error)
	require.NotNil(t, all[0].FinishedAt)
	assert.True(t, finished.Equal(all[0].FinishedAt.UTC()))

	require.NoError(t, store.DeleteWatch(ctx, w.ID))
	all, err = store.LoadWatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_ReopenKeepsSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "stratum.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, store.UpsertWatch(context.Background(), &watch.Watch{
		ID: "watch-1", Kind: job.KindFile, JobID: "job-1", Status: watch.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	all, err := store.LoadWatches(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Progress)
}

func TestSQLiteStore_BacksQueueRecovery(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stratum.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	first := watch.NewQueue(1, store)
	w, created := first.Enqueue(watch.Request{Kind: job.KindFile, JobID: "job-1", Source: "cli"})
	require.True(t, created)

	second := watch.NewQueue(1, store)
	second.Start(func(_ context.Context, _ *watch.Watch, progress poller.ProgressFunc) error {
		progress(100)
		return nil
	})
	defer second.Stop()

	require.Eventually(t, func() bool {
		got, ok := second.Get(w.ID)
		return ok && got.Status == watch.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}
