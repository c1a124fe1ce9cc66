package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	watches map[string]*Watch
}

func newMemoryStore() *memoryStore {
	return &memoryStore{watches: make(map[string]*Watch)}
}

func (m *memoryStore) LoadWatches(_ context.Context) ([]*Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Watch, 0, len(m.watches))
	for _, w := range m.watches {
		ret = append(ret, cloneWatch(w))
	}
	return ret, nil
}

func (m *memoryStore) UpsertWatch(_ context.Context, w *Watch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[w.ID] = cloneWatch(w)
	return nil
}

func (m *memoryStore) DeleteWatch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watches, id)
	return nil
}

func (m *memoryStore) get(id string) (*Watch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[id]
	return cloneWatch(w), ok
}

func waitForStatus(t *testing.T, q *Queue, id string, status Status) *Watch {
	t.Helper()
	var got *Watch
	require.Eventually(t, func() bool {
		w, ok := q.Get(id)
		got = w
		return ok && w.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestQueue_Enqueue_DeduplicatesActiveWatch(t *testing.T) {
	q := NewQueue(2, nil)

	a, createdA := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1", Source: "cli"})
	b, createdB := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1", Source: "http"})
	c, createdC := q.Enqueue(Request{Kind: job.KindImage, JobID: "job-1"})

	require.True(t, createdA)
	require.False(t, createdB)
	require.True(t, createdC)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, "file|job-1", a.DedupeKey)
}

func TestQueue_Worker_RecordsProgressAndCompletion(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *Watch, progress poller.ProgressFunc) error {
		progress(40)
		progress(100)
		return nil
	})
	defer q.Stop()

	w, _ := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1"})

	got := waitForStatus(t, q, w.ID, StatusCompleted)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 100, *got.Progress)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.FinishedAt)
}

func TestQueue_Worker_ClassifiesOutcomes(t *testing.T) {
	outcomes := map[string]error{
		"failed":  &poller.PollError{Type: poller.ErrJobFailed, Message: "Processing error"},
		"timeout": &poller.PollError{Type: poller.ErrPollTimeout, Message: "Job polling timed out"},
		"error":   &poller.PollError{Type: poller.ErrTransport, Message: "status query failed", Cause: assert.AnError},
	}

	q := NewQueue(2, nil)
	q.Start(func(_ context.Context, w *Watch, _ poller.ProgressFunc) error {
		return outcomes[w.JobID]
	})
	defer q.Stop()

	failed, _ := q.Enqueue(Request{Kind: job.KindImage, JobID: "failed"})
	timeout, _ := q.Enqueue(Request{Kind: job.KindImage, JobID: "timeout"})
	errored, _ := q.Enqueue(Request{Kind: job.KindImage, JobID: "error"})

	got := waitForStatus(t, q, failed.ID, StatusFailed)
	assert.Equal(t, "Processing error", got.Error)

	got = waitForStatus(t, q, timeout.ID, StatusTimeout)
	assert.Equal(t, "Job polling timed out", got.Error)

	got = waitForStatus(t, q, errored.ID, StatusError)
	assert.Equal(t, assert.AnError.Error(), got.Error)
}

func TestQueue_Enqueue_AllowsNewWatchAfterFinish(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(context.Context, *Watch, poller.ProgressFunc) error { return nil })
	defer q.Stop()

	first, created := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1"})
	require.True(t, created)
	waitForStatus(t, q, first.ID, StatusCompleted)

	second, created := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1"})
	require.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_RecoversPendingAndRunningWatchesFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.watches["watch-3"] = &Watch{
		ID: "watch-3", Kind: job.KindFile, JobID: "job-a", DedupeKey: "file|job-a",
		Status: StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	store.watches["watch-7"] = &Watch{
		ID: "watch-7", Kind: job.KindImage, JobID: "job-b", DedupeKey: "image|job-b",
		Status: StatusRunning, CreatedAt: now, UpdatedAt: now,
	}

	q := NewQueue(1, store)

	got, ok := q.Get("watch-7")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)

	_, created := q.Enqueue(Request{Kind: job.KindImage, JobID: "job-b"})
	assert.False(t, created, "restored active watch keeps its dedupe key")

	next, created := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-c"})
	require.True(t, created)
	assert.Equal(t, "watch-8", next.ID)

	q.Start(func(context.Context, *Watch, poller.ProgressFunc) error { return nil })
	defer q.Stop()

	waitForStatus(t, q, "watch-3", StatusCompleted)
	waitForStatus(t, q, "watch-7", StatusCompleted)

	require.Eventually(t, func() bool {
		w, ok := store.get("watch-7")
		return ok && w.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Stop_LeavesInterruptedWatchRunning(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)

	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *Watch, _ poller.ProgressFunc) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	w, _ := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not start")
	}
	q.Stop()

	stored, ok := store.get(w.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, stored.Status)
}

func TestQueue_PruneBefore(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)
	q.Start(func(context.Context, *Watch, poller.ProgressFunc) error { return nil })
	defer q.Stop()

	done, _ := q.Enqueue(Request{Kind: job.KindFile, JobID: "job-1"})
	waitForStatus(t, q, done.ID, StatusCompleted)

	assert.Empty(t, q.PruneBefore(time.Now().Add(-time.Hour)))

	pruned := q.PruneBefore(time.Now().Add(time.Second))
	assert.Equal(t, []string{done.ID}, pruned)
	_, ok := q.Get(done.ID)
	assert.False(t, ok)
	_, ok = store.get(done.ID)
	assert.False(t, ok)
}

func TestQueue_PrunesOverflowOldestFirst(t *testing.T) {
	q := NewQueue(1, nil, WithMaxEntries(2))
	q.Start(func(context.Context, *Watch, poller.ProgressFunc) error { return nil })
	defer q.Stop()

	ids := make([]string, 0, 3)
	for _, id := range []string{"a", "b", "c"} {
		w, _ := q.Enqueue(Request{Kind: job.KindFile, JobID: id})
		waitForStatus(t, q, w.ID, StatusCompleted)
		ids = append(ids, w.ID)
	}

	require.Eventually(t, func() bool { return len(q.List()) == 2 }, time.Second, 10*time.Millisecond)
	_, ok := q.Get(ids[0])
	assert.False(t, ok)

	list := q.List()
	assert.Equal(t, ids[2], list[0].ID)
}
