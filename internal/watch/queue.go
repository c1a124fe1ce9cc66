package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/MimeLyc/stratum/pkg/log"
)

// Executor polls the backend job behind w, reporting progress as it goes.
type Executor func(ctx context.Context, w *Watch, progress poller.ProgressFunc) error

type Queue struct {
	workerCount int
	maxEntries  int
	store       Store

	mu         sync.RWMutex
	watches    map[string]*Watch
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	stopped    atomic.Bool
	pendingIDs chan string
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type Option func(*Queue)

func WithMaxEntries(n int) Option {
	return func(q *Queue) {
		q.maxEntries = n
	}
}

func NewQueue(workerCount int, store Store, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxEntries:  1000,
		store:       store,
		watches:     make(map[string]*Watch),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

func dedupeKey(req Request) string {
	if req.DedupeKey != "" {
		return req.DedupeKey
	}
	return fmt.Sprintf("%s|%s", req.Kind, req.JobID)
}

// Enqueue registers a watch. While an earlier watch with the same dedupe key
// is still active, that one is returned with created=false.
func (q *Queue) Enqueue(req Request) (*Watch, bool) {
	now := time.Now()
	key := dedupeKey(req)

	q.mu.Lock()
	if id, ok := q.dedupe[key]; ok {
		if existing, exists := q.watches[id]; exists {
			snapshot := cloneWatch(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, key)
	}

	id := fmt.Sprintf("watch-%d", atomic.AddUint64(&q.idCounter, 1))
	w := &Watch{
		ID:        id,
		Kind:      req.Kind,
		JobID:     req.JobID,
		Source:    req.Source,
		DedupeKey: key,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.watches[id] = w
	q.dedupe[key] = id
	started := q.started
	snapshot := cloneWatch(w)
	q.mu.Unlock()

	q.persist(snapshot)
	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*Watch, bool) {
	q.mu.RLock()
	w, ok := q.watches[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneWatch(w), true
}

// List returns all watches, newest first.
func (q *Queue) List() []*Watch {
	q.mu.RLock()
	ret := make([]*Watch, 0, len(q.watches))
	for _, w := range q.watches {
		ret = append(ret, cloneWatch(w))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID > ret[j].ID
		}
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]string, 0)
	for id, w := range q.watches {
		if w.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	q.mu.Unlock()

	for _, id := range pending {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels in-flight polls and waits for the workers. Interrupted
// watches stay running in the store and are resumed on the next start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			w, ok := q.markRunning(id)
			if !ok {
				continue
			}

			err := exec(q.ctx, w, func(progress int) {
				q.updateProgress(id, progress)
			})
			if q.stopped.Load() && errors.Is(err, context.Canceled) {
				log.Info("Watch %s interrupted by shutdown", id)
				return
			}
			q.markFinished(id, err)
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*Watch, bool) {
	q.mu.Lock()
	w, ok := q.watches[id]
	if !ok || w.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	w.Status = StatusRunning
	w.UpdatedAt = time.Now()
	snapshot := cloneWatch(w)
	q.mu.Unlock()

	q.persist(snapshot)
	return snapshot, true
}

func (q *Queue) updateProgress(id string, progress int) {
	q.mu.Lock()
	w, ok := q.watches[id]
	if !ok || w.Status != StatusRunning {
		q.mu.Unlock()
		return
	}
	p := progress
	w.Progress = &p
	w.UpdatedAt = time.Now()
	snapshot := cloneWatch(w)
	q.mu.Unlock()

	q.persist(snapshot)
}

// statusFor maps a poll outcome onto a terminal watch status.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case poller.IsErrorType(err, poller.ErrJobFailed):
		return StatusFailed
	case poller.IsErrorType(err, poller.ErrPollTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}

func (q *Queue) markFinished(id string, err error) {
	now := time.Now()

	q.mu.Lock()
	w, ok := q.watches[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	w.Status = statusFor(err)
	w.Error = poller.FailureMessage(err)
	w.UpdatedAt = now
	w.FinishedAt = &now
	q.releaseDedupeLocked(w)
	pruned := q.pruneOverflowLocked()
	snapshot := cloneWatch(w)
	q.mu.Unlock()

	if err != nil {
		log.Warn("Watch %s (%s job %s) finished as %s: %v", id, snapshot.Kind, snapshot.JobID, snapshot.Status, err)
	} else {
		log.Info("Watch %s (%s job %s) completed", id, snapshot.Kind, snapshot.JobID)
	}
	q.persist(snapshot)
	q.deleteFromStore(pruned)
}

func (q *Queue) releaseDedupeLocked(w *Watch) {
	if w == nil || w.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[w.DedupeKey]; ok && id == w.ID {
		delete(q.dedupe, w.DedupeKey)
	}
}

func (q *Queue) terminalOldestFirstLocked() []*Watch {
	terminal := make([]*Watch, 0, len(q.watches))
	for _, w := range q.watches {
		if w == nil || w.Status.Active() {
			continue
		}
		terminal = append(terminal, w)
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})
	return terminal
}

func (q *Queue) removeLocked(w *Watch) {
	q.releaseDedupeLocked(w)
	delete(q.watches, w.ID)
}

func (q *Queue) pruneOverflowLocked() []string {
	if q.maxEntries <= 0 || len(q.watches) <= q.maxEntries {
		return nil
	}

	toRemove := len(q.watches) - q.maxEntries
	terminal := q.terminalOldestFirstLocked()
	if toRemove > len(terminal) {
		toRemove = len(terminal)
	}

	pruned := make([]string, 0, toRemove)
	for _, w := range terminal[:toRemove] {
		q.removeLocked(w)
		pruned = append(pruned, w.ID)
	}
	return pruned
}

// PruneBefore drops finished watches last updated before cutoff.
func (q *Queue) PruneBefore(cutoff time.Time) []string {
	q.mu.Lock()
	pruned := make([]string, 0)
	for _, w := range q.terminalOldestFirstLocked() {
		if !w.UpdatedAt.Before(cutoff) {
			break
		}
		q.removeLocked(w)
		pruned = append(pruned, w.ID)
	}
	q.mu.Unlock()

	q.deleteFromStore(pruned)
	return pruned
}

func (q *Queue) deleteFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteWatch(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned watch %s from store: %v", id, err)
		}
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadWatches(ctx)
	if err != nil {
		log.Error("Failed to load watches from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Watch, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		w := cloneWatch(raw)
		if w.Status == StatusRunning {
			w.Status = StatusPending
			w.UpdatedAt = now
			toPersist = append(toPersist, cloneWatch(w))
		}
		q.watches[w.ID] = w
		if w.Status.Active() && w.DedupeKey != "" {
			q.dedupe[w.DedupeKey] = w.ID
		}
		q.updateIDCounterLocked(w.ID)
	}
	q.mu.Unlock()

	if len(loaded) > 0 {
		log.Info("Restored %d watches (%d resumed)", len(loaded), len(toPersist))
	}
	for _, w := range toPersist {
		q.persist(w)
	}
}

func (q *Queue) updateIDCounterLocked(id string) {
	if !strings.HasPrefix(id, "watch-") {
		return
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(id, "watch-"), 10, 64)
	if err != nil {
		return
	}
	if n > q.idCounter {
		q.idCounter = n
	}
}

func (q *Queue) persist(w *Watch) {
	if q.store == nil || w == nil {
		return
	}
	if err := q.store.UpsertWatch(context.Background(), w); err != nil {
		log.Error("Failed to persist watch %s: %v", w.ID, err)
	}
}

func cloneWatch(w *Watch) *Watch {
	if w == nil {
		return nil
	}
	tmp := *w
	if w.Progress != nil {
		p := *w.Progress
		tmp.Progress = &p
	}
	if w.FinishedAt != nil {
		f := *w.FinishedAt
		tmp.FinishedAt = &f
	}
	return &tmp
}
