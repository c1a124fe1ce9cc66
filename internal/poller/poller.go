package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/pkg/log"
)

const (
	DefaultInterval = 1000 * time.Millisecond
	DefaultTimeout  = 300000 * time.Millisecond
)

// Source answers "what is the status of job X".
type Source interface {
	JobStatus(ctx context.Context, jobID string) (*job.Job, error)
}

type SourceFunc func(ctx context.Context, jobID string) (*job.Job, error)

func (f SourceFunc) JobStatus(ctx context.Context, jobID string) (*job.Job, error) {
	return f(ctx, jobID)
}

// ProgressFunc receives the progress of every snapshot that carries one.
// It runs on the polling goroutine, so a slow sink delays the next query.
type ProgressFunc func(progress int)

type Options struct {
	// Interval is the wait between a query returning and the next query.
	Interval time.Duration
	// Timeout is the wall-clock budget measured from the first query.
	Timeout    time.Duration
	OnProgress ProgressFunc
}

func DefaultOptions() Options {
	return Options{
		Interval: DefaultInterval,
		Timeout:  DefaultTimeout,
	}
}

func (o Options) validate(jobID string) error {
	if jobID == "" {
		return invalidOptions(jobID, "job id is required")
	}
	if o.Interval <= 0 {
		return invalidOptions(jobID, fmt.Sprintf("interval must be positive, got %s", o.Interval))
	}
	if o.Timeout <= 0 {
		return invalidOptions(jobID, fmt.Sprintf("timeout must be positive, got %s", o.Timeout))
	}
	return nil
}

// Clock abstracts time so tests can run the loop without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Poller struct {
	source Source
	clock  Clock
}

type Option func(*Poller)

func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func New(source Source, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		clock:  realClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll queries the source until the job is terminal, the timeout elapses,
// a query fails or ctx is cancelled.
//
// The timeout is checked after each query, so the final query is never
// interrupted and may push the total past opts.Timeout by its own latency.
func (p *Poller) Poll(ctx context.Context, jobID string, opts Options) (*job.Job, error) {
	if err := opts.validate(jobID); err != nil {
		return nil, err
	}

	start := p.clock.Now()
	queries := 0
	for {
		snapshot, err := p.source.JobStatus(ctx, jobID)
		queries++
		elapsed := p.clock.Now().Sub(start)
		if err != nil {
			log.Debug("Poll %s: query %d failed after %s: %v", jobID, queries, elapsed, err)
			return nil, transportError(jobID, queries, elapsed, err)
		}
		if snapshot == nil {
			return nil, transportError(jobID, queries, elapsed, fmt.Errorf("empty status response"))
		}

		if opts.OnProgress != nil && snapshot.Progress != nil {
			opts.OnProgress(*snapshot.Progress)
		}

		switch snapshot.Status {
		case job.StatusCompleted:
			log.Debug("Poll %s: completed after %d queries", jobID, queries)
			return snapshot, nil
		case job.StatusFailed:
			return nil, jobFailedError(snapshot, jobID, queries, elapsed)
		}

		// Re-read the clock so time spent in the progress sink counts.
		elapsed = p.clock.Now().Sub(start)
		if elapsed > opts.Timeout {
			return nil, timeoutError(snapshot, jobID, queries, elapsed)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(opts.Interval):
		}
	}
}

// Poll runs a one-off Poller over source with the real clock.
func Poll(ctx context.Context, source Source, jobID string, opts Options) (*job.Job, error) {
	return New(source).Poll(ctx, jobID, opts)
}
