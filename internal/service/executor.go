package service

import (
	"context"
	"fmt"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/MimeLyc/stratum/internal/watch"
	"github.com/MimeLyc/stratum/pkg/log"
)

// NewPollExecutor returns a watch.Executor that polls the watched job on the
// source registered for its kind.
func NewPollExecutor(sources map[job.Kind]poller.Source, opts poller.Options) watch.Executor {
	pollers := make(map[job.Kind]*poller.Poller, len(sources))
	for kind, source := range sources {
		if source != nil {
			pollers[kind] = poller.New(source)
		}
	}

	return func(ctx context.Context, w *watch.Watch, progress poller.ProgressFunc) error {
		p, ok := pollers[w.Kind]
		if !ok {
			return fmt.Errorf("no status source for %s jobs", w.Kind)
		}

		callOpts := opts
		userSink := opts.OnProgress
		callOpts.OnProgress = func(value int) {
			if progress != nil {
				progress(value)
			}
			if userSink != nil {
				userSink(value)
			}
		}

		log.Debug("Polling %s job %s for watch %s", w.Kind, w.JobID, w.ID)
		result, err := p.Poll(ctx, w.JobID, callOpts)
		if err != nil {
			return err
		}
		log.Info("%s job %s completed", w.Kind, result.ID)
		return nil
	}
}
