package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/stratum/internal/config"
	"github.com/MimeLyc/stratum/pkg/icron"
	"github.com/MimeLyc/stratum/pkg/log"
)

// Pruner drops finished watches last updated before cutoff.
type Pruner interface {
	PruneBefore(cutoff time.Time) []string
}

type PruneService struct {
	pruner    Pruner
	retention time.Duration
	cronExpr  string
	cron      *cron.Cron
	group     singleflight.Group
	now       func() time.Time
}

func NewPruneService(cfg config.WatchConfig, pruner Pruner, cron *cron.Cron) *PruneService {
	return &PruneService{
		pruner:    pruner,
		retention: cfg.Retention(),
		cronExpr:  cfg.PruneCron,
		cron:      cron,
		now:       time.Now,
	}
}

// Schedule registers the prune run on the cron. Runs are skipped once ctx is done.
func (s *PruneService) Schedule(ctx context.Context) error {
	runFunc := func() {
		if ctx.Err() != nil {
			return
		}
		_, _, _ = s.group.Do("prune", func() (any, error) {
			return s.RunOnce(), nil
		})
	}
	if _, err := s.cron.AddFunc(s.cronExpr, runFunc); err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(s.cronExpr, s.now()); err == nil {
		log.Info("Watch pruning scheduled with %q, next run at %s", s.cronExpr, info.Next.Format(time.RFC3339))
	}
	return nil
}

// RunOnce prunes finished watches older than the retention window and returns their ids.
func (s *PruneService) RunOnce() []string {
	cutoff := s.now().Add(-s.retention)
	pruned := s.pruner.PruneBefore(cutoff)
	if len(pruned) > 0 {
		log.Info("Pruned %d finished watches older than %s", len(pruned), cutoff.Format(time.RFC3339))
	}
	return pruned
}
