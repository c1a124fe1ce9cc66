package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/MimeLyc/stratum/internal/config"
	"github.com/MimeLyc/stratum/internal/httpapi"
	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/persistence"
	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/MimeLyc/stratum/internal/service"
	"github.com/MimeLyc/stratum/internal/watch"
	"github.com/MimeLyc/stratum/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

const shutdownTimeout = 5 * time.Second

func serveAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.cfg

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open watch store: %w", err)
	}
	defer store.Close()

	queue := watch.NewQueue(cfg.Watch.Workers, store, watch.WithMaxEntries(cfg.Watch.MaxEntries))
	queue.Start(service.NewPollExecutor(map[job.Kind]poller.Source{
		job.KindFile:  app.client.FileJobSource(),
		job.KindImage: app.client.ImageJobSource(),
	}, app.pollOptions()))
	defer queue.Stop()

	engine := cron.New()
	pruner := service.NewPruneService(cfg.Watch, queue, engine)
	server := httpapi.NewServer(
		queue,
		httpapi.WithFileCheck(cfg.Upload.FilecheckOptions()),
		httpapi.WithUI(cfg.HTTP.StaticDir, cfg.HTTP.StaticDir != ""),
	)

	return runWithComponents(ctx, cfg, pruner, engine, server)
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	engine cronEngine,
	server httpServer,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("failed to schedule watch pruning: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Watch API listening on %s (backend %s)", cfg.HTTP.Addr, cfg.API.BaseURL)
		errCh <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
