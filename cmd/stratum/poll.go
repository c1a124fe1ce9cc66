package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/stratum/internal/config"
	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
)

func pollAction(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("at least one job id is required")
	}
	kind, err := job.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	app, err := newAppContext(cmd, config.WithPoll(cmd.Duration("interval"), cmd.Duration("timeout")))
	if err != nil {
		return err
	}
	defer app.Close()
	source, err := app.client.Source(kind)
	if err != nil {
		return err
	}

	return pollJobs(ctx, poller.New(source), ids, app.pollOptions(), cmd.Int("concurrency"), &console{out: app.out})
}

// pollJobs polls every id independently; one failed job does not stop the others.
// The first failure is returned once all polls have finished.
func pollJobs(ctx context.Context, p *poller.Poller, ids []string, base poller.Options, concurrency int, out *console) error {
	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, id := range ids {
		g.Go(func() error {
			opts := base
			opts.OnProgress = out.progressLine(id)

			result, err := p.Poll(ctx, id, opts)
			if err != nil {
				out.printf("%s: %s", id, describeFailure(err))
				return fmt.Errorf("job %s: %w", id, err)
			}
			out.printf("%s: %s", id, describeResult(result))
			return nil
		})
	}
	return g.Wait()
}

func describeResult(result *job.Job) string {
	if result.Result != nil && result.Result.OutputFile != "" {
		return fmt.Sprintf("completed (output %s)", result.Result.OutputFile)
	}
	return "completed"
}

func describeFailure(err error) string {
	switch {
	case poller.IsErrorType(err, poller.ErrJobFailed):
		return "failed: " + poller.FailureMessage(err)
	case poller.IsErrorType(err, poller.ErrPollTimeout):
		return "timed out"
	case poller.IsErrorType(err, poller.ErrTransport):
		return "error: " + poller.FailureMessage(err)
	default:
		return "error: " + err.Error()
	}
}
