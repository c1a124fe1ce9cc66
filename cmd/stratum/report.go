package main

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MimeLyc/stratum/internal/job"
)

func historyAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	history, err := app.client.JobHistory(ctx, cmd.Int("page"), cmd.Int("size"))
	if err != nil {
		return err
	}
	renderHistory(app.out, history)
	return nil
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	stats, err := app.client.JobStatistics(ctx)
	if err != nil {
		return err
	}
	renderStatistics(app.out, stats)
	return nil
}

func renderHistory(out io.Writer, history *job.History) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(out)
	table.Header("Job ID", "Status", "Progress", "Model", "Scale", "Created At", "Error")
	for i := range history.Jobs {
		raw := history.Jobs[i]
		row := []any{raw.JobID, raw.Status, "-", raw.ModelName, "", "", ""}
		if normalized, err := raw.Normalize(); err == nil {
			row[1] = string(normalized.Status)
			if normalized.HasProgress() {
				row[2] = strconv.Itoa(*normalized.Progress) + "%"
			}
			if !normalized.CreatedAt.IsZero() {
				row[5] = normalized.CreatedAt.Local().Format(time.DateTime)
			}
			row[6] = normalized.Error
		}
		row[4] = p.Sprintf("%vx", raw.ScaleFactor)
		_ = table.Append(row...)
	}
	_ = table.Render()

	p.Fprintf(out, "Page %d of %d (%d jobs)\n", history.Page+1, max(history.TotalPages, 1), history.Total)
}

func renderStatistics(out io.Writer, stats *job.Statistics) {
	p := message.NewPrinter(language.English)

	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	_ = table.Append("Total jobs", p.Sprintf("%d", stats.TotalJobs))
	_ = table.Append("Queued", p.Sprintf("%d", stats.Queued))
	_ = table.Append("Processing", p.Sprintf("%d", stats.Processing))
	_ = table.Append("Completed", p.Sprintf("%d", stats.Completed))
	_ = table.Append("Failed", p.Sprintf("%d", stats.Failed))
	_ = table.Append("Success rate", p.Sprintf("%.1f%%", stats.SuccessRate))
	_ = table.Append("Average processing time", formatMillis(p, stats.AverageProcessingTimeMs))
	_ = table.Render()
}

func formatMillis(p *message.Printer, ms float64) string {
	if ms >= 1000 {
		return p.Sprintf("%.2f s", ms/1000)
	}
	return p.Sprintf("%.0f ms", ms)
}
