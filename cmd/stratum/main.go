package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/MimeLyc/stratum/internal/client"
	"github.com/MimeLyc/stratum/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every command.
func commonFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "path to a .env file",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "backend base URL (overrides STRATUM_API_URL)",
		},
	}, extra...)
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "stratum",
		Usage:  "upload files, submit processing jobs and follow them to completion",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:      "poll",
				Usage:     "poll one or more jobs until they finish",
				ArgsUsage: "<job-id>...",
				Flags: commonFlags(
					&cli.StringFlag{
						Name:  "kind",
						Usage: "job kind: file or image",
						Value: "file",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "delay between status queries (overrides POLL_INTERVAL_MS)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "polling budget per job (overrides POLL_TIMEOUT_MS)",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "jobs polled at the same time",
						Value: 4,
					},
				),
				Action: pollAction,
			},
			{
				Name:      "upload",
				Usage:     "validate and upload a file",
				ArgsUsage: "<path>",
				Flags:     commonFlags(),
				Action:    uploadAction,
			},
			{
				Name:      "process",
				Usage:     "submit an image for processing and wait for the result",
				ArgsUsage: "<path>",
				Flags: commonFlags(
					&cli.IntFlag{
						Name:  "scale",
						Usage: "scale factor",
						Value: client.DefaultScaleFactor,
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "processing model",
						Value: client.DefaultModelName,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "write the processed output to this path",
					},
					&cli.IntFlag{
						Name:  "max-width",
						Usage: "reject images wider than this many pixels",
					},
					&cli.IntFlag{
						Name:  "max-height",
						Usage: "reject images taller than this many pixels",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "polling budget (overrides POLL_TIMEOUT_MS)",
					},
				),
				Action: processAction,
			},
			{
				Name:  "history",
				Usage: "list processing jobs",
				Flags: commonFlags(
					&cli.IntFlag{
						Name:  "page",
						Usage: "zero-based page",
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "page size",
						Value: 20,
					},
				),
				Action: historyAction,
			},
			{
				Name:   "stats",
				Usage:  "show processing statistics",
				Flags:  commonFlags(),
				Action: statsAction,
			},
			{
				Name:   "serve",
				Usage:  "run the background watch service and dashboard API",
				Flags:  commonFlags(),
				Action: serveAction,
			},
		},
	}
}
