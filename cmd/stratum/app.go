package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/MimeLyc/stratum/internal/client"
	"github.com/MimeLyc/stratum/internal/config"
	"github.com/MimeLyc/stratum/internal/poller"
	"github.com/MimeLyc/stratum/pkg/log"
)

type appContext struct {
	cfg     *config.Config
	client  *client.Client
	out     io.Writer
	logFile *log.FileLogger
}

func newAppContext(cmd *cli.Command, opts ...config.Option) (*appContext, error) {
	if err := config.LoadEnvFile(cmd.String("env")); err != nil {
		return nil, err
	}
	if u := cmd.String("api-url"); u != "" {
		opts = append(opts, config.WithBaseURL(u))
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := log.ParseLevel(cfg.System.LogLevel)
	log.GetLogger().SetLevel(level)

	var fileLogger *log.FileLogger
	if cfg.System.LogFile != "" {
		fileLogger, err = log.NewFileLogger(cfg.System.LogFile, level)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetLogger(fileLogger.Logger)
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	return &appContext{
		cfg: cfg,
		client: client.New(
			cfg.API.BaseURL,
			client.WithTimeout(cfg.API.TimeoutDuration()),
			client.WithRetries(cfg.API.Retries),
		),
		out:     out,
		logFile: fileLogger,
	}, nil
}

// Close puts logging back on stdout and releases the log file, if any.
func (a *appContext) Close() {
	if a.logFile == nil {
		return
	}
	log.InitLogger(log.ParseLevel(a.cfg.System.LogLevel))
	if err := a.logFile.Close(); err != nil {
		log.Warn("Failed to close log file: %v", err)
	}
	a.logFile = nil
}

func (a *appContext) pollOptions() poller.Options {
	return poller.Options{
		Interval: a.cfg.Poll.Interval(),
		Timeout:  a.cfg.Poll.Timeout(),
	}
}

// console serialises lines written by concurrent polls.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

// progressLine returns a sink printing "<label>: N%".
func (c *console) progressLine(label string) func(int) {
	return func(percent int) {
		c.printf("%s: %d%%", label, percent)
	}
}
