package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/MimeLyc/stratum/internal/client"
	"github.com/MimeLyc/stratum/internal/config"
	"github.com/MimeLyc/stratum/internal/filecheck"
	"github.com/MimeLyc/stratum/internal/poller"
)

func uploadAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("a file path is required")
	}

	app, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	info, err := inspectUpload(path, app.cfg.Upload.FilecheckOptions())
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	out := &console{out: app.out}
	uploaded, err := app.client.UploadFile(ctx, info.Name, f, out.progressLine("Uploading "+info.Name))
	if err != nil {
		return err
	}
	out.printf("Uploaded %s (%s)", uploaded.Name, filecheck.FormatSize(uploaded.Size))
	return nil
}

func processAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("a file path is required")
	}

	app, err := newAppContext(cmd, config.WithPoll(0, cmd.Duration("timeout")))
	if err != nil {
		return err
	}
	defer app.Close()
	info, err := inspectUpload(path, app.cfg.Upload.FilecheckOptions())
	if err != nil {
		return err
	}

	limits := filecheck.DimensionLimits{
		MaxWidth:  cmd.Int("max-width"),
		MaxHeight: cmd.Int("max-height"),
	}
	if !filecheck.IsDDS(info) && (limits.MaxWidth > 0 || limits.MaxHeight > 0) {
		if err := checkDimensions(path, limits); err != nil {
			return err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	out := &console{out: app.out}
	submitted, err := app.client.SubmitProcessingJob(ctx, client.ProcessRequest{
		FileName:    info.Name,
		Content:     f,
		ScaleFactor: cmd.Int("scale"),
		ModelName:   cmd.String("model"),
		OnProgress:  out.progressLine("Uploading " + info.Name),
	})
	if err != nil {
		return err
	}
	out.printf("Submitted job %s", submitted.JobID)

	opts := app.pollOptions()
	opts.OnProgress = out.progressLine("Processing")
	result, err := poller.Poll(ctx, app.client.ImageJobSource(), submitted.JobID, opts)
	if err != nil {
		out.printf("%s: %s", submitted.JobID, describeFailure(err))
		return err
	}
	out.printf("%s: %s", submitted.JobID, describeResult(result))

	dest := cmd.String("out")
	if dest == "" || result.Result == nil || result.Result.OutputFile == "" {
		return nil
	}
	return downloadOutput(ctx, app.client, result.Result.OutputFile, dest, out)
}

func inspectUpload(path string, opts filecheck.Options) (filecheck.FileInfo, error) {
	info, err := filecheck.Inspect(path)
	if err != nil {
		return filecheck.FileInfo{}, err
	}
	if res := filecheck.Validate(info, opts); !res.Valid {
		return filecheck.FileInfo{}, errors.New(res.Error)
	}
	return info, nil
}

func checkDimensions(path string, limits filecheck.DimensionLimits) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if res := filecheck.ValidateDimensions(f, limits); !res.Valid {
		return errors.New(res.Error)
	}
	return nil
}

func downloadOutput(ctx context.Context, c *client.Client, fileID, dest string, out *console) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := c.DownloadOutput(ctx, fileID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	out.printf("Saved %s (%s)", dest, filecheck.FormatSize(n))
	return nil
}
