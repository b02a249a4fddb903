package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/bootstrap"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/util"
)

const (
	defaultStalledLimit = 50
	maxReasonWidth      = 60
)

type stalledRoomsOptions struct {
	Limit   int
	RawJSON bool
}

type requeueJobOptions struct {
	JobID string
}

type jobStatsOptions struct {
	RawJSON bool
}

func runStalledRooms(cmdCtx *commandContext, args []string) error {
	opts, err := parseStalledRoomsFlags(args)
	if err != nil {
		return err
	}

	cmdCtx.Config.Postgres.RunMigrationsOnStart = false
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		rooms, listErr := svcs.Rooms.ListStalled(ctx, opts.Limit)
		if listErr != nil {
			return listErr
		}
		if opts.RawJSON {
			return writeJSON(os.Stdout, rooms)
		}
		return renderStalledRooms(os.Stdout, rooms, time.Now())
	})
}

func runRequeueJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueJobFlags(args)
	if err != nil {
		return err
	}

	cmdCtx.Config.Postgres.RunMigrationsOnStart = false
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		job, requeueErr := svcs.Jobs.Requeue(ctx, opts.JobID)
		if requeueErr != nil {
			return fmt.Errorf("requeue job %s: %w", opts.JobID, requeueErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "job requeued", "job_id", job.ID, "type", job.Type, "status", job.Status)
		return renderJob(os.Stdout, job)
	})
}

func runJobStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobStatsFlags(args)
	if err != nil {
		return err
	}

	cmdCtx.Config.Postgres.RunMigrationsOnStart = false
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		stats, statsErr := svcs.Jobs.Stats(ctx)
		if statsErr != nil {
			return statsErr
		}
		if opts.RawJSON {
			return writeJSON(os.Stdout, stats)
		}
		return renderJobStats(os.Stdout, stats)
	})
}

func parseStalledRoomsFlags(args []string) (stalledRoomsOptions, error) {
	fs := flag.NewFlagSet("stalled-rooms", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := stalledRoomsOptions{Limit: defaultStalledLimit}
	fs.IntVar(&opts.Limit, "limit", defaultStalledLimit, "Maximum number of rooms to list")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print rooms as JSON")

	if err := fs.Parse(args); err != nil {
		return stalledRoomsOptions{}, err
	}
	if opts.Limit <= 0 {
		return stalledRoomsOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func parseRequeueJobFlags(args []string) (requeueJobOptions, error) {
	fs := flag.NewFlagSet("requeue-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts requeueJobOptions
	fs.StringVar(&opts.JobID, "id", "", "ID of the job to requeue (required)")

	if err := fs.Parse(args); err != nil {
		return requeueJobOptions{}, err
	}
	if opts.JobID == "" {
		return requeueJobOptions{}, errors.New("--id is required")
	}
	if _, err := uuid.Parse(opts.JobID); err != nil {
		return requeueJobOptions{}, fmt.Errorf("--id must be a UUID: %w", err)
	}
	return opts, nil
}

func parseJobStatsFlags(args []string) (jobStatsOptions, error) {
	fs := flag.NewFlagSet("job-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobStatsOptions
	fs.BoolVar(&opts.RawJSON, "json", false, "Print counts as JSON")

	if err := fs.Parse(args); err != nil {
		return jobStatsOptions{}, err
	}
	return opts, nil
}

func renderStalledRooms(w io.Writer, rooms []*model.Room, now time.Time) error {
	if len(rooms) == 0 {
		return writeln(w, "No stalled rooms.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "ROOM\tSTATUS\tSTALLED FOR\tJOB\tREASON"); err != nil {
		return fmt.Errorf("print stalled rooms header: %w", err)
	}
	for _, r := range rooms {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Status,
			util.FormatAge(r.StalledAt, now),
			valueOr(r.StalledJobID, "-"),
			util.Truncate(valueOr(r.StalledReason, "-"), maxReasonWidth),
		); err != nil {
			return fmt.Errorf("print stalled room %s: %w", r.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush stalled rooms: %w", err)
	}
	return writef(w, "\n%d stalled room(s)\n", len(rooms))
}

func renderJob(w io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"ID", job.ID},
		{"Type", string(job.Type)},
		{"Status", string(job.Status)},
		{"Room", valueOr(job.RoomID, "-")},
		{"Retries", fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries)},
		{"Scheduled", job.ScheduledAt.UTC().Format(time.RFC3339)},
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("print job: %w", err)
		}
	}
	return tw.Flush()
}

func renderJobStats(w io.Writer, stats *model.JobStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		status model.JobStatus
		count  int
	}{
		{model.JobStatusQueued, stats.Queued},
		{model.JobStatusRunning, stats.Running},
		{model.JobStatusRetrying, stats.Retrying},
		{model.JobStatusSucceeded, stats.Succeeded},
		{model.JobStatusFailed, stats.Failed},
		{model.JobStatusCancelled, stats.Cancelled},
	}
	total := 0
	for _, row := range rows {
		total += row.count
		if err := writef(tw, "%s\t%d\t\n", row.status, row.count); err != nil {
			return fmt.Errorf("print job stats: %w", err)
		}
	}
	if err := writef(tw, "total\t%d\t\n", total); err != nil {
		return fmt.Errorf("print job stats total: %w", err)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func valueOr(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}
