package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and manage queue jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsRetryCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses  []string
		jobType   string
		articleID int64
		since     time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repository.JobFilter{ArticleID: articleID, Limit: limit}
			for _, s := range statuses {
				st, ok := entity.ParseJobStatus(s)
				if !ok {
					return fmt.Errorf("unknown status %q", s)
				}
				f.Statuses = append(f.Statuses, st)
			}
			if jobType != "" {
				typ, ok := entity.ParseJobType(jobType)
				if !ok {
					return fmt.Errorf("unknown job type %q", jobType)
				}
				f.Type = typ
			}
			if since > 0 {
				f.CreatedSince = time.Now().Add(-since)
			}

			jobs, err := ctx.queue().ListJobs(cmd.Context(), f)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	cmd.Flags().Int64Var(&articleID, "article", 0, "Filter by article id")
	cmd.Flags().DurationVar(&since, "since", 0, "Only jobs created within this duration")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func renderJobs(jobs []*entity.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		errText := ""
		if j.Error != nil {
			errText = truncate(*j.Error, 40)
		}
		rows = append(rows, []string{
			j.ID.String(),
			string(j.Type),
			strconv.FormatInt(j.ArticleID, 10),
			string(j.Status),
			fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
			strconv.Itoa(j.Priority),
			formatTime(&j.CreatedAt),
			errText,
		})
	}
	return renderTable(
		[]string{"ID", "Type", "Article", "Status", "Attempts", "Priority", "Created", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			job, err := ctx.queue().GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, job)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:      %s\n", job.ID)
			fmt.Fprintf(out, "Type:     %s\n", job.Type)
			fmt.Fprintf(out, "Article:  %d\n", job.ArticleID)
			fmt.Fprintf(out, "Status:   %s\n", job.Status)
			fmt.Fprintf(out, "Attempts: %d/%d\n", job.Attempts, job.MaxAttempts)
			fmt.Fprintf(out, "Created:  %s\n", formatTime(&job.CreatedAt))
			fmt.Fprintf(out, "Started:  %s\n", formatTime(job.StartedAt))
			fmt.Fprintf(out, "Finished: %s\n", formatTime(job.CompletedAt))
			if job.AssignedWorker != nil {
				fmt.Fprintf(out, "Worker:   %s\n", *job.AssignedWorker)
			}
			if job.Error != nil {
				fmt.Fprintf(out, "Error:    %s\n", strings.TrimSpace(*job.Error))
			}
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Reset jobs to pending with a fresh attempt budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := ctx.queue()
			for _, raw := range args {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid job id %q", raw)
				}
				if err := q.RetryJob(cmd.Context(), id); err != nil {
					return fmt.Errorf("retry %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s reset to pending\n", id)
			}
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.queue().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, st)
			}
			rows := [][]string{
				{"pending", strconv.Itoa(st.Pending)},
				{"processing", strconv.Itoa(st.Processing)},
				{"completed today", strconv.Itoa(st.CompletedToday)},
				{"failed today", strconv.Itoa(st.FailedToday)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Counter", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Return jobs with expired leases to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ctx.queue().Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d job(s)\n", n)
			return nil
		},
	}
}
