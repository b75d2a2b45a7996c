package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"article-pipeline/internal/orchestrator"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var source, title string
	cmd := &cobra.Command{
		Use:   "ingest <url>",
		Short: "Add an article and queue its extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.orchestrator().Ingest(cmd.Context(), orchestrator.IngestRequest{URL: args[0], Source: source, Title: title})
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Article %d queued (job %s)\n", res.ArticleID, res.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source name")
	cmd.Flags().StringVar(&title, "title", "", "Article title")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run [stage]...",
		Short: "Trigger one pipeline cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.orchestrator().RunPipeline(cmd.Context(), args)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, res)
			}
			rows := make([][]string, 0, len(res.Steps))
			for _, s := range res.Steps {
				row := []string{string(s.Step), "-", "-", "-", s.Error}
				if s.Result != nil {
					row[1] = strconv.Itoa(s.Result.ProcessedJobs)
					row[2] = strconv.Itoa(s.Result.TotalJobs)
					row[3] = strconv.Itoa(s.Result.DirectProcessed)
				}
				rows = append(rows, row)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reclaimed %d stale job(s)\n", res.Reclaimed)
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Processed", "Claimed", "Direct", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			if res.Failed() {
				return fmt.Errorf("one or more stages failed")
			}
			return nil
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the retry sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.orchestrator().RetrySweep(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retried %d, succeeded %d, repaired %d\n", res.Retried, res.Succeeded, res.Repaired)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show articles per status and queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.orchestrator().Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, st)
			}
			names := make([]string, 0, len(st.Articles))
			for name := range st.Articles {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, strconv.Itoa(st.Articles[name])})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Article status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "Jobs: %d pending, %d processing, %d completed today, %d failed today\n",
				st.Jobs.Pending, st.Jobs.Processing, st.Jobs.CompletedToday, st.Jobs.FailedToday)
			return nil
		},
	}
}
