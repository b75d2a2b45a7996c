package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"article-pipeline/internal/queueclient"
)

type commandContext struct {
	queueURL        string
	orchestratorURL string
	timeout         time.Duration
	jsonOutput      bool
}

func (c *commandContext) queue() *queueclient.Client {
	return queueclient.New(c.queueURL, c.timeout)
}

func (c *commandContext) orchestrator() *orchestratorClient {
	return newOrchestratorClient(c.orchestratorURL, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Inspect and drive the article pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.queueURL, "queue-url", envOr("QUEUE_URL", "http://localhost:8080"), "Queue manager base URL")
	flags.StringVar(&ctx.orchestratorURL, "orchestrator-url", envOr("ORCHESTRATOR_URL", "http://localhost:8090"), "Orchestrator base URL")
	flags.DurationVar(&ctx.timeout, "timeout", 30*time.Second, "HTTP timeout")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
