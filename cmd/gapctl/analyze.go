package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/workflows"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		file    string
		retries int
		detach  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the recommendation workflow for an analysis request",
		Long: "Reads an analysis request (business_type, center, radius_m, businesses)\n" +
			"as JSON and starts the analysis workflow on the analyzer worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var req domain.AnalysisRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := client.Dial(client.Options{
				HostPort: cfg.Temporal.HostPort,
				Logger:   logging.FromContext(ctx),
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        "analysis-" + uuid.NewString(),
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflows.AnalysisWorkflow, workflows.AnalysisInput{
				Request:           req,
				EnrichmentRetries: retries,
			})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			if detach {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", run.GetID(), run.GetRunID())
				return err
			}

			var result workflows.AnalysisResult
			if err := run.Get(ctx, &result); err != nil {
				return fmt.Errorf("workflow %s: %w", run.GetID(), err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "request JSON file, - for stdin")
	cmd.Flags().IntVar(&retries, "enrichment-retries", 0, "rounds for transient demographics failures (0 default, negative disables)")
	cmd.Flags().BoolVar(&detach, "detach", false, "print the workflow id and exit without waiting")
	return cmd
}
