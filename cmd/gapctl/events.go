package main

import (
	"context"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/gapfinder/internal/adapters/nats"
	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
)

func newEventsCmd() *cobra.Command {
	var (
		searchID string
		durable  string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream search lifecycle events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			conn, err := natsadapter.Connect(ctx, cfg.NATS.URL)
			if err != nil {
				return err
			}
			sub, err := natsadapter.NewSubscriber(conn, durable)
			if err != nil {
				conn.Close()
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			err = sub.SubscribeSearchEvents(ctx, func(ctx context.Context, e *domain.SearchEvent) error {
				if searchID != "" && e.SearchID != searchID {
					return nil
				}
				return printJSON(out, e)
			})
			if err != nil {
				return err
			}

			logging.FromContext(ctx).Info("listening for search events", "search_id", searchID)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&searchID, "search-id", "", "only print events for this search")
	cmd.Flags().StringVar(&durable, "durable", "", "durable consumer name")
	return cmd
}
