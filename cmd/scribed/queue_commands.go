package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/index"
	"scribe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items with a status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				statuses, err := parseStatusFilters(statusFilters)
				if err != nil {
					return err
				}

				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						shortID(item.ID),
						item.FileName,
						string(item.Status),
						fmt.Sprintf("%.0f%%", item.ProgressPercent),
						item.ProgressStage,
						item.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "File", "Status", "Progress", "Stage", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d total: %d queued, %d processing, %d completed, %d failed, %d cancelled\n",
					stats.Total, stats.Queued, stats.Processing, stats.Completed, stats.Failed, stats.Cancelled)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Only show items with these statuses")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [item-id...]",
		Short: "Requeue failed items (all failed items when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", pluralize(count, "item"))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed items from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				statuses := []queue.Status{queue.StatusCompleted}
				if all {
					statuses = nil
				}
				doomed, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}

				var count int64
				if all {
					count, err = store.Clear(cmd.Context())
				} else {
					count, err = store.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}

				// Cleared items take their search rows with them.
				search, err := index.NewStore(store.DB(), nil)
				if err != nil {
					return err
				}
				for _, item := range doomed {
					if err := search.Remove(cmd.Context(), item.ID); err != nil {
						return err
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", pluralize(count, "item"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every item regardless of status")
	return cmd
}

func parseStatusFilters(raw []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(raw))
	for _, value := range raw {
		status, ok := queue.ParseStatus(strings.TrimSpace(value))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pluralize(count int64, noun string) string {
	if count == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(count, 10) + " " + noun + "s"
}
