package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/index"
	"scribe/internal/logging"
	"scribe/internal/queue"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				idx, err := index.NewStore(store.DB(), logging.NewNop())
				if err != nil {
					return err
				}

				hits, err := idx.Search(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches")
					return nil
				}

				rows := make([][]string, 0, len(hits))
				for _, hit := range hits {
					rows = append(rows, []string{
						shortID(hit.ItemID),
						formatTimestamp(hit.StartSeconds),
						hit.Content,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Item", "At", "Text"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum number of results")
	return cmd
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
