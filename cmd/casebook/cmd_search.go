package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"casebook/internal/search"
	"casebook/internal/store"
)

var searchFlags struct {
	status string
	label  string
	limit  int
}

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search case studies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			q := search.Query{
				Status: store.Status(searchFlags.status),
				Label:  searchFlags.label,
				Limit:  searchFlags.limit,
			}
			if len(args) == 1 {
				q.Text = args[0]
			}
			resp := rt.search.Search(ctx, q)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d result(s) from %s\n", resp.Total, resp.Source)
			for _, r := range resp.Results {
				line := fmt.Sprintf("%s\t%s\t%s", r.FolderName, r.Status, r.Title)
				if r.Snippet != "" {
					line += "\t" + strings.TrimSpace(r.Snippet)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		})
	},
}

var searchReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Push every case study into Meilisearch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			if !rt.search.Healthy() {
				return fmt.Errorf("meilisearch is not configured or unreachable")
			}
			n, err := rt.search.ReindexAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d case studies\n", n)
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.status, "status", "", "Only match this status")
	searchCmd.Flags().StringVar(&searchFlags.label, "label", "", "Only match this label, as category:value")
	searchCmd.Flags().IntVar(&searchFlags.limit, "limit", 20, "Maximum results")

	searchCmd.AddCommand(searchReindexCmd)
}
