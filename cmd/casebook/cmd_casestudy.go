package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"casebook/internal/blob"
	"casebook/internal/export"
	"casebook/internal/lifecycle"
	"casebook/internal/store"
)

var listFlags struct {
	status string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List case studies from the listing cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			items, err := rt.engine.ListCaseStudies(ctx)
			if err != nil {
				return err
			}
			if listFlags.status != "" {
				filtered := items[:0]
				for _, item := range items {
					if item.Status == store.Status(listFlags.status) {
						filtered = append(filtered, item)
					}
				}
				items = filtered
			}
			return printSummaries(cmd.OutOrStdout(), items)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <folder-or-id>",
	Short: "Print a case study as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			cs, err := rt.engine.GetCaseStudy(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cs)
		})
	},
}

var commentFlags struct {
	author  string
	message string
}

var commentCmd = &cobra.Command{
	Use:   "comment <folder-or-id>",
	Short: "Add a review comment to a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			thread, err := rt.engine.AddCaseStudyComment(ctx, args[0], lifecycle.CommentInput{
				Comment: commentFlags.message,
				Author:  commentFlags.author,
			})
			if err != nil {
				return err
			}
			printComments(cmd.OutOrStdout(), thread)
			return nil
		})
	},
}

var commentsCmd = &cobra.Command{
	Use:   "comments <folder-or-id>",
	Short: "Print the review thread of a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			thread, err := rt.engine.CaseStudyComments(ctx, args[0])
			if err != nil {
				return err
			}
			printComments(cmd.OutOrStdout(), thread)
			return nil
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List decided drafts whose deletion failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			drafts, err := rt.engine.Orphans(ctx)
			if err != nil {
				return err
			}
			return printDrafts(cmd.OutOrStdout(), drafts)
		})
	},
}

var exportFlags struct {
	outDir string
}

var exportCmd = &cobra.Command{
	Use:   "export <folder-or-id>",
	Short: "Download the generated documents of a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			cs, err := rt.engine.GetCaseStudy(ctx, args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(exportFlags.outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			for _, document := range []string{export.CaseStudyFile, export.OnePagerFile} {
				data, err := rt.blobs.Get(ctx, store.DocumentKey(cs.FolderName, document))
				if err != nil {
					if errors.Is(err, blob.ErrNotFound) {
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: not generated\n", document)
						continue
					}
					return fmt.Errorf("download %s: %w", document, err)
				}
				path := filepath.Join(exportFlags.outDir, export.FileName(cs.OriginalTitle, document))
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&listFlags.status, "status", "", "Only list case studies in this status")

	commentCmd.Flags().StringVar(&commentFlags.author, "author", "", "Comment author (required)")
	commentCmd.Flags().StringVarP(&commentFlags.message, "message", "m", "", "Comment text (required)")
	_ = commentCmd.MarkFlagRequired("author")
	_ = commentCmd.MarkFlagRequired("message")

	exportCmd.Flags().StringVarP(&exportFlags.outDir, "out", "o", ".", "Directory to write the documents to")
}
