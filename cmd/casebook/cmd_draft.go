package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"casebook/internal/lifecycle"
)

var draftFlags struct {
	file    string
	id      string
	author  string
	message string
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Save, submit and inspect drafts",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a draft from a JSON payload",
	Args:  cobra.NoArgs,
	RunE:  runDraftSave,
}

var draftSubmitCmd = &cobra.Command{
	Use:   "submit <draft-id>",
	Short: "Submit a draft for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDraftSubmit(cmd, args[0], false)
	},
}

var draftResubmitCmd = &cobra.Command{
	Use:   "resubmit <draft-id>",
	Short: "Resubmit a draft after incorporating feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDraftSubmit(cmd, args[0], true)
	},
}

var draftFeedbackCmd = &cobra.Command{
	Use:   "feedback <draft-id>",
	Short: "Return an under-review draft to draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			draft, err := rt.engine.IncorporateFeedback(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Draft %s is back in %s\n", draft.ID, draft.Status)
			return nil
		})
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored drafts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			drafts, err := rt.engine.ListDrafts(ctx)
			if err != nil {
				return err
			}
			return printDrafts(cmd.OutOrStdout(), drafts)
		})
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show <draft-id>",
	Short: "Print a draft as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			draft, err := rt.engine.GetDraft(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), draft)
		})
	},
}

var draftCommentCmd = &cobra.Command{
	Use:   "comment <draft-id>",
	Short: "Add a review comment to a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			thread, err := rt.engine.AddDraftComment(ctx, args[0], lifecycle.CommentInput{
				Comment: draftFlags.message,
				Author:  draftFlags.author,
			})
			if err != nil {
				return err
			}
			printComments(cmd.OutOrStdout(), thread)
			return nil
		})
	},
}

var draftCommentsCmd = &cobra.Command{
	Use:   "comments <draft-id>",
	Short: "Print the review thread of a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			thread, err := rt.engine.DraftComments(ctx, args[0])
			if err != nil {
				return err
			}
			printComments(cmd.OutOrStdout(), thread)
			return nil
		})
	},
}

func init() {
	draftSaveCmd.Flags().StringVarP(&draftFlags.file, "file", "f", "", "Payload JSON file, or - for stdin (required)")
	draftSaveCmd.Flags().StringVar(&draftFlags.id, "id", "", "Update this draft instead of matching by title")
	_ = draftSaveCmd.MarkFlagRequired("file")

	for _, c := range []*cobra.Command{draftSubmitCmd, draftResubmitCmd} {
		c.Flags().StringVarP(&draftFlags.file, "file", "f", "", "Payload JSON file, or - for stdin (required)")
		_ = c.MarkFlagRequired("file")
	}

	draftCommentCmd.Flags().StringVar(&draftFlags.author, "author", "", "Comment author (required)")
	draftCommentCmd.Flags().StringVarP(&draftFlags.message, "message", "m", "", "Comment text (required)")
	_ = draftCommentCmd.MarkFlagRequired("author")
	_ = draftCommentCmd.MarkFlagRequired("message")

	draftCmd.AddCommand(draftSaveCmd, draftSubmitCmd, draftResubmitCmd, draftFeedbackCmd,
		draftListCmd, draftShowCmd, draftCommentCmd, draftCommentsCmd)
}

func runDraftSave(cmd *cobra.Command, _ []string) error {
	payload, err := readPayload(draftFlags.file)
	if err != nil {
		return err
	}
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		draft, err := rt.engine.Create(ctx, lifecycle.SaveDraftInput{ID: draftFlags.id, Payload: payload})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved draft %s (%s)\n", draft.ID, draft.Title)
		return nil
	})
}

func runDraftSubmit(cmd *cobra.Command, draftID string, resubmit bool) error {
	payload, err := readPayload(draftFlags.file)
	if err != nil {
		return err
	}
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		submit := rt.engine.SubmitForReview
		if resubmit {
			submit = rt.engine.Resubmit
		}
		draft, err := submit(ctx, draftID, payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Draft %s is %s\n", draft.ID, draft.Status)
		return nil
	})
}
