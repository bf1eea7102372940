package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <draft-id>",
	Short: "Approve a draft into a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			out, err := rt.engine.Approve(ctx, args[0])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <draft-id>",
	Short: "Reject a draft into a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			out, err := rt.engine.Reject(ctx, args[0])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <folder-or-id>",
	Short: "Publish an approved case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			cs, err := rt.engine.Publish(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", cs.FolderName)
			return nil
		})
	},
}

var updateFlags struct {
	file string
}

var updateCmd = &cobra.Command{
	Use:   "update <folder-or-id>",
	Short: "Replace the content of a case study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(updateFlags.file)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			cs, err := rt.engine.UpdateCaseStudy(ctx, args[0], payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", cs.FolderName, cs.Title)
			return nil
		})
	},
}

func init() {
	updateCmd.Flags().StringVarP(&updateFlags.file, "file", "f", "", "Payload JSON file, or - for stdin (required)")
	_ = updateCmd.MarkFlagRequired("file")
}
