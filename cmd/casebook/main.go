// casebook manages case studies from draft through review to publication.
//
// Usage:
//
//	casebook draft save -f payload.json
//	casebook draft submit <draft-id> -f payload.json
//	casebook approve <draft-id>
//	casebook publish <folder>
//	casebook list
//	casebook serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	envFiles []string
}

var rootCmd = &cobra.Command{
	Use:          "casebook",
	Short:        "Case study drafts, reviews and publication",
	Long:         "Casebook stores case study drafts in object storage, runs them through\nreview and approval, and keeps the approved catalog listable and searchable.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&rootFlags.envFiles, "env-file", []string{".env"}, "Env files to load before reading the environment")

	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
