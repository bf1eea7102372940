package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"casebook/db"
	"casebook/internal/labels"
	"casebook/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the label catalog",
}

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres catalog migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			conn, err := rt.database(ctx)
			if err != nil {
				return err
			}
			if err := store.ApplyMigrations(ctx, conn, db.Migrations()); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog migrations applied")
			return nil
		})
	},
}

var catalogImportFlags struct {
	file string
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the catalog of the configured source with a YAML file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := os.ReadFile(catalogImportFlags.file)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		catalog, err := labels.ParseYAML(data)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			switch target := rt.catalog.(type) {
			case *labels.BlobCatalog:
				err = target.Save(ctx, catalog)
			case *labels.PostgresCatalog:
				err = target.Replace(ctx, catalog)
			default:
				return fmt.Errorf("CATALOG_SOURCE %q is read-only", rt.cfg.Catalog.Source)
			}
			if err != nil {
				return fmt.Errorf("import catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d categories into %s\n", len(catalog), rt.cfg.Catalog.Source)
			return nil
		})
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active label catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			catalog, err := rt.catalog.Catalog(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, category := range catalog.Categories() {
				fmt.Fprintf(out, "%s: %s\n", category, strings.Join(catalog[category], ", "))
			}
			return nil
		})
	},
}

func init() {
	catalogImportCmd.Flags().StringVarP(&catalogImportFlags.file, "file", "f", "", "YAML catalog file (required)")
	_ = catalogImportCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogMigrateCmd, catalogImportCmd, catalogShowCmd)
}
