package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/mediaoffload/offloader/internal/serialization"
	"github.com/spf13/cobra"
)

var (
	exportOutput      string
	exportCheckpoints bool
	importReplace     bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Export or import the asset catalog as JSON",
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to JSON",
	Long: `Export every asset record, and optionally live checkpoints, as JSON.

Examples:
  offloader catalog export > catalog.json
  offloader catalog export --output catalog.json --checkpoints`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("creating %s: %w", exportOutput, err)
			}
			defer f.Close()
			w = f
		}
		opts := &serialization.ExportOptions{IncludeCheckpoints: exportCheckpoints}
		if err := serialization.ExportCatalog(cmd.Context(), a.Catalog, w, opts); err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", exportOutput)
		}
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSON catalog export",
	Long: `Import a JSON catalog export. By default assets whose ID already exists
are skipped; --replace clears the catalog first.

Examples:
  offloader catalog import catalog.json
  offloader catalog import catalog.json --replace`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		defer f.Close()

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := serialization.ImportCatalog(cmd.Context(), a.Catalog, f, &serialization.ImportOptions{Replace: importReplace})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "  WARNING: %s\n", w)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d assets (%d skipped), %d checkpoints\n",
			res.Imported, res.Skipped, res.Checkpoints)
		return nil
	},
}

func init() {
	catalogExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	catalogExportCmd.Flags().BoolVar(&exportCheckpoints, "checkpoints", false, "include live checkpoints")
	catalogImportCmd.Flags().BoolVar(&importReplace, "replace", false, "clear the catalog before importing")

	catalogCmd.AddCommand(catalogExportCmd)
	catalogCmd.AddCommand(catalogImportCmd)
}
