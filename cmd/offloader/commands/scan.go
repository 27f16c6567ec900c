package commands

import (
	"github.com/spf13/cobra"
)

var scanDryRun bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Register assets found under the asset root",
	Long: `Walk the asset root, group each file with its size variants
(name-WxH.ext) and add every asset not yet in the catalog.

Examples:
  offloader scan --dry-run
  offloader scan`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Scanner.Import(cmd.Context(), a.Catalog, scanDryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "report what would be imported without writing")
}
