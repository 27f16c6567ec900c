package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale partial downloads from the asset root",
	Long: `Remove temp files left under the asset root by revert downloads that never
finished. Files younger than migration.checkpoint_ttl are kept, since they may
belong to a step still running.

Examples:
  offloader clean`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.CleanPartialDownloads()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d partial downloads\n", n)
		return nil
	},
}
