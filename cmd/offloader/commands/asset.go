package commands

import (
	"strconv"

	"github.com/mediaoffload/offloader/internal/app"
	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/spf13/cobra"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Inspect or act on a single asset",
}

// assetView is the printed form of an asset.
type assetView struct {
	Asset *catalog.Asset `json:"asset"`
	Files *asset.Group   `json:"files,omitempty"`
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, offerr.ErrInvalidArgument.WithMessage("invalid asset id %q", s)
	}
	return id, nil
}

func viewOf(a *app.App, rec *catalog.Asset) assetView {
	v := assetView{Asset: rec}
	if g, err := a.Resolver.Group(rec); err == nil {
		v.Files = g
	}
	return v
}

// assetAction wraps a single-asset command body.
func assetAction(fn func(cmd *cobra.Command, a *app.App, id int64) (*catalog.Asset, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := fn(cmd, a, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), viewOf(a, rec))
	}
}

var assetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an asset and its resolved files",
	Args:  cobra.ExactArgs(1),
	RunE: assetAction(func(cmd *cobra.Command, a *app.App, id int64) (*catalog.Asset, error) {
		rec, err := a.Catalog.GetAsset(cmd.Context(), id)
		if err != nil {
			return nil, offerr.ErrCatalogUnavailable.Wrap(err)
		}
		if rec == nil {
			return nil, offerr.ErrAssetNotFound.WithMessage("asset %d not found", id)
		}
		return rec, nil
	}),
}

var assetOffloadCmd = &cobra.Command{
	Use:   "offload <id>",
	Short: "Upload one asset and mark it offloaded",
	Args:  cobra.ExactArgs(1),
	RunE: assetAction(func(cmd *cobra.Command, a *app.App, id int64) (*catalog.Asset, error) {
		return a.Engine.Offload(cmd.Context(), id)
	}),
}

var assetForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete one asset's remote objects and clear its marker",
	Args:  cobra.ExactArgs(1),
	RunE: assetAction(func(cmd *cobra.Command, a *app.App, id int64) (*catalog.Asset, error) {
		return a.Engine.Forget(cmd.Context(), id)
	}),
}

func init() {
	assetCmd.AddCommand(assetShowCmd)
	assetCmd.AddCommand(assetOffloadCmd)
	assetCmd.AddCommand(assetForgetCmd)
}
