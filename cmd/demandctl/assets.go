package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HatiCode/demandcast/pkg/assets"
)

func newAssetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage downloadable model files",
	}

	var manifest string
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Download manifest files that are not on disk yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifest == "" {
				manifest = a.cfg.Assets
			}
			m, err := assets.LoadManifest(manifest)
			if err != nil {
				return err
			}
			outcomes, ensureErr := assets.NewFetcher(0, a.logger).Ensure(cmd.Context(), m)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, o := range outcomes {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", o.Name, o.Status, o.Bytes)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return ensureErr
		},
	}
	fetch.Flags().StringVar(&manifest, "manifest", "", "manifest path (default --assets)")

	cmd.AddCommand(fetch)
	return cmd
}
