package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/action-gate/services/registry"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the action catalog",
	}

	var path string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered actions",
		Long:  `Lists the built-in catalog, or the YAML catalog at --file or ACTION_CATALOG_PATH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, _, err := opts.load(cmd.Context())
				if err != nil {
					return err
				}
				path = cfg.Catalog.Path
			}
			reg, err := registry.Load(path)
			if err != nil {
				return err
			}

			defs := reg.All()
			sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tRISK\tAPPROVAL\tCHANNEL")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", d.ID, d.Category, d.RiskTier, d.RequiresApproval, d.Channel)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVarP(&path, "file", "f", "", "catalog YAML file")

	cmd.AddCommand(list)
	return cmd
}
