package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List registered plugins and store schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			env := a.env
			rows := []struct {
				title string
				names []string
			}{
				{"Importers", env.Importers.Names()},
				{"Extractors", env.Extractors.Names()},
				{"Converters", env.Converters.Names()},
				{"Launchers", env.Launchers.Names()},
				{"Store schemes", env.StoreSchemes()},
			}
			for _, r := range rows {
				if len(r.names) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", r.title, strings.Join(r.names, ", "))
			}
			if aliases := a.settings.Aliases; len(aliases) > 0 {
				fmt.Fprintln(out, "Aliases:")
				for _, k := range slices.Sorted(maps.Keys(aliases)) {
					fmt.Fprintf(out, "  %s -> %s\n", k, aliases[k])
				}
			}
			return nil
		},
	}
}
