package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/justapithecus/datumo/datumo"
)

func (a *app) newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage project sources",
	}
	cmd.AddCommand(a.newSourceAddCmd(), a.newSourceRemoveCmd(), a.newSourceListCmd())
	return cmd
}

func (a *app) newSourceAddCmd() *cobra.Command {
	var (
		format    string
		rawOpts   []string
		skipCheck bool
	)
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Attach a dataset or project as a source",
		Long: `Add attaches a dataset in the given format, or another project when
--format is empty or "native". The source is read once to check that it
parses unless --skip-check is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.loadProject(ctx)
			if err != nil {
				return err
			}
			location, err := absLocation(args[1])
			if err != nil {
				return err
			}
			opts, err := parseOptions(rawOpts)
			if err != nil {
				return err
			}
			src := datumo.Source{URL: location, Format: a.settings.resolveFormat(format)}
			if len(opts) > 0 {
				src.Options = opts
			}

			if !skipCheck {
				if datumo.FormatKindOf(src.Format) == datumo.FormatNative {
					_, err = datumo.LoadProject(ctx, a.env, location)
				} else {
					_, err = a.env.Extract(ctx, location, src.Format, src.Options)
				}
				if err != nil {
					return fmt.Errorf("check source %q: %w", args[0], err)
				}
			}

			if err := p.AddSource(args[0], src); err != nil {
				return err
			}
			if err := p.Save(ctx, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added source %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "source format (default: nested project)")
	cmd.Flags().StringArrayVar(&rawOpts, "opt", nil, "extractor option key=value (repeatable)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "do not read the source before adding it")
	return cmd
}

func (a *app) newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Detach a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.loadProject(ctx)
			if err != nil {
				return err
			}
			if err := p.RemoveSource(args[0]); err != nil {
				return err
			}
			if err := p.Save(ctx, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed source %q\n", args[0])
			return nil
		},
	}
}

func (a *app) newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFORMAT\tURL")
			for _, s := range p.Config.Sources {
				format := s.Format
				if datumo.FormatKindOf(format) == datumo.FormatNative {
					format = datumo.FormatNativeName
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, format, s.URL)
			}
			return tw.Flush()
		},
	}
}
