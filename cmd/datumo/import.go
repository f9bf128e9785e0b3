package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/justapithecus/datumo/datumo"
)

func (a *app) newImportCmd() *cobra.Command {
	var (
		format  string
		name    string
		rawOpts []string
	)
	cmd := &cobra.Command{
		Use:   "import <url>",
		Short: "Create a project from an existing dataset",
		Long: `Import creates a project whose sources are discovered by a format
importer. Without --format every importer that can recognize its layout is
asked and exactly one must match.

Example:
  datumo import ./VOC2012 -p ./voc-project
  datumo import s3://bucket/yolo -f yolo --opt image_size=640,480`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			location, err := absLocation(args[0])
			if err != nil {
				return err
			}
			opts, err := parseOptions(rawOpts)
			if err != nil {
				return err
			}
			p, err := datumo.ImportProject(ctx, a.env, location, a.settings.resolveFormat(format), opts)
			if err != nil {
				return err
			}
			p.Config.ProjectName = name
			if name == "" {
				abs, err := filepath.Abs(a.projectDir)
				if err != nil {
					return err
				}
				p.Config.ProjectName = filepath.Base(abs)
			}
			if err := p.Save(ctx, a.projectDir); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %s into %s\n", location, p.Dir())
			for _, s := range p.Config.Sources {
				fmt.Fprintf(out, "  %s (%s)\n", s.Name, s.Format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "importer name (default: detect)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "project name")
	cmd.Flags().StringArrayVar(&rawOpts, "opt", nil, "importer option key=value (repeatable)")
	return cmd
}
