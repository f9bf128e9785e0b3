package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/justapithecus/datumo/datumo"
)

func (a *app) newCreateCmd() *cobra.Command {
	var (
		name      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty project",
		Long: `Create writes an empty project configuration to
<project>/.datumo/config.yaml. The project name defaults to the directory
name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !overwrite {
				if _, err := a.loadProject(ctx); err == nil {
					return fmt.Errorf("project already exists in %s (use --overwrite)", a.projectDir)
				}
			}
			cfg := datumo.DefaultConfig()
			cfg.ProjectName = name
			if cfg.ProjectName == "" {
				abs, err := filepath.Abs(a.projectDir)
				if err != nil {
					return err
				}
				cfg.ProjectName = filepath.Base(abs)
			}
			p, err := datumo.GenerateProject(ctx, a.env, a.projectDir, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %q in %s\n", cfg.ProjectName, p.Dir())
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "project name")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing project configuration")
	return cmd
}
