package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/justapithecus/datumo/datumo"
)

func (a *app) newMergeCmd() *cobra.Command {
	var (
		output     string
		name       string
		saveImages bool
	)
	cmd := &cobra.Command{
		Use:   "merge <project> <project>...",
		Short: "Merge projects into a new self-contained project",
		Long: `Merge loads every project, overlays them in argument order and saves the
union as a new project without sources. Categories must agree across the
inputs; items present in several inputs get the union of their annotations
and keep the first image.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := datumo.DefaultConfig()
			cfg.ProjectName = name
			if name == "" {
				cfg.ProjectName = filepath.Base(output)
			}
			p := datumo.NewProject(a.env, cfg)

			seen := map[string]int{}
			for _, arg := range args {
				dir, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				srcName := filepath.Base(dir)
				if n := seen[srcName]; n > 0 {
					srcName += "-" + strconv.Itoa(n+1)
				}
				seen[filepath.Base(dir)]++
				if err := p.AddSource(srcName, datumo.Source{URL: dir, Format: datumo.FormatNativeName}); err != nil {
					return err
				}
			}

			pd, err := p.MakeDataset(ctx)
			if err != nil {
				return err
			}
			if err := pd.Save(ctx, datumo.SaveOptions{Dir: output, Merge: true, SaveImages: saveImages}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d projects (%d items) into %s\n", len(args), pd.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "directory of the merged project")
	cmd.Flags().StringVarP(&name, "name", "n", "", "merged project name (default: output directory name)")
	cmd.Flags().BoolVar(&saveImages, "save-images", false, "copy item images into the merged project")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
