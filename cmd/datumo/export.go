package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/justapithecus/datumo/datumo"
)

// archiveFromConfig is the --archive value selecting the configured default.
const archiveFromConfig = "default"

func (a *app) newExportCmd() *cobra.Command {
	var (
		format      string
		output      string
		archive     string
		saveImages  bool
		removeEmpty bool
		subsets     []string
		rawOpts     []string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert the project dataset to another format",
		Long: `Export writes the merged project dataset with the named converter to a
directory or store URL. With --archive, or an output name ending in .zip,
.tar.gz, .tgz, .tar.zst or .tar.lz4, the converted files are packed into a
single archive instead.

Example:
  datumo export -f yolo -o ./yolo-out --save-images
  datumo export -f voc_det -o ./voc.tar.zst --subset train
  datumo export -f parquet -o s3://bucket/exports/pets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := parseOptions(rawOpts)
			if err != nil {
				return err
			}
			if saveImages {
				opts[datumo.OptSaveImages] = true
			}
			format = a.settings.resolveFormat(format)

			p, err := a.loadProject(ctx)
			if err != nil {
				return err
			}
			pd, err := p.MakeDataset(ctx)
			if err != nil {
				return err
			}
			filter := datumo.Filter{RemoveEmpty: removeEmpty}
			if len(subsets) > 0 {
				filter.Items = func(it *datumo.DatasetItem) bool {
					return slices.Contains(subsets, it.SubsetName())
				}
			}

			packed, err := a.archiveFormat(archive, output)
			if err != nil {
				return err
			}
			if packed != "" {
				if err := exportArchive(cmd, a.env, filter.Apply(pd), format, opts, output, packed); err != nil {
					return err
				}
			} else {
				conv, err := a.env.MakeConverter(format, opts)
				if err != nil {
					return err
				}
				if err := pd.ExportProject(ctx, output, conv, filter); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s as %s to %s\n", p.Config.ProjectName, format, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "converter name")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory, store URL or archive file")
	cmd.Flags().StringVar(&archive, "archive", "", "pack into an archive: zip, tar.gz, tar.zst or tar.lz4")
	cmd.Flags().Lookup("archive").NoOptDefVal = archiveFromConfig
	cmd.Flags().BoolVar(&saveImages, "save-images", false, "write item images")
	cmd.Flags().StringSliceVar(&subsets, "subset", nil, "export only these subsets")
	cmd.Flags().BoolVar(&removeEmpty, "remove-empty", false, "drop items without annotations")
	cmd.Flags().StringArrayVar(&rawOpts, "opt", nil, "converter option key=value (repeatable)")
	_ = cmd.MarkFlagRequired("format")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// archiveFormat picks the archive container, or "" for a plain export.
func (a *app) archiveFormat(flag, output string) (datumo.ArchiveFormat, error) {
	switch flag {
	case "":
		if f, err := datumo.ParseArchiveFormat(output); err == nil {
			return f, nil
		}
		return "", nil
	case archiveFromConfig:
		return a.settings.Archive, nil
	default:
		return datumo.ParseArchiveFormat(flag)
	}
}

func exportArchive(cmd *cobra.Command, env *datumo.Environment, src datumo.Extractor, format string, opts datumo.Options, output string, packed datumo.ArchiveFormat) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}()
	return env.Export(cmd.Context(), src, format, opts, f, packed)
}
