package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justapithecus/datumo/datumo"
	"github.com/justapithecus/datumo/datumo/formats/builtin"
)

// app holds the global flag values and the environment shared by every
// subcommand.
type app struct {
	configFile string
	projectDir string

	settings settings
	env      *datumo.Environment
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "datumo",
		Short: "Build, merge and convert annotation datasets",
		Long: `datumo manages dataset projects: it attaches sources in any supported
annotation format, merges them with provenance tracking, and exports the
result to another format, a directory or an archive.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./datumo.yaml or ~/.config/datumo/datumo.yaml)")
	root.PersistentFlags().StringVarP(&a.projectDir, "project", "p", ".", "project directory")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.newCreateCmd(),
		a.newImportCmd(),
		a.newSourceCmd(),
		a.newExportCmd(),
		a.newMergeCmd(),
		a.newFormatsCmd(),
		newVersionCmd(),
	)
	return root
}

// init loads settings and builds the environment.
func (a *app) init(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	s, err := loadSettings(a.configFile, func(v *viper.Viper) error {
		if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
			return v.BindPFlag(cfgKeyLogLevel, f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.settings = s

	opts := []datumo.Option{datumo.WithLogger(s.logger())}
	if s.Snapshots {
		opts = append(opts, datumo.WithSaveHook(datumo.SnapshotHook()))
	}
	a.env, err = builtin.NewEnvironment(s.Stores, opts...)
	if err != nil {
		return fmt.Errorf("create environment: %w", err)
	}
	return nil
}

func (a *app) loadProject(ctx context.Context) (*datumo.Project, error) {
	return datumo.LoadProject(ctx, a.env, a.projectDir)
}

// -----------------------------------------------------------------------------
// Flag helpers
// -----------------------------------------------------------------------------

// absLocation makes local paths absolute so a saved project can be opened
// from any working directory. URLs are returned unchanged.
func absLocation(location string) (string, error) {
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		return location, nil
	}
	return filepath.Abs(location)
}

// parseOptions turns repeated "key=value" flags into plugin options.
// Comma-separated values become lists; numbers and booleans are typed.
func parseOptions(raw []string) (datumo.Options, error) {
	opts := datumo.Options{}
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid option %q (expected key=value)", kv)
		}
		if strings.Contains(v, ",") {
			var list []any
			for part := range strings.SplitSeq(v, ",") {
				list = append(list, parseScalar(strings.TrimSpace(part)))
			}
			opts[k] = list
			continue
		}
		opts[k] = parseScalar(v)
	}
	return opts, nil
}

func parseScalar(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
