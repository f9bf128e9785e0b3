package datumo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// Save hooks
// -----------------------------------------------------------------------------

// SaveEvent describes a completed project save.
type SaveEvent struct {
	// Dir is the absolute project directory written to.
	Dir string
	// Config is the configuration that was saved.
	Config Config
	// Dataset is what the saved project now holds.
	Dataset Extractor
	// Merged reports whether sources were flattened into the project.
	Merged bool
}

// SaveHook runs after a successful save. A hook error fails the save call
// but does not roll back files already written.
type SaveHook func(ctx context.Context, ev SaveEvent) error

// -----------------------------------------------------------------------------
// Snapshot manifests
// -----------------------------------------------------------------------------

// SnapshotsDir is the directory, relative to the project's env dir, holding
// snapshot manifests.
const SnapshotsDir = "snapshots"

// Manifest records the contents of a project at one save.
type Manifest struct {
	// SchemaName identifies the manifest schema.
	SchemaName string `json:"schema_name"`

	// FormatVersion identifies the manifest schema version.
	FormatVersion string `json:"format_version"`

	// Project is the saved project's name.
	Project string `json:"project"`

	// SnapshotID uniquely identifies this snapshot.
	SnapshotID string `json:"snapshot_id"`

	// ParentSnapshotID references the previous snapshot, if any.
	ParentSnapshotID string `json:"parent_snapshot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Merged    bool      `json:"merged"`
	Sources   []string  `json:"sources"`

	// Subsets maps each subset to its item count.
	Subsets   map[string]int `json:"subsets"`
	ItemCount int            `json:"item_count"`

	// Files lists the files of the project's own dataset directory.
	Files []FileRef `json:"files"`
}

// FileRef describes one dataset file.
type FileRef struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// SnapshotHook returns a SaveHook writing a Manifest to
// "<project>/<env_dir>/snapshots/<uuid>.json" on every save.
func SnapshotHook() SaveHook {
	return func(ctx context.Context, ev SaveEvent) error {
		store, err := NewFS(ev.Dir)
		if err != nil {
			return err
		}
		_, err = WriteSnapshot(ctx, store, ev)
		return err
	}
}

// WriteSnapshot records ev in the project store and returns the manifest.
func WriteSnapshot(ctx context.Context, store Store, ev SaveEvent) (*Manifest, error) {
	envDir := ev.Config.withDefaults().EnvDir
	prev, err := ListSnapshots(ctx, store, envDir)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		SchemaName:    "datumo-snapshot",
		FormatVersion: "1.0.0",
		Project:       ev.Config.ProjectName,
		SnapshotID:    uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Merged:        ev.Merged,
		Subsets:       make(map[string]int),
	}
	if len(prev) > 0 {
		m.ParentSnapshotID = prev[len(prev)-1].SnapshotID
	}
	for _, s := range ev.Config.Sources {
		m.Sources = append(m.Sources, s.Name)
	}
	if ev.Dataset != nil {
		for it, err := range ev.Dataset.Items(ctx) {
			if err != nil {
				return nil, err
			}
			m.Subsets[it.SubsetName()]++
			m.ItemCount++
		}
	}

	dsDir := ev.Config.withDefaults().DatasetDir
	files, err := store.List(ctx, dsDir)
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		n, err := objectSize(ctx, store, p)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, FileRef{Path: strings.TrimPrefix(p, dsDir+"/"), SizeBytes: n})
	}

	data, err := jsonCodec.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	p := path.Join(envDir, SnapshotsDir, m.SnapshotID+".json")
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	return m, nil
}

// ListSnapshots returns the manifests under envDir ordered by creation time.
func ListSnapshots(ctx context.Context, store Store, envDir string) ([]*Manifest, error) {
	paths, err := store.List(ctx, path.Join(envDir, SnapshotsDir))
	if err != nil {
		return nil, err
	}
	var out []*Manifest
	for _, p := range paths {
		if path.Ext(p) != ".json" {
			continue
		}
		data, err := readAll(ctx, store, p)
		if err != nil {
			return nil, err
		}
		var m Manifest
		if err := jsonCodec.Unmarshal(data, &m); err != nil {
			return nil, Malformed(p, err)
		}
		out = append(out, &m)
	}
	slices.SortStableFunc(out, func(a, b *Manifest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func objectSize(ctx context.Context, store Store, p string) (int64, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return 0, err
	}
	defer closer(rc)()
	return io.Copy(io.Discard, rc)
}
