package datumo_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
	"github.com/justapithecus/datumo/datumo/formats/native"
	"github.com/justapithecus/datumo/internal/testutil"
)

func newEnv(t *testing.T, opts ...datumo.Option) *datumo.Environment {
	t.Helper()
	env, err := datumo.NewEnvironment(append([]datumo.Option{datumo.WithModules(native.Module())}, opts...)...)
	require.NoError(t, err)
	return env
}

// writeProject saves items as the own dataset of a new project in dir.
func writeProject(t *testing.T, env *datumo.Environment, dir string, items ...*datumo.DatasetItem) {
	t.Helper()
	ctx := context.Background()
	pd, err := datumo.NewProject(env, datumo.DefaultConfig()).MakeDataset(ctx)
	require.NoError(t, err)
	require.NoError(t, pd.DefineCategories(testutil.Labels("a", "b")))
	for _, it := range items {
		_, err := pd.Put(ctx, it, nil)
		require.NoError(t, err)
	}
	require.NoError(t, pd.Save(ctx, datumo.SaveOptions{Dir: dir}))
}

func loadDataset(t *testing.T, env *datumo.Environment, dir string) *datumo.ProjectDataset {
	t.Helper()
	p, err := datumo.LoadProject(context.Background(), env, dir)
	require.NoError(t, err)
	pd, err := p.MakeDataset(context.Background())
	require.NoError(t, err)
	return pd
}

func item(id, subset string, anns ...datumo.Annotation) *datumo.DatasetItem {
	return &datumo.DatasetItem{ID: id, Subset: subset, Annotations: anns}
}

type provenance struct {
	ID   string
	Path []string
}

func provenanceOf(t *testing.T, ex datumo.Extractor) []provenance {
	t.Helper()
	var out []provenance
	for _, it := range testutil.Items(t, ex) {
		out = append(out, provenance{ID: it.SubsetName() + "/" + it.ID, Path: it.Path})
	}
	return out
}

func TestProject_SaveLoad(t *testing.T) {
	env := newEnv(t)
	dir := filepath.Join(t.TempDir(), "proj")
	writeProject(t, env, dir,
		item("1", "train", datumo.NewLabel(0)),
		item("2", "val", datumo.NewBbox(1, 2, 3, 4, 1)))

	pd := loadDataset(t, env, dir)
	assert.Equal(t, 2, pd.Len())
	assert.True(t, pd.Categories().Equal(testutil.Labels("a", "b")))

	it, err := pd.Get(context.Background(), "val", "2", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewBbox(1, 2, 3, 4, 1)}, it.Annotations))

	_, err = pd.Get(context.Background(), "val", "missing", nil)
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}

func TestLoadProject_Missing(t *testing.T) {
	_, err := datumo.LoadProject(context.Background(), newEnv(t), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}

func TestProject_NestedWriteBack(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	childDir, siblingDir := filepath.Join(root, "child"), filepath.Join(root, "sibling")
	writeProject(t, env, childDir, item("x", "train", datumo.NewLabel(0)))
	writeProject(t, env, siblingDir, item("y", "val", datumo.NewBbox(1, 1, 2, 2, 1)))

	cfg := datumo.DefaultConfig()
	cfg.Sources = []datumo.Source{{Name: "child", URL: "../child"}, {Name: "sibling", URL: "../sibling"}}
	parent, err := datumo.GenerateProject(ctx, env, filepath.Join(root, "parent"), cfg)
	require.NoError(t, err)

	pd, err := parent.MakeDataset(ctx)
	require.NoError(t, err)
	want := []provenance{
		{ID: "train/x", Path: []string{"child"}},
		{ID: "val/y", Path: []string{"sibling"}},
	}
	if diff := cmp.Diff(want, provenanceOf(t, pd)); diff != "" {
		t.Fatalf("provenance mismatch (-want +got):\n%s", diff)
	}

	it, err := pd.Get(ctx, "train", "x", []string{"child"})
	require.NoError(t, err)
	upd := it.Clone()
	upd.Annotations = append(upd.Annotations, datumo.NewLabel(1))
	_, err = pd.Put(ctx, upd, []string{"child"})
	require.NoError(t, err)
	require.NoError(t, pd.Save(ctx, datumo.SaveOptions{}))

	wantAnns := []datumo.Annotation{datumo.NewLabel(0), datumo.NewLabel(1)}
	child := loadDataset(t, env, childDir)
	got, err := child.Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual(wantAnns, got.Annotations))

	sibling := loadDataset(t, env, siblingDir)
	assert.Equal(t, 1, sibling.Len())
	y, err := sibling.Get(ctx, "val", "y", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewBbox(1, 1, 2, 2, 1)}, y.Annotations))
	_, err = sibling.Get(ctx, "train", "x", nil)
	assert.ErrorIs(t, err, datumo.ErrNotFound)

	reloaded := loadDataset(t, env, filepath.Join(root, "parent"))
	got, err = reloaded.Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, got.Path)
	assert.True(t, datumo.AnnotationsEqual(wantAnns, got.Annotations))
	assert.Zero(t, reloaded.IterateOwn().Len())
}

func TestProject_NoRecursiveKeepsSources(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	childDir := filepath.Join(root, "child")
	writeProject(t, env, childDir, item("x", "train", datumo.NewLabel(0)))

	cfg := datumo.DefaultConfig()
	cfg.Sources = []datumo.Source{{Name: "child", URL: childDir}}
	parent, err := datumo.GenerateProject(ctx, env, filepath.Join(root, "parent"), cfg)
	require.NoError(t, err)
	pd, err := parent.MakeDataset(ctx)
	require.NoError(t, err)

	_, err = pd.Put(ctx, item("x", "train", datumo.NewLabel(1)), []string{"child"})
	require.NoError(t, err)
	require.NoError(t, pd.Save(ctx, datumo.SaveOptions{NoRecursive: true}))

	got, err := loadDataset(t, env, childDir).Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewLabel(0)}, got.Annotations))
}

func TestProject_CollidingSourcesLoseProvenance(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	writeProject(t, env, filepath.Join(root, "a"), item("x", "train", datumo.NewLabel(0)), item("only-a", "train"))
	writeProject(t, env, filepath.Join(root, "b"), item("x", "train", datumo.NewLabel(1)))

	p := datumo.NewProject(env, datumo.DefaultConfig())
	require.NoError(t, p.AddSource("a", datumo.Source{URL: filepath.Join(root, "a")}))
	require.NoError(t, p.AddSource("b", datumo.Source{URL: filepath.Join(root, "b"), Format: datumo.FormatNativeName}))
	assert.ErrorIs(t, p.AddSource("a", datumo.Source{}), datumo.ErrAmbiguous)

	pd, err := p.MakeDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pd.SourceNames())
	if diff := cmp.Diff([]provenance{
		{ID: "train/x"},
		{ID: "train/only-a", Path: []string{"a"}},
	}, provenanceOf(t, pd)); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}

	x, err := pd.Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewLabel(0), datumo.NewLabel(1)}, x.Annotations))
}

func TestProject_ForeignSourceIsReadOnly(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	writeProject(t, env, filepath.Join(root, "data"), item("x", "train", datumo.NewLabel(0)))

	p := datumo.NewProject(env, datumo.DefaultConfig())
	require.NoError(t, p.AddSource("frozen", datumo.Source{
		URL:    filepath.Join(root, "data", datumo.DefaultDatasetDir),
		Format: datumo.DefaultFormat,
	}))
	pd, err := p.MakeDataset(ctx)
	require.NoError(t, err)

	it, err := pd.Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.Empty(t, it.Path)

	routed, err := pd.Get(ctx, "train", "x", []string{"frozen"})
	require.NoError(t, err)
	assert.Equal(t, "x", routed.ID)

	_, err = pd.Put(ctx, item("y", "train"), []string{"frozen"})
	assert.Error(t, err)
	_, err = pd.Get(ctx, "train", "x", []string{"nope"})
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}

func TestProject_OwnDatasetOverridesSources(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	src := testutil.Item("x", "train", datumo.NewLabel(0))
	srcDir := filepath.Join(root, "src")

	store, err := datumo.NewFS(filepath.Join(srcDir, datumo.DefaultDatasetDir))
	require.NoError(t, err)
	conv, err := native.NewConverter(datumo.Options{datumo.OptSaveImages: true})
	require.NoError(t, err)
	require.NoError(t, conv.Convert(ctx, datumo.DatasetFromItems(testutil.Labels("a", "b"), src), store))

	cfg := datumo.DefaultConfig()
	cfg.Sources = []datumo.Source{{Name: "src", URL: filepath.Join(srcDir, datumo.DefaultDatasetDir), Format: datumo.DefaultFormat}}
	dir := filepath.Join(root, "proj")
	p, err := datumo.GenerateProject(ctx, env, dir, cfg)
	require.NoError(t, err)

	pd, err := p.MakeDataset(ctx)
	require.NoError(t, err)
	_, err = pd.Put(ctx, item("x", "train", datumo.NewLabel(1)), nil)
	require.NoError(t, err)
	require.NoError(t, pd.Save(ctx, datumo.SaveOptions{}))

	reloaded := loadDataset(t, env, dir)
	got, err := reloaded.Get(ctx, "train", "x", nil)
	require.NoError(t, err)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewLabel(1)}, got.Annotations))
	assert.True(t, got.HasImage(), "own item borrows the source image")
}

func TestProject_SubsetAllowList(t *testing.T) {
	env := newEnv(t)
	dir := filepath.Join(t.TempDir(), "proj")
	writeProject(t, env, dir, item("1", "train"), item("2", "val"))

	p, err := datumo.LoadProject(context.Background(), env, dir)
	require.NoError(t, err)
	p.SetSubsets([]string{"val"})
	pd, err := p.MakeDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"val"}, pd.Subsets())
	assert.Equal(t, 1, pd.Len())
}

func TestImportProject_Detects(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	dir := filepath.Join(t.TempDir(), "proj")
	writeProject(t, env, dir, item("1", "train"), item("2", "val"))

	p, err := datumo.ImportProject(ctx, env, filepath.Join(dir, datumo.DefaultDatasetDir), "", nil)
	require.NoError(t, err)
	var names []string
	for _, s := range p.Config.Sources {
		names = append(names, s.Name)
		assert.Equal(t, datumo.DefaultFormat, s.Format)
	}
	assert.ElementsMatch(t, []string{"train", "val"}, names)

	pd, err := p.MakeDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pd.Len())

	_, err = datumo.ImportProject(ctx, env, t.TempDir(), "", nil)
	assert.ErrorIs(t, err, datumo.ErrNotFound)
	_, err = datumo.ImportProject(ctx, env, t.TempDir(), "nope", nil)
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}

func TestProject_SnapshotHook(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, datumo.WithSaveHook(datumo.SnapshotHook()))
	dir := filepath.Join(t.TempDir(), "proj")
	writeProject(t, env, dir, item("1", "train"), item("2", "train"))

	pd := loadDataset(t, env, dir)
	require.NoError(t, pd.Save(ctx, datumo.SaveOptions{}))

	store, err := datumo.NewFS(dir)
	require.NoError(t, err)
	snaps, err := datumo.ListSnapshots(ctx, store, datumo.DefaultEnvDir)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Merged)
	assert.False(t, snaps[1].Merged)
	assert.Equal(t, snaps[0].SnapshotID, snaps[1].ParentSnapshotID)
	assert.Equal(t, 2, snaps[1].ItemCount)
}

func TestProject_SaveHookError(t *testing.T) {
	boom := errors.New("hook failed")
	env := newEnv(t, datumo.WithSaveHook(func(context.Context, datumo.SaveEvent) error { return boom }))
	pd, err := datumo.NewProject(env, datumo.DefaultConfig()).MakeDataset(context.Background())
	require.NoError(t, err)

	err = pd.Save(context.Background(), datumo.SaveOptions{Dir: t.TempDir()})
	assert.ErrorIs(t, err, boom)
}

type failingConverter struct{}

func (failingConverter) Name() string { return "failing" }

func (failingConverter) Convert(context.Context, datumo.Extractor, datumo.Store) error {
	return errors.New("disk full")
}

func TestProject_Export(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	dir := filepath.Join(t.TempDir(), "proj")
	writeProject(t, env, dir, item("1", "train", datumo.NewLabel(0)), item("2", "val"))
	pd := loadDataset(t, env, dir)

	conv, err := native.NewConverter(nil)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, pd.ExportProject(ctx, out, conv, datumo.Filter{
		Items: func(it *datumo.DatasetItem) bool { return it.SubsetName() == "train" },
	}))
	assert.FileExists(t, filepath.Join(out, "annotations", "train.json"))
	assert.NoFileExists(t, filepath.Join(out, "annotations", "val.json"))

	failed := filepath.Join(t.TempDir(), "failed")
	assert.Error(t, pd.ExportProject(ctx, failed, failingConverter{}, datumo.Filter{}))
	_, statErr := os.Stat(failed)
	assert.True(t, os.IsNotExist(statErr))
}

func TestProject_TransformAndExtract(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	writeProject(t, env, filepath.Join(root, "proj"),
		item("a", "train", datumo.NewLabel(0)),
		item("b", "train"),
		item("c", "val", datumo.NewLabel(1)))
	pd := loadDataset(t, env, filepath.Join(root, "proj"))

	reindexed, err := pd.TransformProject(ctx, datumo.Reindex(1), filepath.Join(root, "reindexed"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "reindexed"), reindexed.Dir())
	got := provenanceOf(t, loadDataset(t, env, reindexed.Dir()))
	if diff := cmp.Diff([]provenance{{ID: "train/1"}, {ID: "train/2"}, {ID: "val/3"}}, got); diff != "" {
		t.Errorf("reindexed mismatch (-want +got):\n%s", diff)
	}

	extracted, err := pd.ExtractProject(ctx, datumo.Filter{
		Annotations: func(_ *datumo.DatasetItem, a datumo.Annotation) bool { return a.Base().Label == 0 },
		RemoveEmpty: true,
	}, filepath.Join(root, "extracted"))
	require.NoError(t, err)
	got = provenanceOf(t, loadDataset(t, env, extracted.Dir()))
	if diff := cmp.Diff([]provenance{{ID: "train/a"}}, got); diff != "" {
		t.Errorf("extracted mismatch (-want +got):\n%s", diff)
	}
}

func TestProject_ApplyModel(t *testing.T) {
	ctx := context.Background()
	launcher := datumo.Module{Name: "whole-image", Export: datumo.LauncherFactory(func(opts datumo.Options) (datumo.Launcher, error) {
		if _, ok := opts["model_dir"]; !ok {
			return nil, errors.New("model_dir not set")
		}
		return datumo.LauncherFunc(func(_ context.Context, img image.Image) ([]datumo.Annotation, error) {
			b := img.Bounds()
			return []datumo.Annotation{datumo.NewBbox(0, 0, float64(b.Dx()), float64(b.Dy()), 0)}, nil
		}), nil
	})}
	env := newEnv(t, datumo.WithModules(launcher))

	p := datumo.NewProject(env, datumo.DefaultConfig())
	require.NoError(t, p.AddModel(datumo.Model{Name: "m", Launcher: "whole-image"}))
	pd, err := p.MakeDataset(ctx)
	require.NoError(t, err)
	require.NoError(t, pd.DefineCategories(testutil.Labels("object")))
	_, err = pd.Put(ctx, testutil.Item("img", "train", datumo.NewLabel(0)), nil)
	require.NoError(t, err)

	out, err := pd.ApplyModel(ctx, "m", filepath.Join(t.TempDir(), "predicted"))
	require.NoError(t, err)

	got, err := loadDataset(t, env, out.Dir()).Get(ctx, "train", "img", nil)
	require.NoError(t, err)
	assert.True(t, got.HasImage())
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewBbox(0, 0, 64, 48, 0)}, got.Annotations))

	_, err = pd.ApplyModel(ctx, "missing", t.TempDir())
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}
