package datumo

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(t *testing.T, ex Extractor) []string {
	t.Helper()
	var out []string
	for _, it := range items(t, ex) {
		out = append(out, it.SubsetName()+"/"+it.ID)
	}
	return out
}

func TestReindex_StableAcrossIterations(t *testing.T) {
	view := Reindex(10)(sampleDataset())

	want := []string{"train/10", "train/11", DefaultSubset + "/12"}
	assert.Equal(t, want, ids(t, view))
	assert.Equal(t, want, ids(t, view))
	assert.Equal(t, 3, view.Len())
}

func TestFilterItems(t *testing.T) {
	view := FilterItems(func(it *DatasetItem) bool { return it.SubsetName() == "train" })(sampleDataset())
	assert.Equal(t, []string{"train/1", "train/2"}, ids(t, view))
	assert.Equal(t, []string{"train"}, view.Subsets())
	assert.Equal(t, 2, view.Len())
}

func TestFilterAnnotations(t *testing.T) {
	onlyLabels := func(_ *DatasetItem, a Annotation) bool { return a.Kind() == KindLabel }

	kept := FilterAnnotations(onlyLabels, false)(sampleDataset())
	assert.Equal(t, 3, kept.Len())
	for _, it := range items(t, kept) {
		for _, a := range it.Annotations {
			assert.Equal(t, KindLabel, a.Kind())
		}
	}

	dropped := FilterAnnotations(onlyLabels, true)(sampleDataset())
	assert.Equal(t, []string{"train/1", DefaultSubset + "/3"}, ids(t, dropped))
	assert.Equal(t, 2, dropped.Len())
}

func TestFilterAnnotations_SourceUntouched(t *testing.T) {
	ds := sampleDataset()
	none := func(*DatasetItem, Annotation) bool { return false }
	_ = items(t, FilterAnnotations(none, false)(ds))

	it, _ := ds.Get("train", "1")
	assert.Len(t, it.Annotations, 1)
}

func TestRemapSubsets(t *testing.T) {
	view := RemapSubsets(map[string]string{"train": "val", DefaultSubset: ""})(sampleDataset())
	assert.Equal(t, []string{"val/1", "val/2"}, ids(t, view))
	assert.Equal(t, []string{"val"}, view.Subsets())
}

type fixedLauncher struct{ cats Categories }

func (fixedLauncher) Launch(_ context.Context, img image.Image) ([]Annotation, error) {
	b := img.Bounds()
	return []Annotation{NewBbox(0, 0, float64(b.Dx()), float64(b.Dy()), 0)}, nil
}

func (l fixedLauncher) Categories() Categories { return l.cats }

func TestModelInference(t *testing.T) {
	src := DatasetFromItems(Categories{KindLabel: NewLabelCategories("old")},
		&DatasetItem{ID: "img", Image: Resolved[image.Image](image.NewGray(image.Rect(0, 0, 3, 2))), Annotations: []Annotation{NewLabel(0)}},
		&DatasetItem{ID: "noimg", Annotations: []Annotation{NewLabel(0)}},
	)
	cats := Categories{KindLabel: NewLabelCategories("object")}

	view := ModelInference(fixedLauncher{cats: cats})(src)
	assert.True(t, view.Categories().Equal(cats))
	got := items(t, view)
	require.Len(t, got, 2)
	assert.True(t, AnnotationsEqual([]Annotation{NewBbox(0, 0, 3, 2, 0)}, got[0].Annotations))
	assert.Empty(t, got[1].Annotations)
}

func TestModelInference_LauncherError(t *testing.T) {
	boom := errors.New("boom")
	src := DatasetFromItems(nil,
		&DatasetItem{ID: "img", Image: Resolved[image.Image](image.NewGray(image.Rect(0, 0, 1, 1)))})
	view := ModelInference(LauncherFunc(func(context.Context, image.Image) ([]Annotation, error) {
		return nil, boom
	}))(src)

	for _, err := range view.Items(context.Background()) {
		assert.ErrorIs(t, err, boom)
	}
}

func TestChain(t *testing.T) {
	view := Chain(
		RemapSubsets(map[string]string{DefaultSubset: "train"}),
		Reindex(0),
	)(sampleDataset())
	assert.Equal(t, []string{"train/0", "train/1", "train/2"}, ids(t, view))
}
