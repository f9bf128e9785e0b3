package native

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
)

func testCategories() datumo.Categories {
	labels := datumo.NewLabelCategories("cat", "dog")
	labels.Add("tail", "cat", "fluffy")
	points := &datumo.PointsCategories{}
	points.Add(0, []string{"head", "tail"}, [][2]int{{1, 2}})
	return datumo.Categories{
		datumo.KindLabel:  labels,
		datumo.KindMask:   datumo.NewMaskCategories(datumo.GenerateColormap(3)),
		datumo.KindPoints: points,
	}
}

func testRaster() *datumo.Raster {
	r := datumo.NewRaster(4, 3)
	r.SetIndex(1, 1, 1)
	r.SetIndex(2, 1, 1)
	return r
}

func testItems() []*datumo.DatasetItem {
	return []*datumo.DatasetItem{
		{
			ID:     "a",
			Subset: "train",
			Path:   []string{"src"},
			Size:   image.Pt(4, 3),
			Annotations: []datumo.Annotation{
				datumo.NewLabel(1),
				datumo.NewBbox(1, 2, 3, 4, 0),
				&datumo.Mask{AnnotationBase: datumo.AnnotationBase{ID: 2, Label: 0}, Image: datumo.Resolved(testRaster())},
				&datumo.Points{
					AnnotationBase: datumo.AnnotationBase{Label: 0, Group: 3, Attributes: datumo.Attributes{"occluded": true}},
					Points:         []float64{1, 1, 2, 2},
					Visibility:     []datumo.Visibility{datumo.VisibilityVisible, datumo.VisibilityHidden},
				},
			},
		},
		{
			ID:     "b",
			Subset: "val",
			Annotations: []datumo.Annotation{
				&datumo.Polygon{AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel}, Points: []float64{0, 0, 1, 0, 1, 1}},
				&datumo.PolyLine{AnnotationBase: datumo.AnnotationBase{Label: 1}, Points: []float64{0, 0, 2, 2}},
				&datumo.Caption{AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel}, Caption: "two dogs"},
			},
		},
	}
}

func convert(t *testing.T, src datumo.Extractor, opts datumo.Options) datumo.Store {
	t.Helper()
	c, err := NewConverter(opts)
	require.NoError(t, err)
	dst := datumo.NewMemory()
	require.NoError(t, c.Convert(context.Background(), src, dst))
	return dst
}

func TestNative_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := datumo.DatasetFromItems(testCategories(), testItems()...)

	store := convert(t, src, nil)

	ex, err := NewExtractor(ctx, store, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "val"}, ex.Subsets())
	assert.Equal(t, 2, ex.Len())
	assert.True(t, ex.Categories().Equal(src.Categories()))

	got, err := datumo.LoadDataset(ctx, ex)
	require.NoError(t, err)
	for _, want := range testItems() {
		it, ok := got.Get(want.Subset, want.ID)
		require.True(t, ok, want.ID)
		assert.Equal(t, want.Path, it.Path)
		assert.Equal(t, want.Size, it.Size)
		assert.True(t, datumo.AnnotationsEqual(want.Annotations, it.Annotations), "item %s annotations differ", want.ID)
	}
}

func TestNative_MaskIDsSharedAcrossSubsets(t *testing.T) {
	ctx := context.Background()
	mask := func() datumo.Annotation {
		return &datumo.Mask{AnnotationBase: datumo.AnnotationBase{Label: 0}, Image: datumo.Resolved(testRaster())}
	}
	src := datumo.DatasetFromItems(testCategories(),
		&datumo.DatasetItem{ID: "x", Subset: "a", Annotations: []datumo.Annotation{mask()}},
		&datumo.DatasetItem{ID: "y", Subset: "b", Annotations: []datumo.Annotation{mask(), mask()}},
	)

	store := convert(t, src, datumo.Options{datumo.OptWorkers: 2})

	paths, err := store.List(ctx, MasksDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"annotations/masks/1.png", "annotations/masks/2.png", "annotations/masks/3.png"}, paths)
}

func TestNative_SaveImages(t *testing.T) {
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	src := datumo.DatasetFromItems(datumo.Categories{},
		&datumo.DatasetItem{ID: "dir/img", Image: datumo.Resolved[image.Image](img), Size: image.Pt(2, 2)},
	)

	store := convert(t, src, datumo.Options{datumo.OptSaveImages: true})

	ok, err := store.Exists(ctx, "images/default/dir/img.png")
	require.NoError(t, err)
	require.True(t, ok)

	ex, err := NewExtractor(ctx, store, nil)
	require.NoError(t, err)
	for it, err := range ex.Items(ctx) {
		require.NoError(t, err)
		require.True(t, it.HasImage())
		decoded, err := it.Image.Resolve()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 2, 2), decoded.Bounds())
	}
}

func TestNative_SameIDInTwoSubsetsKeepsBothImages(t *testing.T) {
	ctx := context.Background()
	gray := func(v uint8) *datumo.DatasetItem {
		img := image.NewGray(image.Rect(0, 0, 2, 1))
		img.Pix[0], img.Pix[1] = v, v
		return &datumo.DatasetItem{ID: "1", Image: datumo.Resolved[image.Image](img), Size: image.Pt(2, 1)}
	}
	train, val := gray(10), gray(200)
	train.Subset, val.Subset = "train", "val"
	src := datumo.DatasetFromItems(datumo.Categories{}, train, val)

	store := convert(t, src, datumo.Options{datumo.OptSaveImages: true})

	paths, err := store.List(ctx, ImagesDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"images/train/1.png", "images/val/1.png"}, paths)

	ex, err := NewExtractor(ctx, store, nil)
	require.NoError(t, err)
	want := map[string]uint8{"train": 10, "val": 200}
	for it, err := range ex.Items(ctx) {
		require.NoError(t, err)
		require.True(t, it.HasImage())
		decoded, err := it.Image.Resolve()
		require.NoError(t, err)
		r, _, _, _ := decoded.At(1, 0).RGBA()
		assert.Equal(t, want[it.Subset], uint8(r>>8), "subset %s", it.Subset)
	}
}

func TestNewConverter_SerialByDefault(t *testing.T) {
	c, err := NewConverter(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.(*Converter).workers)

	c, err = NewConverter(datumo.Options{datumo.OptWorkers: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, c.(*Converter).workers)
}

func TestNative_EmptyDatasetWritesDefaultSubset(t *testing.T) {
	store := convert(t, datumo.NewDataset(testCategories()), nil)

	ex, err := NewExtractor(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{datumo.DefaultSubset}, ex.Subsets())
	assert.Zero(t, ex.Len())
	assert.True(t, ex.Categories().Equal(testCategories()))
}

func TestNative_SubsetOption(t *testing.T) {
	store := convert(t, datumo.DatasetFromItems(testCategories(), testItems()...), nil)

	ex, err := NewExtractor(context.Background(), store, datumo.Options{OptSubset: "val"})
	require.NoError(t, err)
	assert.Equal(t, []string{"val"}, ex.Subsets())
	assert.Equal(t, 1, ex.Len())
}

func TestNative_MissingAnnotations(t *testing.T) {
	_, err := NewExtractor(context.Background(), datumo.NewMemory(), nil)
	require.ErrorIs(t, err, datumo.ErrNotFound)
}

func TestNative_MalformedDocument(t *testing.T) {
	ctx := context.Background()
	store := datumo.NewMemory()
	require.NoError(t, store.Put(ctx, subsetPath("train"), strings.NewReader(`{"items": [`)))

	_, err := NewExtractor(ctx, store, nil)
	require.ErrorIs(t, err, datumo.ErrMalformedInput)
}

func TestNative_UnknownAnnotationType(t *testing.T) {
	ctx := context.Background()
	store := datumo.NewMemory()
	doc := `{"categories": {}, "items": [{"id": "a", "annotations": [{"id": 0, "type": "cuboid"}]}]}`
	require.NoError(t, store.Put(ctx, subsetPath("train"), strings.NewReader(doc)))

	ex, err := NewExtractor(ctx, store, nil)
	require.NoError(t, err)
	for _, err := range ex.Items(ctx) {
		require.ErrorIs(t, err, datumo.ErrMalformedInput)
	}
}

func TestImporter_OneSourcePerSubset(t *testing.T) {
	ctx := context.Background()
	store := convert(t, datumo.DatasetFromItems(testCategories(), testItems()...), nil)

	im, err := NewImporter(nil)
	require.NoError(t, err)

	ok, err := im.(datumo.Detector).Detect(ctx, store)
	require.NoError(t, err)
	assert.True(t, ok)

	reg := sourceRecorder{}
	require.NoError(t, im.Import(ctx, store, "/data/ds", nil, reg))
	require.Len(t, reg, 2)
	assert.Equal(t, datumo.Source{
		Name:    "val",
		URL:     "/data/ds",
		Format:  datumo.DefaultFormat,
		Options: datumo.Options{OptSubset: "val"},
	}, reg["val"])
}

func TestImporter_DetectEmpty(t *testing.T) {
	ok, err := Importer{}.Detect(context.Background(), datumo.NewMemory())
	require.NoError(t, err)
	assert.False(t, ok)
}

type sourceRecorder map[string]datumo.Source

func (r sourceRecorder) AddSource(name string, src datumo.Source) error {
	r[name] = src
	return nil
}
