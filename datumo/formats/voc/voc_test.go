package voc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
)

func convert(t *testing.T, src datumo.Extractor, opts datumo.Options, tasks ...Task) datumo.Store {
	t.Helper()
	c, err := NewConverter(opts, tasks...)
	require.NoError(t, err)
	dst := datumo.NewMemory()
	require.NoError(t, c.Convert(context.Background(), src, dst))
	return dst
}

func extract(t *testing.T, store datumo.Store, task Task) *datumo.Dataset {
	t.Helper()
	ctx := context.Background()
	ex, err := NewExtractor(ctx, store, task)
	require.NoError(t, err)
	ds, err := datumo.LoadDataset(ctx, ex)
	require.NoError(t, err)
	return ds
}

func bbox(id, label, group int, x, y, w, h float64, attrs datumo.Attributes) *datumo.Bbox {
	b := datumo.NewBbox(x, y, w, h, label)
	b.ID, b.Group, b.Attributes = id, group, attrs
	return b
}

func assertSameAnnotations(t *testing.T, want, got []datumo.Annotation) {
	t.Helper()
	require.Len(t, got, len(want))
	for _, w := range want {
		assert.True(t, slices.ContainsFunc(got, w.Equal), "missing %s annotation %+v", w.Kind(), w)
	}
}

func TestDetection_RoundTrip(t *testing.T) {
	cats := datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("background", "cat", "dog")}
	anns := []datumo.Annotation{
		bbox(1, 1, 0, 10, 20, 30, 40, datumo.Attributes{
			"difficult": false, "truncated": true, "occluded": false, "pose": "Left",
		}),
		bbox(2, 2, 0, 0, 0, 5, 5, datumo.Attributes{
			"difficult": true, "truncated": false, "occluded": false, "point": []float64{1, 2},
		}),
	}
	src := datumo.DatasetFromItems(cats,
		&datumo.DatasetItem{ID: "a", Subset: "train", Size: image.Pt(100, 80), Annotations: anns},
		&datumo.DatasetItem{ID: "b", Subset: "train"},
	)

	store := convert(t, src, nil, TaskDetection)
	got := extract(t, store, TaskDetection)

	assert.Equal(t, []string{"train"}, got.Subsets())
	assert.Equal(t, 2, got.Len())
	assert.True(t, got.Categories().Labels().Equal(cats.Labels()))

	it, ok := got.Get("train", "a")
	require.True(t, ok)
	assert.Equal(t, image.Pt(100, 80), it.Size)
	assertSameAnnotations(t, anns, it.Annotations)

	it, ok = got.Get("train", "b")
	require.True(t, ok)
	assert.Empty(t, it.Annotations)
}

func TestClassification_RoundTrip(t *testing.T) {
	cats := datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("background", "cat", "dog")}
	src := datumo.DatasetFromItems(cats,
		&datumo.DatasetItem{ID: "x", Subset: "val", Annotations: []datumo.Annotation{datumo.NewLabel(1), datumo.NewLabel(2)}},
		&datumo.DatasetItem{ID: "y", Subset: "val"},
	)

	store := convert(t, src, nil, TaskClassification)
	got := extract(t, store, TaskClassification)

	it, ok := got.Get("val", "x")
	require.True(t, ok)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewLabel(1), datumo.NewLabel(2)}, it.Annotations))
	it, ok = got.Get("val", "y")
	require.True(t, ok)
	assert.Empty(t, it.Annotations)
}

func TestSegmentation_RoundTrip(t *testing.T) {
	cats := datumo.Categories{
		datumo.KindLabel: datumo.NewLabelCategories("background", "cat", "dog"),
		datumo.KindMask:  datumo.NewMaskCategories(datumo.GenerateColormap(3)),
	}
	class := datumo.NewRaster(4, 4)
	class.SetIndex(0, 0, 1)
	class.SetIndex(3, 3, 2)
	inst := datumo.NewRaster(4, 4)
	inst.SetIndex(0, 0, 1)
	inst.SetIndex(3, 3, 2)
	anns := []datumo.Annotation{
		&datumo.Mask{
			AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel, Attributes: datumo.Attributes{AttrClass: true}},
			Image:          datumo.Resolved(class),
		},
		&datumo.Mask{
			AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel, Attributes: datumo.Attributes{AttrInstances: true}},
			Image:          datumo.Resolved(inst),
		},
	}
	src := datumo.DatasetFromItems(cats, &datumo.DatasetItem{ID: "s", Subset: "train", Annotations: anns})

	store := convert(t, src, nil, TaskSegmentation)
	got := extract(t, store, TaskSegmentation)

	assert.True(t, got.Categories().Equal(cats))
	it, ok := got.Get("train", "s")
	require.True(t, ok)
	assertSameAnnotations(t, anns, it.Annotations)
}

func TestSegmentation_LabeledMasksMerge(t *testing.T) {
	cats := datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("background", "cat")}
	r := datumo.NewRaster(2, 2)
	r.SetIndex(1, 1, 1)
	src := datumo.DatasetFromItems(cats, &datumo.DatasetItem{ID: "m", Annotations: []datumo.Annotation{
		&datumo.Mask{AnnotationBase: datumo.AnnotationBase{Label: 1}, Image: datumo.Resolved(r)},
	}})

	store := convert(t, src, nil, TaskSegmentation)
	got := extract(t, store, TaskSegmentation)

	it, ok := got.Get(datumo.DefaultSubset, "m")
	require.True(t, ok)
	require.Len(t, it.Annotations, 2)
	for _, ann := range it.Annotations {
		m := ann.(*datumo.Mask)
		raster, err := m.Image.Resolve()
		require.NoError(t, err)
		assert.Equal(t, 1, raster.Index(1, 1))
		assert.Equal(t, 0, raster.Index(0, 0))
	}
}

func TestLayout_RoundTrip(t *testing.T) {
	cats := DefaultLabelMap().Categories()
	labels := cats.Labels()
	person, _ := labels.Find("person")
	head, _ := labels.Find("head")

	attrs := datumo.Attributes{"difficult": false, "truncated": false, "occluded": false}
	for _, a := range DefaultActions {
		attrs[a] = a == "jumping"
	}
	anns := []datumo.Annotation{
		bbox(1, person, 1, 10, 10, 50, 100, attrs),
		bbox(0, head, 1, 20, 10, 10, 10, nil),
	}
	src := datumo.DatasetFromItems(cats, &datumo.DatasetItem{ID: "p", Subset: "train", Annotations: anns})

	store := convert(t, src, nil)
	got := extract(t, store, TaskLayout)
	assert.True(t, got.Categories().Labels().Equal(labels))

	it, ok := got.Get("train", "p")
	require.True(t, ok)
	assertSameAnnotations(t, anns, it.Annotations)

	action := extract(t, store, TaskAction)
	it, ok = action.Get("train", "p")
	require.True(t, ok)
	require.Len(t, it.Annotations, 1)
	assert.True(t, it.Annotations[0].Base().Attributes["jumping"].(bool))
}

func TestConverter_SkipsUnsupported(t *testing.T) {
	cats := datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("background", "cat")}
	src := datumo.DatasetFromItems(cats, &datumo.DatasetItem{ID: "a", Annotations: []datumo.Annotation{
		&datumo.Polygon{AnnotationBase: datumo.AnnotationBase{Label: 1}, Points: []float64{0, 0, 1, 0, 1, 1}},
		&datumo.Caption{AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel}, Caption: "x"},
	}})

	store := convert(t, src, nil, TaskDetection)
	ok, err := store.Exists(context.Background(), "Annotations/a.xml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	src := datumo.DatasetFromItems(datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("a")},
		&datumo.DatasetItem{ID: "i", Subset: "train", Image: datumo.Resolved[image.Image](img)})

	store := convert(t, src, datumo.Options{datumo.OptSaveImages: true}, TaskDetection)
	got := extract(t, store, TaskDetection)

	it, ok := got.Get("train", "i")
	require.True(t, ok)
	require.True(t, it.HasImage())
	decoded, err := it.Image.Resolve()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(8, 6), decoded.Bounds().Size())
}

func TestExtractor_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no subsets", func(t *testing.T) {
		_, err := NewExtractor(ctx, datumo.NewMemory(), TaskDetection)
		require.ErrorIs(t, err, datumo.ErrNotFound)
	})

	t.Run("unknown label", func(t *testing.T) {
		store := datumo.NewMemory()
		require.NoError(t, store.Put(ctx, "ImageSets/Main/train.txt", strings.NewReader("a\n")))
		require.NoError(t, store.Put(ctx, "Annotations/a.xml", strings.NewReader(
			`<annotation><filename>a.jpg</filename><object><name>unicorn</name>`+
				`<bndbox><xmin>1</xmin><ymin>1</ymin><xmax>2</xmax><ymax>2</ymax></bndbox></object></annotation>`)))

		ex, err := NewExtractor(ctx, store, TaskDetection)
		require.NoError(t, err)
		_, err = datumo.LoadDataset(ctx, ex)
		require.ErrorIs(t, err, datumo.ErrMalformedInput)
	})

	t.Run("bad xml", func(t *testing.T) {
		store := datumo.NewMemory()
		require.NoError(t, store.Put(ctx, "ImageSets/Main/train.txt", strings.NewReader("a\n")))
		require.NoError(t, store.Put(ctx, "Annotations/a.xml", strings.NewReader(`<annotation><object>`)))

		ex, err := NewExtractor(ctx, store, TaskDetection)
		require.NoError(t, err)
		_, err = datumo.LoadDataset(ctx, ex)
		require.ErrorIs(t, err, datumo.ErrMalformedInput)
	})
}

func TestExtractor_UnderscoreSubsetName(t *testing.T) {
	ctx := context.Background()
	store := datumo.NewMemory()
	require.NoError(t, store.Put(ctx, "ImageSets/Main/my_train.txt", strings.NewReader("a\nb\n")))
	require.NoError(t, store.Put(ctx, "ImageSets/Main/cat_my_train.txt", strings.NewReader("a 1\nb -1\n")))

	ex, err := NewExtractor(ctx, store, TaskClassification)
	require.NoError(t, err)
	assert.Equal(t, []string{"my_train"}, ex.Subsets())
	assert.Equal(t, 2, ex.Len())

	ds, err := datumo.LoadDataset(ctx, ex)
	require.NoError(t, err)
	cat, ok := ex.Categories().Labels().Find("cat")
	require.True(t, ok)
	it, ok := ds.Get("my_train", "a")
	require.True(t, ok)
	assert.True(t, datumo.AnnotationsEqual([]datumo.Annotation{datumo.NewLabel(cat)}, it.Annotations))
	it, ok = ds.Get("my_train", "b")
	require.True(t, ok)
	assert.Empty(t, it.Annotations)
}

func TestLabelMap(t *testing.T) {
	lm, err := ParseLabelMap(strings.NewReader(
		"# label:color_rgb:parts:actions\n" +
			"background:0,0,0::\n" +
			"person:192,128,128:head,hand:jumping\n"))
	require.NoError(t, err)

	cats := lm.Categories()
	labels := cats.Labels()
	require.Equal(t, 4, labels.Len())
	assert.Equal(t, datumo.LabelDef{Name: "person", Attributes: []string{"jumping"}}, labels.Items[1])
	assert.Equal(t, "person", labels.Items[2].Parent)
	assert.Equal(t, map[int]color.RGBA{
		0: {A: 255},
		1: {R: 192, G: 128, B: 128, A: 255},
	}, cats.Masks().Colormap)

	var buf bytes.Buffer
	_, err = LabelMapFromCategories(cats).WriteTo(&buf)
	require.NoError(t, err)
	again, err := ParseLabelMap(&buf)
	require.NoError(t, err)
	assert.True(t, again.Categories().Equal(cats))

	_, err = ParseLabelMap(strings.NewReader("person:1,2\n"))
	require.ErrorIs(t, err, datumo.ErrMalformedInput)
}

func TestImporter(t *testing.T) {
	ctx := context.Background()
	cats := datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories("background", "cat")}
	src := datumo.DatasetFromItems(cats, &datumo.DatasetItem{ID: "a", Subset: "train"})
	store := convert(t, src, nil)

	ok, err := Importer{}.Detect(ctx, store)
	require.NoError(t, err)
	assert.True(t, ok)

	reg := recorder{}
	require.NoError(t, Importer{}.Import(ctx, store, "/voc", nil, reg))
	assert.Len(t, reg, len(Tasks))
	assert.Equal(t, "voc_segm", reg["segmentation"].Format)
	assert.Equal(t, "/voc", reg["detection"].URL)

	err = Importer{}.Import(ctx, datumo.NewMemory(), "/empty", nil, recorder{})
	require.ErrorIs(t, err, datumo.ErrNotFound)
}

type recorder map[string]datumo.Source

func (r recorder) AddSource(name string, src datumo.Source) error {
	r[name] = src
	return nil
}
