package testutil

import (
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
)

// Image returns a w x h image filled with c.
func Image(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Item returns a 64x48 item with a resolved gray image and anns.
func Item(id, subset string, anns ...datumo.Annotation) *datumo.DatasetItem {
	return &datumo.DatasetItem{
		ID:          id,
		Subset:      subset,
		Image:       datumo.Resolved(Image(64, 48, color.Gray{Y: 128})),
		Size:        image.Pt(64, 48),
		Annotations: anns,
	}
}

// Labels returns label categories over names.
func Labels(names ...string) datumo.Categories {
	return datumo.Categories{datumo.KindLabel: datumo.NewLabelCategories(names...)}
}

// Detection returns a two-subset detection dataset over the labels
// "person", "car" and "bicycle".
func Detection() *datumo.Dataset {
	return datumo.DatasetFromItems(Labels("person", "car", "bicycle"),
		Item("0001", "train", datumo.NewBbox(4, 4, 10, 20, 0), datumo.NewBbox(30, 10, 16, 8, 1)),
		Item("0002", "train", datumo.NewBbox(0, 0, 8, 8, 2)),
		Item("0003", "val", datumo.NewLabel(1)),
	)
}

// Put writes data to p or fails the test.
func Put(tb testing.TB, store datumo.Store, p, data string) {
	tb.Helper()
	require.NoError(tb, store.Put(context.Background(), p, strings.NewReader(data)))
}

// Read returns the content at p or fails the test.
func Read(tb testing.TB, store datumo.Store, p string) string {
	tb.Helper()
	rc, err := store.Get(context.Background(), p)
	require.NoError(tb, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(tb, err)
	return string(data)
}

// Items drains ex or fails the test.
func Items(tb testing.TB, ex datumo.Extractor) []*datumo.DatasetItem {
	tb.Helper()
	var out []*datumo.DatasetItem
	for it, err := range ex.Items(context.Background()) {
		require.NoError(tb, err)
		out = append(out, it)
	}
	return out
}
