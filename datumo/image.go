package datumo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageExtensions lists the file extensions recognized as images, in lookup
// order.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// IsImagePath reports whether p has a recognized image extension.
func IsImagePath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// FindImage looks for "<stem><ext>" in the store for every recognized
// extension and returns the first present path.
func FindImage(ctx context.Context, store Store, stem string) (string, bool, error) {
	for _, ext := range ImageExtensions {
		p := stem + ext
		ok, err := store.Exists(ctx, p)
		if err != nil {
			return "", false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return "", false, nil
}

// LoadImage returns a deferred image decoded from p on first use.
func LoadImage(ctx context.Context, store Store, p string) *Lazy[image.Image] {
	ctx = context.WithoutCancel(ctx)
	return NewLazyAt(store, p, func() (image.Image, error) {
		rc, err := store.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		defer closer(rc)()
		img, _, err := image.Decode(rc)
		return img, err
	})
}

// ImageSize reads only the header of the image at p.
func ImageSize(ctx context.Context, store Store, p string) (image.Point, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return image.Point{}, err
	}
	defer closer(rc)()
	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, p, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

// WriteImage resolves img and stores it as PNG at p.
func WriteImage(ctx context.Context, store Store, p string, img *Lazy[image.Image]) error {
	decoded, err := img.Resolve()
	if err != nil {
		return err
	}
	return PutPNG(ctx, store, p, decoded)
}

// PutPNG encodes img as PNG and stores it at p.
func PutPNG(ctx context.Context, store Store, p string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return store.Put(ctx, p, &buf)
}

// -----------------------------------------------------------------------------
// Rasters
// -----------------------------------------------------------------------------

// Raster is a single-channel mask. Zero is background; other values are
// class or instance indices.
type Raster struct {
	image.Gray
}

// NewRaster allocates an empty w x h raster.
func NewRaster(w, h int) *Raster {
	return &Raster{Gray: *image.NewGray(image.Rect(0, 0, w, h))}
}

// RasterFrom copies any image into a raster using its gray value.
func RasterFrom(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	draw.Draw(&r.Gray, r.Bounds(), img, b.Min, draw.Src)
	return r
}

// Index returns the value at (x, y).
func (r *Raster) Index(x, y int) int { return int(r.GrayAt(x, y).Y) }

// SetIndex sets the value at (x, y).
func (r *Raster) SetIndex(x, y, v int) { r.SetGray(x, y, color.Gray{Y: uint8(v)}) }

// Equal compares size and pixel values.
func (r *Raster) Equal(o *Raster) bool {
	if r.Bounds().Size() != o.Bounds().Size() {
		return false
	}
	b, ob := r.Bounds(), o.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if r.GrayAt(b.Min.X+x, b.Min.Y+y) != o.GrayAt(ob.Min.X+x, ob.Min.Y+y) {
				return false
			}
		}
	}
	return true
}

// Split returns one binary raster per distinct non-zero value, keyed by value.
func (r *Raster) Split() map[int]*Raster {
	b := r.Bounds()
	out := make(map[int]*Raster)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := r.Index(x, y)
			if v == 0 {
				continue
			}
			m, ok := out[v]
			if !ok {
				m = NewRaster(b.Dx(), b.Dy())
				out[v] = m
			}
			m.SetIndex(x-b.Min.X, y-b.Min.Y, 1)
		}
	}
	return out
}

// LoadRaster returns a deferred gray raster decoded from p.
func LoadRaster(ctx context.Context, store Store, p string) *Lazy[*Raster] {
	ctx = context.WithoutCancel(ctx)
	return NewLazyAt(store, p, func() (*Raster, error) {
		img, err := decodeAt(ctx, store, p)
		if err != nil {
			return nil, err
		}
		return RasterFrom(img), nil
	})
}

// LoadIndexedRaster returns a deferred raster decoded from a color mask at p
// using the inverse of colormap. Unknown colors fail the decode.
func LoadIndexedRaster(ctx context.Context, store Store, p string, colormap map[int]color.RGBA) *Lazy[*Raster] {
	ctx = context.WithoutCancel(ctx)
	inv := (&MaskCategories{Colormap: colormap}).Inverse()
	return NewLazyAt(store, p, func() (*Raster, error) {
		img, err := decodeAt(ctx, store, p)
		if err != nil {
			return nil, err
		}
		return UnpaintMask(img, inv)
	})
}

// UnpaintMask converts a color mask to class indices.
func UnpaintMask(img image.Image, inverse map[color.RGBA]int) (*Raster, error) {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			c.A = 255
			idx, ok := inverse[c]
			if !ok {
				return nil, fmt.Errorf("%w: unknown mask color %v at (%d,%d)", ErrMalformedInput, c, x, y)
			}
			r.SetIndex(x-b.Min.X, y-b.Min.Y, idx)
		}
	}
	return r, nil
}

// PaintMask renders class indices with colormap. Indices missing from the
// colormap are painted black.
func PaintMask(r *Raster, colormap map[int]color.RGBA) *image.Paletted {
	idx := make(map[int]uint8, len(colormap))
	palette := color.Palette{color.RGBA{A: 255}}
	for i := 0; i < 256 && len(palette) < 256; i++ {
		if c, ok := colormap[i]; ok {
			c.A = 255
			idx[i] = uint8(len(palette))
			palette = append(palette, c)
		}
	}
	b := r.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetColorIndex(x-b.Min.X, y-b.Min.Y, idx[r.Index(x, y)])
		}
	}
	return out
}

// GenerateColormap returns the PASCAL VOC colormap for n classes.
func GenerateColormap(n int) map[int]color.RGBA {
	cm := make(map[int]color.RGBA, n)
	for i := 0; i < n; i++ {
		var rgb [3]uint8
		c := i
		for j := 7; j >= 0; j-- {
			for ch := 0; ch < 3; ch++ {
				rgb[ch] |= uint8((c>>ch)&1) << j
			}
			c >>= 3
		}
		cm[i] = color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
	}
	return cm
}

func decodeAt(ctx context.Context, store Store, p string) (image.Image, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer closer(rc)()
	img, _, err := image.Decode(rc)
	return img, err
}
