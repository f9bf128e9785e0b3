package datumo

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// AnnotationKind enumerates the closed set of annotation variants.
type AnnotationKind int

// Annotation kinds. The order matches the native format's type codes.
const (
	KindLabel AnnotationKind = iota
	KindMask
	KindPoints
	KindPolygon
	KindPolyLine
	KindBbox
	KindCaption
	kindMax
)

var kindNames = [...]string{
	KindLabel:    "label",
	KindMask:     "mask",
	KindPoints:   "points",
	KindPolygon:  "polygon",
	KindPolyLine: "polyline",
	KindBbox:     "bbox",
	KindCaption:  "caption",
}

func (k AnnotationKind) String() string {
	if k < 0 || k >= kindMax {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its AnnotationKind.
func ParseKind(name string) (AnnotationKind, error) {
	for k, n := range kindNames {
		if n == name {
			return AnnotationKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown annotation kind %q", ErrMalformedInput, name)
}

// NoLabel marks an annotation without a label index.
const NoLabel = -1

// Attributes holds primitive-valued annotation attributes.
type Attributes map[string]any

// Equal compares attribute maps structurally, treating numbers of different
// Go types as equal when their values are.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !valueEqual(va, vb) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AnnotationBase carries the fields shared by every variant.
type AnnotationBase struct {
	// ID is the annotation identifier; 0 means unset.
	ID int
	// Label indexes the dataset's LabelCategories; NoLabel when absent.
	Label int
	// Group relates annotations of one object (for example, a person box
	// and its part boxes); 0 means ungrouped.
	Group      int
	Attributes Attributes
}

func (b *AnnotationBase) equal(o *AnnotationBase) bool {
	return b.ID == o.ID && b.Label == o.Label && b.Group == o.Group &&
		b.Attributes.Equal(o.Attributes)
}

// HasLabel reports whether the annotation references a label.
func (b *AnnotationBase) HasLabel() bool { return b.Label != NoLabel }

// Annotation is the sealed interface over the annotation variants.
// Codecs switch exhaustively over the concrete types.
type Annotation interface {
	Kind() AnnotationKind
	Base() *AnnotationBase
	Equal(other Annotation) bool
	annotation()
}

// -----------------------------------------------------------------------------
// Variants
// -----------------------------------------------------------------------------

// Label is a whole-image label without geometry.
type Label struct {
	AnnotationBase
}

// NewLabel creates a label annotation.
func NewLabel(label int) *Label {
	return &Label{AnnotationBase{Label: label}}
}

func (a *Label) Kind() AnnotationKind  { return KindLabel }
func (a *Label) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Label) annotation()           {}

func (a *Label) Equal(other Annotation) bool {
	o, ok := other.(*Label)
	return ok && a.equal(&o.AnnotationBase)
}

// Bbox is an axis-aligned box in absolute pixel units.
type Bbox struct {
	AnnotationBase
	X, Y, W, H float64
}

// NewBbox creates a box from its top-left corner and size.
func NewBbox(x, y, w, h float64, label int) *Bbox {
	return &Bbox{AnnotationBase: AnnotationBase{Label: label}, X: x, Y: y, W: w, H: h}
}

// NewBboxFromCorners creates a box from two opposite corners.
func NewBboxFromCorners(x0, y0, x1, y1 float64, label int) *Bbox {
	return NewBbox(x0, y0, x1-x0, y1-y0, label)
}

func (a *Bbox) Kind() AnnotationKind  { return KindBbox }
func (a *Bbox) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Bbox) annotation()           {}

func (a *Bbox) Equal(other Annotation) bool {
	o, ok := other.(*Bbox)
	return ok && a.equal(&o.AnnotationBase) &&
		a.X == o.X && a.Y == o.Y && a.W == o.W && a.H == o.H
}

// Corners returns (x0, y0, x1, y1).
func (a *Bbox) Corners() (x0, y0, x1, y1 float64) {
	return a.X, a.Y, a.X + a.W, a.Y + a.H
}

// Area returns w*h.
func (a *Bbox) Area() float64 { return a.W * a.H }

// Polygon is a closed shape given as flat (x, y) pairs.
type Polygon struct {
	AnnotationBase
	Points []float64
}

func (a *Polygon) Kind() AnnotationKind  { return KindPolygon }
func (a *Polygon) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Polygon) annotation()           {}

func (a *Polygon) Equal(other Annotation) bool {
	o, ok := other.(*Polygon)
	return ok && a.equal(&o.AnnotationBase) && slices.Equal(a.Points, o.Points)
}

// Bounds returns the enclosing box of the polygon.
func (a *Polygon) Bounds() *Bbox { return boundsOf(a.Points, a.Label) }

// PolyLine is an open line given as flat (x, y) pairs.
type PolyLine struct {
	AnnotationBase
	Points []float64
}

func (a *PolyLine) Kind() AnnotationKind  { return KindPolyLine }
func (a *PolyLine) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *PolyLine) annotation()           {}

func (a *PolyLine) Equal(other Annotation) bool {
	o, ok := other.(*PolyLine)
	return ok && a.equal(&o.AnnotationBase) && slices.Equal(a.Points, o.Points)
}

// Visibility flags one keypoint.
type Visibility int

// Keypoint visibility values.
const (
	VisibilityAbsent Visibility = iota
	VisibilityHidden
	VisibilityVisible
)

// Points is a keypoint set aligned to the label's PointsTemplate.
type Points struct {
	AnnotationBase
	Points []float64
	// Visibility has one entry per (x, y) pair; nil means all visible.
	Visibility []Visibility
}

func (a *Points) Kind() AnnotationKind  { return KindPoints }
func (a *Points) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Points) annotation()           {}

func (a *Points) Equal(other Annotation) bool {
	o, ok := other.(*Points)
	return ok && a.equal(&o.AnnotationBase) && slices.Equal(a.Points, o.Points) &&
		slices.Equal(a.visibility(), o.visibility())
}

func (a *Points) visibility() []Visibility {
	if a.Visibility != nil {
		return a.Visibility
	}
	v := make([]Visibility, len(a.Points)/2)
	for i := range v {
		v[i] = VisibilityVisible
	}
	return v
}

// Mask is a lazily decoded label or boolean raster.
type Mask struct {
	AnnotationBase
	Image *Lazy[*Raster]
}

func (a *Mask) Kind() AnnotationKind  { return KindMask }
func (a *Mask) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Mask) annotation()           {}

// Equal compares masks by source when both are read from the same key of the
// same store, otherwise by the decoded rasters. A decode failure compares
// unequal.
func (a *Mask) Equal(other Annotation) bool {
	o, ok := other.(*Mask)
	if !ok || !a.equal(&o.AnnotationBase) {
		return false
	}
	if a.Image == o.Image {
		return true
	}
	if a.Image == nil || o.Image == nil {
		return false
	}
	if a.Image.SameSource(o.Image) {
		return true
	}
	ra, err := a.Image.Resolve()
	if err != nil {
		return false
	}
	rb, err := o.Image.Resolve()
	if err != nil {
		return false
	}
	return ra.Equal(rb)
}

// Caption is a free-text description.
type Caption struct {
	AnnotationBase
	Caption string
}

func (a *Caption) Kind() AnnotationKind  { return KindCaption }
func (a *Caption) Base() *AnnotationBase { return &a.AnnotationBase }
func (a *Caption) annotation()           {}

func (a *Caption) Equal(other Annotation) bool {
	o, ok := other.(*Caption)
	return ok && a.equal(&o.AnnotationBase) && a.Caption == o.Caption
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// MergeAnnotations returns the union of a and b with structural duplicates
// removed, keeping first-seen order.
func MergeAnnotations(a, b []Annotation) []Annotation {
	merged := make([]Annotation, 0, len(a)+len(b))
	for _, ann := range slices.Concat(a, b) {
		if !slices.ContainsFunc(merged, ann.Equal) {
			merged = append(merged, ann)
		}
	}
	return merged
}

// AnnotationsEqual compares two annotation lists element-wise.
func AnnotationsEqual(a, b []Annotation) bool {
	return slices.EqualFunc(a, b, func(x, y Annotation) bool { return x.Equal(y) })
}

func boundsOf(pts []float64, label int) *Bbox {
	if len(pts) < 2 {
		return NewBbox(0, 0, 0, 0, label)
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(pts); i += 2 {
		x0, x1 = min(x0, pts[i]), max(x1, pts[i])
		y0, y1 = min(y0, pts[i+1]), max(y1, pts[i+1])
	}
	return NewBboxFromCorners(x0, y0, x1, y1, label)
}

func valueEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isList(ra) && isList(rb) {
		if ra.Len() != rb.Len() {
			return false
		}
		for i := 0; i < ra.Len(); i++ {
			if !valueEqual(ra.Index(i).Interface(), rb.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isList(v reflect.Value) bool {
	return v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
