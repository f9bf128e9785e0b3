package datumo

import (
	"fmt"
	"image/color"
	"maps"
	"slices"
)

// Categories maps an annotation kind to its dataset-wide descriptor.
// A dataset may carry any subset of the kinds.
type Categories map[AnnotationKind]CategoryDescriptor

// CategoryDescriptor is implemented by *LabelCategories, *MaskCategories and
// *PointsCategories.
type CategoryDescriptor interface {
	Equal(other CategoryDescriptor) bool
	categories()
}

// Labels returns the label categories, or nil when absent.
func (c Categories) Labels() *LabelCategories {
	lc, _ := c[KindLabel].(*LabelCategories)
	return lc
}

// Masks returns the mask colormap, or nil when absent.
func (c Categories) Masks() *MaskCategories {
	mc, _ := c[KindMask].(*MaskCategories)
	return mc
}

// Points returns the keypoint templates, or nil when absent.
func (c Categories) Points() *PointsCategories {
	pc, _ := c[KindPoints].(*PointsCategories)
	return pc
}

// Equal reports whether both maps hold the same kinds with equal descriptors.
func (c Categories) Equal(o Categories) bool {
	if len(c) != len(o) {
		return false
	}
	for k, d := range c {
		od, ok := o[k]
		if !ok || !d.Equal(od) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the map.
func (c Categories) Clone() Categories {
	out := make(Categories, len(c))
	maps.Copy(out, c)
	return out
}

// MergeCategories unions the kinds of a and b. A kind present in both must
// have equal descriptors, otherwise ErrCategoryConflict is returned.
func MergeCategories(a, b Categories) (Categories, error) {
	out := a.Clone()
	for k, d := range b {
		cur, ok := out[k]
		if !ok {
			out[k] = d
			continue
		}
		if !cur.Equal(d) {
			return nil, fmt.Errorf("%w: %s", ErrCategoryConflict, k)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Labels
// -----------------------------------------------------------------------------

// LabelDef is one named label. Parent may be empty.
type LabelDef struct {
	Name       string   `json:"name"`
	Parent     string   `json:"parent"`
	Attributes []string `json:"attributes"`
}

// equal compares attributes as a set; their order is not significant.
func (d LabelDef) equal(o LabelDef) bool {
	return d.Name == o.Name && d.Parent == o.Parent &&
		slices.Equal(stringSet(d.Attributes), stringSet(o.Attributes))
}

// LabelCategories is the ordered label list; an annotation's Label is an
// index into Items.
type LabelCategories struct {
	Items []LabelDef
}

// NewLabelCategories builds a label list from plain names.
func NewLabelCategories(names ...string) *LabelCategories {
	lc := &LabelCategories{}
	for _, n := range names {
		lc.Add(n, "")
	}
	return lc
}

// Add appends a label and returns its index.
func (lc *LabelCategories) Add(name, parent string, attrs ...string) int {
	lc.Items = append(lc.Items, LabelDef{Name: name, Parent: parent, Attributes: attrs})
	return len(lc.Items) - 1
}

// Find returns the index of the named label.
func (lc *LabelCategories) Find(name string) (int, bool) {
	for i, d := range lc.Items {
		if d.Name == name {
			return i, true
		}
	}
	return NoLabel, false
}

// Len returns the number of labels.
func (lc *LabelCategories) Len() int { return len(lc.Items) }

// Name returns the label name at idx, or "" when out of range.
func (lc *LabelCategories) Name(idx int) string {
	if idx < 0 || idx >= len(lc.Items) {
		return ""
	}
	return lc.Items[idx].Name
}

func (lc *LabelCategories) categories() {}

func (lc *LabelCategories) Equal(other CategoryDescriptor) bool {
	o, ok := other.(*LabelCategories)
	return ok && slices.EqualFunc(lc.Items, o.Items, LabelDef.equal)
}

// -----------------------------------------------------------------------------
// Masks
// -----------------------------------------------------------------------------

// MaskCategories maps class indices to RGB colors. The mapping must be a
// bijection.
type MaskCategories struct {
	Colormap map[int]color.RGBA
}

// NewMaskCategories wraps a colormap.
func NewMaskCategories(cm map[int]color.RGBA) *MaskCategories {
	return &MaskCategories{Colormap: cm}
}

// Inverse returns the color to index mapping.
func (mc *MaskCategories) Inverse() map[color.RGBA]int {
	inv := make(map[color.RGBA]int, len(mc.Colormap))
	for idx, c := range mc.Colormap {
		inv[c] = idx
	}
	return inv
}

// Validate rejects colormaps that assign one color to several indices.
func (mc *MaskCategories) Validate() error {
	seen := make(map[color.RGBA]int, len(mc.Colormap))
	for _, idx := range slices.Sorted(maps.Keys(mc.Colormap)) {
		c := mc.Colormap[idx]
		if prev, ok := seen[c]; ok {
			return fmt.Errorf("%w: colormap color %v used by %d and %d", ErrMalformedInput, c, prev, idx)
		}
		seen[c] = idx
	}
	return nil
}

func (mc *MaskCategories) categories() {}

func (mc *MaskCategories) Equal(other CategoryDescriptor) bool {
	o, ok := other.(*MaskCategories)
	return ok && maps.Equal(mc.Colormap, o.Colormap)
}

// -----------------------------------------------------------------------------
// Points
// -----------------------------------------------------------------------------

// PointsTemplate names the keypoints of one label and their skeleton edges.
// Edge endpoints are 1-based keypoint positions.
type PointsTemplate struct {
	Labels   []string `json:"labels"`
	Adjacent [][2]int `json:"joints"`
}

func (t PointsTemplate) equal(o PointsTemplate) bool {
	return slices.Equal(normStrings(t.Labels), normStrings(o.Labels)) &&
		slices.Equal(t.Adjacent, o.Adjacent)
}

// PointsCategories maps a label index to its keypoint template.
type PointsCategories struct {
	Items map[int]PointsTemplate
}

// Add sets the template for a label index.
func (pc *PointsCategories) Add(label int, names []string, adjacent [][2]int) {
	if pc.Items == nil {
		pc.Items = make(map[int]PointsTemplate)
	}
	pc.Items[label] = PointsTemplate{Labels: names, Adjacent: adjacent}
}

func (pc *PointsCategories) categories() {}

func (pc *PointsCategories) Equal(other CategoryDescriptor) bool {
	o, ok := other.(*PointsCategories)
	return ok && maps.EqualFunc(pc.Items, o.Items, PointsTemplate.equal)
}

// stringSet returns a sorted copy of s without duplicates.
func stringSet(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

func normStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
