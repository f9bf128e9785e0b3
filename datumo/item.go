package datumo

import (
	"fmt"
	"image"
	"slices"
)

// DatasetItem is one image record with its annotations.
type DatasetItem struct {
	ID     string
	Subset string
	// Path is the provenance chain: source names from the outermost project
	// down to the dataset that owns the item. Empty means the current
	// project's own dataset.
	Path        []string
	Image       *Lazy[image.Image]
	Size        image.Point
	Annotations []Annotation
}

// HasImage reports whether the item has image data. It never decodes.
func (it *DatasetItem) HasImage() bool { return it.Image != nil }

// SubsetName returns the item's subset, or DefaultSubset when unset.
func (it *DatasetItem) SubsetName() string {
	if it.Subset == "" {
		return DefaultSubset
	}
	return it.Subset
}

// Clone returns a copy that can be modified without touching it. The
// annotations themselves are shared.
func (it *DatasetItem) Clone() *DatasetItem {
	c := *it
	c.Path = slices.Clone(it.Path)
	c.Annotations = slices.Clone(it.Annotations)
	return &c
}

// Equal compares identity, provenance and annotations. Images are compared
// by presence only.
func (it *DatasetItem) Equal(o *DatasetItem) bool {
	return it.ID == o.ID && it.SubsetName() == o.SubsetName() &&
		slices.Equal(normStrings(it.Path), normStrings(o.Path)) &&
		it.HasImage() == o.HasImage() &&
		AnnotationsEqual(it.Annotations, o.Annotations)
}

// ValidateItem checks the structural invariants of an item against the
// dataset categories.
func ValidateItem(it *DatasetItem, cats Categories) error {
	if it.ID == "" {
		return fmt.Errorf("%w: item without id", ErrMalformedInput)
	}
	nlabels := 0
	if lc := cats.Labels(); lc != nil {
		nlabels = lc.Len()
	}
	for i, ann := range it.Annotations {
		b := ann.Base()
		if b.HasLabel() && (b.Label < 0 || b.Label >= nlabels) {
			return fmt.Errorf("%w: item %q annotation %d: label %d out of range [0,%d)",
				ErrMalformedInput, it.ID, i, b.Label, nlabels)
		}
		if err := validateGeometry(ann); err != nil {
			return fmt.Errorf("item %q annotation %d: %w", it.ID, i, err)
		}
	}
	return nil
}

func validateGeometry(ann Annotation) error {
	switch a := ann.(type) {
	case *Bbox:
		if a.W < 0 || a.H < 0 {
			return fmt.Errorf("%w: bbox with negative size", ErrMalformedInput)
		}
	case *Polygon:
		if len(a.Points)%2 != 0 || len(a.Points) < 6 {
			return fmt.Errorf("%w: polygon needs at least 3 points", ErrMalformedInput)
		}
	case *PolyLine:
		if len(a.Points)%2 != 0 || len(a.Points) < 4 {
			return fmt.Errorf("%w: polyline needs at least 2 points", ErrMalformedInput)
		}
	case *Points:
		if len(a.Points)%2 != 0 {
			return fmt.Errorf("%w: odd number of point coordinates", ErrMalformedInput)
		}
		if a.Visibility != nil && len(a.Visibility) != len(a.Points)/2 {
			return fmt.Errorf("%w: visibility does not align with points", ErrMalformedInput)
		}
	}
	return nil
}
