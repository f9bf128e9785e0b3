package voc

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path"
	"slices"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Converter writes a dataset for one or more VOC tasks.
type Converter struct {
	tasks      []Task
	saveImages bool
}

func converterFactory(tasks ...Task) datumo.ConverterFactory {
	return func(opts datumo.Options) (datumo.Converter, error) {
		return NewConverter(opts, tasks...)
	}
}

// NewConverter recognizes "save_images". Images are re-encoded as JPEG.
func NewConverter(opts datumo.Options, tasks ...Task) (*Converter, error) {
	save, err := opts.SaveImages()
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		tasks = Tasks
	}
	return &Converter{tasks: tasks, saveImages: save}, nil
}

// Name implements datumo.Converter.
func (c *Converter) Name() string {
	if len(c.tasks) == 1 {
		return c.tasks[0].Plugin()
	}
	return Name
}

func (c *Converter) has(t Task) bool { return slices.Contains(c.tasks, t) }

// subsetState collects what is written once per subset after the items.
type subsetState struct {
	ids []string
	// present maps a label index to the items carrying it.
	present map[int]map[string]bool
}

// Convert implements datumo.Converter.
func (c *Converter) Convert(ctx context.Context, src datumo.Extractor, dst datumo.Store) (err error) {
	log := datumo.LoggerFrom(ctx)
	var items, skipped int
	defer func() { log.LogConvert(ctx, c.Name(), items, skipped, err) }()

	cats := src.Categories()
	labels := cats.Labels()
	if labels == nil {
		labels = datumo.NewLabelCategories()
	}
	classColors := datumo.GenerateColormap(max(labels.Len(), 1))
	if mc := cats.Masks(); mc != nil {
		classColors = mc.Colormap
	} else {
		cats = cats.Clone()
		cats[datumo.KindMask] = datumo.NewMaskCategories(classColors)
	}

	var buf bytes.Buffer
	if _, err := LabelMapFromCategories(cats).WriteTo(&buf); err != nil {
		return err
	}
	if err := dst.Put(ctx, LabelMapFile, &buf); err != nil {
		return err
	}

	subsets := make(map[string]*subsetState)
	var order []string
	for it, ierr := range src.Items(ctx) {
		if ierr != nil {
			return ierr
		}
		name := it.SubsetName()
		st, ok := subsets[name]
		if !ok {
			st = &subsetState{present: make(map[int]map[string]bool)}
			subsets[name] = st
			order = append(order, name)
		}
		st.ids = append(st.ids, it.ID)

		n, err := c.writeItem(ctx, dst, it, labels, classColors, st)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		skipped += n
		items++
	}

	for _, name := range order {
		if err := c.writeLists(ctx, dst, name, subsets[name], labels); err != nil {
			return err
		}
	}
	return nil
}

// writeItem writes the per-item files and returns the number of skipped
// annotations.
func (c *Converter) writeItem(ctx context.Context, dst datumo.Store, it *datumo.DatasetItem, labels *datumo.LabelCategories,
	classColors map[int]color.RGBA, st *subsetState) (int, error) {
	log := datumo.LoggerFrom(ctx)
	var (
		boxes   []*datumo.Bbox
		masks   []*datumo.Mask
		skipped int
	)
	for _, ann := range it.Annotations {
		switch a := ann.(type) {
		case *datumo.Label:
			if c.has(TaskClassification) && a.HasLabel() {
				if st.present[a.Label] == nil {
					st.present[a.Label] = make(map[string]bool)
				}
				st.present[a.Label][it.ID] = true
				continue
			}
		case *datumo.Bbox:
			if a.HasLabel() && (c.has(TaskDetection) || c.has(TaskLayout) || c.has(TaskAction)) {
				boxes = append(boxes, a)
				continue
			}
		case *datumo.Mask:
			if c.has(TaskSegmentation) && a.Image != nil {
				masks = append(masks, a)
				continue
			}
		}
		log.LogSkip(ctx, c.Name(), it.ID, ann.Kind())
		skipped++
	}

	if len(boxes) > 0 {
		doc, n := c.document(it, boxes, labels, len(masks) > 0)
		skipped += n
		data, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return 0, err
		}
		if err := dst.Put(ctx, path.Join(AnnotationsDir, it.ID+".xml"), bytes.NewReader(data)); err != nil {
			return 0, err
		}
	}
	if len(masks) > 0 {
		if err := writeMasks(ctx, dst, it.ID, masks, classColors); err != nil {
			return 0, err
		}
	}
	if c.saveImages && it.HasImage() {
		img, err := it.Image.Resolve()
		if err != nil {
			return 0, err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
			return 0, err
		}
		if err := dst.Put(ctx, path.Join(ImagesDir, it.ID+ImageExt), &buf); err != nil {
			return 0, err
		}
	}
	return skipped, nil
}

// document builds the annotation XML. Boxes with a part label attach to the
// object sharing their group; orphan parts are skipped.
func (c *Converter) document(it *datumo.DatasetItem, boxes []*datumo.Bbox, labels *datumo.LabelCategories, segmented bool) (*annotationXML, int) {
	doc := &annotationXML{
		Folder:    "VOC",
		Filename:  it.ID + ImageExt,
		Source:    &sourceXML{Database: "datumo", Annotation: "datumo", Image: "datumo"},
		Segmented: flag(segmented),
	}
	if it.Size != (image.Point{}) {
		doc.Size = &sizeXML{Width: it.Size.X, Height: it.Size.Y, Depth: 3}
	}

	isPart := func(b *datumo.Bbox) bool {
		parent := labels.Items[b.Label].Parent
		_, ok := labels.Find(parent)
		return parent != "" && ok
	}

	var skipped int
	for _, b := range boxes {
		if b.Label >= labels.Len() {
			skipped++
			continue
		}
		if isPart(b) {
			if b.Group == 0 || !slices.ContainsFunc(boxes, func(o *datumo.Bbox) bool {
				return o.Group == b.Group && o.Label < labels.Len() && !isPart(o)
			}) {
				skipped++
			}
			continue
		}

		obj := objectXML{
			Name:      labels.Name(b.Label),
			Truncated: flag(boolAttr(b.Attributes, "truncated")),
			Difficult: flag(boolAttr(b.Attributes, "difficult")),
			Occluded:  flag(boolAttr(b.Attributes, "occluded")),
			Bndbox:    bndbox(b),
		}
		if pose, ok := b.Attributes["pose"].(string); ok {
			obj.Pose = pose
		}
		if pt, ok := pointAttr(b.Attributes["point"]); ok {
			obj.Point = &pointXML{X: pt[0], Y: pt[1]}
		}
		if actions := labels.Items[b.Label].Attributes; len(actions) > 0 && (c.has(TaskAction) || c.has(TaskLayout)) {
			obj.Actions = &actionsXML{}
			for _, a := range actions {
				obj.Actions.Items = append(obj.Actions.Items, flagXML{
					XMLName: xml.Name{Local: a},
					Value:   flag(boolAttr(b.Attributes, a)),
				})
			}
		}
		if b.Group != 0 {
			for _, p := range boxes {
				if p.Group == b.Group && p.Label < labels.Len() && isPart(p) {
					obj.Parts = append(obj.Parts, partXML{Name: labels.Name(p.Label), Bndbox: bndbox(p)})
				}
			}
		}
		doc.Objects = append(doc.Objects, obj)
	}
	return doc, skipped
}

// writeLists writes the subset lists of every task and the per-label
// classification lists.
func (c *Converter) writeLists(ctx context.Context, dst datumo.Store, subset string, st *subsetState, labels *datumo.LabelCategories) error {
	list := strings.Join(st.ids, "\n") + "\n"
	written := make(map[string]bool)
	for _, t := range c.tasks {
		p := path.Join(t.subsetsDir(), subset+".txt")
		if written[p] {
			continue
		}
		written[p] = true
		if err := dst.Put(ctx, p, strings.NewReader(list)); err != nil {
			return err
		}
	}

	if !c.has(TaskClassification) {
		return nil
	}
	for label, d := range labels.Items {
		var sb strings.Builder
		for _, id := range st.ids {
			v := -1
			if st.present[label][id] {
				v = 1
			}
			fmt.Fprintf(&sb, "%s % d\n", id, v)
		}
		p := path.Join(TaskClassification.subsetsDir(), d.Name+"_"+subset+".txt")
		if err := dst.Put(ctx, p, strings.NewReader(sb.String())); err != nil {
			return err
		}
	}
	return nil
}

// writeMasks merges the item masks into one class mask and, when instance
// data exists, one instance mask. Labeled masks paint their label into the
// class mask and a running instance index into the instance mask.
func writeMasks(ctx context.Context, dst datumo.Store, id string, masks []*datumo.Mask, classColors map[int]color.RGBA) error {
	var class, inst *datumo.Raster
	var instances int
	for _, m := range masks {
		r, err := m.Image.Resolve()
		if err != nil {
			return err
		}
		if class == nil {
			b := r.Bounds()
			class, inst = datumo.NewRaster(b.Dx(), b.Dy()), datumo.NewRaster(b.Dx(), b.Dy())
		}
		if r.Bounds().Size() != class.Bounds().Size() {
			return fmt.Errorf("%w: mask size %v, want %v", datumo.ErrMalformedInput, r.Bounds().Size(), class.Bounds().Size())
		}

		isInst := boolAttr(m.Attributes, AttrInstances)
		if m.HasLabel() {
			instances++
		}
		b := r.Bounds()
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := r.Index(b.Min.X+x, b.Min.Y+y)
				if v == 0 {
					continue
				}
				switch {
				case isInst:
					inst.SetIndex(x, y, v)
				case m.HasLabel():
					class.SetIndex(x, y, m.Label)
					inst.SetIndex(x, y, instances)
				default:
					class.SetIndex(x, y, v)
				}
			}
		}
	}

	hasInst := instances > 0 || slices.ContainsFunc(masks, func(m *datumo.Mask) bool {
		return boolAttr(m.Attributes, AttrInstances)
	})
	hasClass := slices.ContainsFunc(masks, func(m *datumo.Mask) bool {
		return !boolAttr(m.Attributes, AttrInstances)
	})
	if hasClass {
		if err := datumo.PutPNG(ctx, dst, path.Join(SegmentationDir, id+SegmExt), datumo.PaintMask(class, classColors)); err != nil {
			return err
		}
	}
	if hasInst {
		if err := datumo.PutPNG(ctx, dst, path.Join(InstancesDir, id+SegmExt), datumo.PaintMask(inst, instanceColormap)); err != nil {
			return err
		}
	}
	return nil
}

func bndbox(b *datumo.Bbox) *bndboxXML {
	x0, y0, x1, y1 := b.Corners()
	return &bndboxXML{XMin: x0, YMin: y0, XMax: x1, YMax: y1}
}

func boolAttr(attrs datumo.Attributes, key string) bool {
	v, _ := attrs[key].(bool)
	return v
}

func pointAttr(v any) ([2]float64, bool) {
	var out [2]float64
	switch pt := v.(type) {
	case []float64:
		if len(pt) != 2 {
			return out, false
		}
		copy(out[:], pt)
		return out, true
	case []any:
		if len(pt) != 2 {
			return out, false
		}
		for i, e := range pt {
			f, ok := e.(float64)
			if !ok {
				return out, false
			}
			out[i] = f
		}
		return out, true
	}
	return out, false
}
