package voc

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"iter"
	"path"
	"slices"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Extractor reads one VOC task.
type Extractor struct {
	store      datumo.Store
	task       Task
	categories datumo.Categories
	subsets    []string
	ids        map[string][]string
	length     int

	// present maps item id to the labels marked present in the
	// classification lists.
	present map[string][]int
}

func extractorFactory(t Task) datumo.ExtractorFactory {
	return func(ctx context.Context, store datumo.Store, _ datumo.Options) (datumo.Extractor, error) {
		return NewExtractor(ctx, store, t)
	}
}

// NewExtractor reads the subset lists of task. labelmap.txt defines the
// categories when present; otherwise the default VOC labels apply.
func NewExtractor(ctx context.Context, store datumo.Store, task Task) (*Extractor, error) {
	e := &Extractor{store: store, task: task, ids: make(map[string][]string)}

	lm := DefaultLabelMap()
	if ok, err := store.Exists(ctx, LabelMapFile); err != nil {
		return nil, err
	} else if ok {
		if lm, err = readLabelMap(ctx, store); err != nil {
			return nil, err
		}
	}
	e.categories = lm.Categories()

	lists, err := listFiles(ctx, store, task.subsetsDir(), ".txt")
	if err != nil {
		return nil, err
	}
	for _, name := range lists {
		if _, _, ok := e.presenceList(name); ok {
			continue
		}
		ids, err := readColumn(ctx, store, path.Join(task.subsetsDir(), name+".txt"))
		if err != nil {
			return nil, err
		}
		e.subsets = append(e.subsets, name)
		e.ids[name] = ids
		e.length += len(ids)
	}
	if len(e.subsets) == 0 {
		return nil, fmt.Errorf("%s/*.txt: %w", task.subsetsDir(), datumo.ErrNotFound)
	}

	if task == TaskClassification {
		if err := e.loadPresence(ctx, lists); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Extractor) Subsets() []string { return slices.Clone(e.subsets) }

func (e *Extractor) Categories() datumo.Categories { return e.categories }

func (e *Extractor) Len() int { return e.length }

// Items implements datumo.Extractor. Annotation XML is read per item.
func (e *Extractor) Items(ctx context.Context) iter.Seq2[*datumo.DatasetItem, error] {
	return func(yield func(*datumo.DatasetItem, error) bool) {
		for _, subset := range e.subsets {
			for _, id := range e.ids[subset] {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				it, err := e.item(ctx, subset, id)
				if !yield(it, err) || err != nil {
					return
				}
			}
		}
	}
}

func (e *Extractor) item(ctx context.Context, subset, id string) (*datumo.DatasetItem, error) {
	it := &datumo.DatasetItem{ID: id, Subset: subset}
	if p, ok, err := datumo.FindImage(ctx, e.store, path.Join(ImagesDir, id)); err != nil {
		return nil, err
	} else if ok {
		it.Image = datumo.LoadImage(ctx, e.store, p)
	}

	switch e.task {
	case TaskClassification:
		for _, label := range e.present[id] {
			it.Annotations = append(it.Annotations, datumo.NewLabel(label))
		}
	case TaskSegmentation:
		masks, err := e.masks(ctx, id)
		if err != nil {
			return nil, err
		}
		it.Annotations = masks
	default:
		doc, err := e.readXML(ctx, id)
		if err != nil || doc == nil {
			return it, err
		}
		if doc.Size != nil {
			it.Size = image.Pt(doc.Size.Width, doc.Size.Height)
		}
		if it.Annotations, err = e.objects(doc); err != nil {
			return nil, datumo.Malformed(path.Join(AnnotationsDir, id+".xml"), err)
		}
	}
	return it, nil
}

// objects converts the XML objects for the detection, layout and action
// tasks. Ids and groups are the 1-based object position.
func (e *Extractor) objects(doc *annotationXML) ([]datumo.Annotation, error) {
	labels := e.categories.Labels()
	find := func(name string) (int, error) {
		if id, ok := labels.Find(name); ok {
			return id, nil
		}
		return 0, fmt.Errorf("unknown label %q", name)
	}

	var anns []datumo.Annotation
	for i, obj := range doc.Objects {
		label, err := find(obj.Name)
		if err != nil {
			return nil, err
		}
		if obj.Bndbox == nil {
			continue
		}
		objID := i + 1

		attrs := datumo.Attributes{
			"difficult": isSet(obj.Difficult),
			"truncated": isSet(obj.Truncated),
			"occluded":  isSet(obj.Occluded),
		}
		if obj.Pose != "" {
			attrs["pose"] = obj.Pose
		}
		if obj.Point != nil {
			attrs["point"] = []float64{obj.Point.X, obj.Point.Y}
		}
		actions := slices.Clone(labels.Items[label].Attributes)
		for _, a := range actions {
			attrs[a] = false
		}
		if obj.Actions != nil {
			for _, f := range obj.Actions.Items {
				attrs[f.XMLName.Local] = isSet(strings.TrimSpace(f.Value))
				if !slices.Contains(actions, f.XMLName.Local) {
					actions = append(actions, f.XMLName.Local)
				}
			}
		}

		var group int
		for _, part := range obj.Parts {
			partLabel, err := find(part.Name)
			if err != nil {
				return nil, err
			}
			group = objID
			if e.task != TaskLayout {
				break
			}
			if part.Bndbox == nil {
				continue
			}
			x, y, w, h := part.Bndbox.rect()
			box := datumo.NewBbox(x, y, w, h, partLabel)
			box.Group = group
			anns = append(anns, box)
		}
		if e.task == TaskLayout && group == 0 {
			continue
		}
		if e.task == TaskAction && len(actions) == 0 {
			continue
		}

		x, y, w, h := obj.Bndbox.rect()
		box := datumo.NewBbox(x, y, w, h, label)
		box.ID, box.Group, box.Attributes = objID, group, attrs
		anns = append(anns, box)
	}
	return anns, nil
}

func (e *Extractor) masks(ctx context.Context, id string) ([]datumo.Annotation, error) {
	kinds := []struct {
		dir  string
		attr string
		inv  map[color.RGBA]int
	}{
		{SegmentationDir, AttrClass, classInverse(e.categories)},
		{InstancesDir, AttrInstances, datumo.NewMaskCategories(instanceColormap).Inverse()},
	}
	var anns []datumo.Annotation
	for _, k := range kinds {
		p := path.Join(k.dir, id+SegmExt)
		ok, err := e.store.Exists(ctx, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		anns = append(anns, &datumo.Mask{
			AnnotationBase: datumo.AnnotationBase{Label: datumo.NoLabel, Attributes: datumo.Attributes{k.attr: true}},
			Image:          loadMask(ctx, e.store, p, k.inv),
		})
	}
	return anns, nil
}

// readXML returns nil when the item has no annotation file.
func (e *Extractor) readXML(ctx context.Context, id string) (*annotationXML, error) {
	p := path.Join(AnnotationsDir, id+".xml")
	if ok, err := e.store.Exists(ctx, p); err != nil || !ok {
		return nil, err
	}
	rc, err := e.store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var doc annotationXML
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, datumo.Malformed(p, err)
	}
	return &doc, nil
}

// loadPresence reads the "<label>_<subset>.txt" lists of the classification
// task. Labels of an item are kept in index order.
func (e *Extractor) loadPresence(ctx context.Context, lists []string) error {
	e.present = make(map[string][]int)
	for _, name := range lists {
		label, subset, ok := e.presenceList(name)
		if !ok || !slices.Contains(e.subsets, subset) {
			continue
		}
		rows, err := readRows(ctx, e.store, path.Join(e.task.subsetsDir(), name+".txt"))
		if err != nil {
			return err
		}
		for _, row := range rows {
			if len(row) == 2 && row[1] == "1" {
				e.present[row[0]] = append(e.present[row[0]], label)
			}
		}
	}
	for id, labels := range e.present {
		slices.Sort(labels)
		e.present[id] = slices.Compact(labels)
	}
	return nil
}

// presenceList reports whether the list name is a "<label>_<subset>"
// classification list. Names whose prefix is not a known label are subsets.
func (e *Extractor) presenceList(name string) (label int, subset string, ok bool) {
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return 0, "", false
	}
	label, ok = e.categories.Labels().Find(name[:i])
	return label, name[i+1:], ok
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func readLabelMap(ctx context.Context, store datumo.Store) (LabelMap, error) {
	rc, err := store.Get(ctx, LabelMapFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return ParseLabelMap(rc)
}

// classInverse maps class mask colors to label indices. The boundary color
// maps to background unless the colormap uses it.
func classInverse(cats datumo.Categories) map[color.RGBA]int {
	cm := datumo.GenerateColormap(256)
	if mc := cats.Masks(); mc != nil {
		cm = mc.Colormap
	}
	inv := datumo.NewMaskCategories(cm).Inverse()
	if _, ok := inv[IgnoredColor]; !ok {
		inv[IgnoredColor] = 0
	}
	return inv
}

func loadMask(ctx context.Context, store datumo.Store, p string, inv map[color.RGBA]int) *datumo.Lazy[*datumo.Raster] {
	ctx = context.WithoutCancel(ctx)
	return datumo.NewLazyAt(store, p, func() (*datumo.Raster, error) {
		rc, err := store.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		img, _, err := image.Decode(rc)
		if err != nil {
			return nil, err
		}
		return datumo.UnpaintMask(img, inv)
	})
}

// listFiles returns the stems of the files directly under dir with ext.
func listFiles(ctx context.Context, store datumo.Store, dir, ext string) ([]string, error) {
	paths, err := store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		rest := strings.TrimPrefix(p, dir+"/")
		if strings.Contains(rest, "/") || path.Ext(rest) != ext {
			continue
		}
		out = append(out, strings.TrimSuffix(rest, ext))
	}
	slices.Sort(out)
	return out, nil
}

func readRows(ctx context.Context, store datumo.Store, p string) ([][]string, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var rows [][]string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		if fields := strings.Fields(sc.Text()); len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, datumo.Malformed(p, err)
	}
	return rows, nil
}

func readColumn(ctx context.Context, store datumo.Store, p string) ([]string, error) {
	rows, err := readRows(ctx, store, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row[0]
	}
	return out, nil
}
