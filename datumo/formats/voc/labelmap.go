package voc

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// LabelMapEntry is one line of labelmap.txt.
type LabelMapEntry struct {
	Name    string
	Color   *color.RGBA
	Parts   []string
	Actions []string
}

// LabelMap is the ordered content of labelmap.txt:
//
//	# label:color_rgb:parts:actions
//	person:192,128,128:head,hand,foot:jumping,phoning
type LabelMap []LabelMapEntry

// DefaultLabelMap returns the standard VOC classes with their colors; person
// carries the body parts and actions.
func DefaultLabelMap() LabelMap {
	cm := datumo.GenerateColormap(len(DefaultLabels))
	lm := make(LabelMap, len(DefaultLabels))
	for i, name := range DefaultLabels {
		c := cm[i]
		lm[i] = LabelMapEntry{Name: name, Color: &c}
		if name == "person" {
			lm[i].Parts = slices.Clone(DefaultBodyParts)
			lm[i].Actions = slices.Clone(DefaultActions)
		}
	}
	return lm
}

// ParseLabelMap reads labelmap.txt. Blank lines and lines starting with '#'
// are ignored.
func ParseLabelMap(r io.Reader) (LabelMap, error) {
	var lm LabelMap
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, ":")
		if len(fields) != 4 || fields[0] == "" {
			return nil, datumo.Malformed(LabelMapFile+":"+strconv.Itoa(line),
				fmt.Errorf("want name:color:parts:actions"))
		}
		e := LabelMapEntry{Name: fields[0], Parts: splitList(fields[2]), Actions: splitList(fields[3])}
		if fields[1] != "" {
			c, err := parseColor(fields[1])
			if err != nil {
				return nil, datumo.Malformed(LabelMapFile+":"+strconv.Itoa(line), err)
			}
			e.Color = &c
		}
		lm = append(lm, e)
	}
	if err := sc.Err(); err != nil {
		return nil, datumo.Malformed(LabelMapFile, err)
	}
	return lm, nil
}

// WriteTo writes lm in labelmap.txt form.
func (lm LabelMap) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	sb.WriteString("# label:color_rgb:parts:actions\n")
	for _, e := range lm {
		var c string
		if e.Color != nil {
			c = fmt.Sprintf("%d,%d,%d", e.Color.R, e.Color.G, e.Color.B)
		}
		fmt.Fprintf(&sb, "%s:%s:%s:%s\n", e.Name, c, strings.Join(e.Parts, ","), strings.Join(e.Actions, ","))
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Categories builds label and mask categories. Entries come first in order,
// their actions becoming label attributes; part labels follow with the
// first owning entry as parent. Mask categories exist only when some entry
// has a color.
func (lm LabelMap) Categories() datumo.Categories {
	labels := datumo.NewLabelCategories()
	for _, e := range lm {
		labels.Add(e.Name, "", e.Actions...)
	}
	for _, e := range lm {
		for _, part := range e.Parts {
			if _, ok := labels.Find(part); !ok {
				labels.Add(part, e.Name)
			}
		}
	}
	cats := datumo.Categories{datumo.KindLabel: labels}

	cm := make(map[int]color.RGBA)
	for i, e := range lm {
		if e.Color != nil {
			cm[i] = *e.Color
		}
	}
	if len(cm) > 0 {
		cats[datumo.KindMask] = datumo.NewMaskCategories(cm)
	}
	return cats
}

// LabelMapFromCategories is the inverse of Categories. Labels whose parent
// is another label become parts of that label.
func LabelMapFromCategories(cats datumo.Categories) LabelMap {
	labels := cats.Labels()
	if labels == nil {
		return nil
	}
	var colors map[int]color.RGBA
	if mc := cats.Masks(); mc != nil {
		colors = mc.Colormap
	}
	isPart := func(d datumo.LabelDef) bool {
		_, ok := labels.Find(d.Parent)
		return d.Parent != "" && ok
	}

	var lm LabelMap
	for i, d := range labels.Items {
		if isPart(d) {
			continue
		}
		e := LabelMapEntry{Name: d.Name, Actions: slices.Clone(d.Attributes)}
		if c, ok := colors[i]; ok {
			e.Color = &c
		}
		for _, p := range labels.Items {
			if p.Parent == d.Name && isPart(p) {
				e.Parts = append(e.Parts, p.Name)
			}
		}
		lm = append(lm, e)
	}
	return lm
}

func parseColor(s string) (color.RGBA, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("color %q: want r,g,b", s)
	}
	var rgb [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
