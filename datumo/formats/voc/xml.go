package voc

import (
	"encoding/xml"
	"strconv"
)

type annotationXML struct {
	XMLName   xml.Name    `xml:"annotation"`
	Folder    string      `xml:"folder,omitempty"`
	Filename  string      `xml:"filename"`
	Source    *sourceXML  `xml:"source,omitempty"`
	Size      *sizeXML    `xml:"size,omitempty"`
	Segmented string      `xml:"segmented,omitempty"`
	Objects   []objectXML `xml:"object"`
}

type sourceXML struct {
	Database   string `xml:"database"`
	Annotation string `xml:"annotation"`
	Image      string `xml:"image"`
}

type sizeXML struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth,omitempty"`
}

type objectXML struct {
	Name      string      `xml:"name"`
	Pose      string      `xml:"pose,omitempty"`
	Truncated string      `xml:"truncated,omitempty"`
	Difficult string      `xml:"difficult,omitempty"`
	Occluded  string      `xml:"occluded,omitempty"`
	Bndbox    *bndboxXML  `xml:"bndbox"`
	Point     *pointXML   `xml:"point,omitempty"`
	Actions   *actionsXML `xml:"actions,omitempty"`
	Parts     []partXML   `xml:"part"`
}

type bndboxXML struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

type pointXML struct {
	X float64 `xml:"x"`
	Y float64 `xml:"y"`
}

// actionsXML holds one child element per action, named after it, with text
// "1" or "0".
type actionsXML struct {
	Items []flagXML `xml:",any"`
}

type flagXML struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type partXML struct {
	Name   string     `xml:"name"`
	Bndbox *bndboxXML `xml:"bndbox"`
}

func (b *bndboxXML) rect() (x, y, w, h float64) {
	return b.XMin, b.YMin, b.XMax - b.XMin, b.YMax - b.YMin
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func isSet(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v != 0
}
