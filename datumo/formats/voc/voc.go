// Package voc reads and writes PASCAL VOC datasets.
//
// Each VOC task (classification, detection, segmentation, person layout and
// action classification) has its own extractor and converter. They share
// the directory layout:
//
//	Annotations/<id>.xml
//	ImageSets/{Main,Segmentation,Layout,Action}/<subset>.txt
//	ImageSets/Main/<label>_<subset>.txt
//	JPEGImages/<id>.jpg
//	SegmentationClass/<id>.png
//	SegmentationObject/<id>.png
//	labelmap.txt
package voc

import (
	"image/color"
	"path"

	"github.com/justapithecus/datumo/datumo"
)

// Task is one VOC annotation task.
type Task int

// VOC tasks.
const (
	TaskClassification Task = iota
	TaskDetection
	TaskSegmentation
	TaskLayout
	TaskAction
)

// Tasks lists every task in importer order.
var Tasks = []Task{TaskClassification, TaskDetection, TaskSegmentation, TaskLayout, TaskAction}

var taskInfo = [...]struct {
	name   string // source name
	plugin string // registry name
	dir    string // ImageSets subdirectory
}{
	TaskClassification: {"classification", "voc_cls", "Main"},
	TaskDetection:      {"detection", "voc_det", "Main"},
	TaskSegmentation:   {"segmentation", "voc_segm", "Segmentation"},
	TaskLayout:         {"person_layout", "voc_layout", "Layout"},
	TaskAction:         {"action_classification", "voc_action", "Action"},
}

func (t Task) String() string { return taskInfo[t].name }

// Plugin returns the registry name of the task's extractor and converter.
func (t Task) Plugin() string { return taskInfo[t].plugin }

func (t Task) subsetsDir() string { return path.Join(SubsetsDir, taskInfo[t].dir) }

// Name is the registry name of the multi-task importer and converter.
const Name = "voc"

// Layout paths.
const (
	AnnotationsDir  = "Annotations"
	SubsetsDir      = "ImageSets"
	ImagesDir       = "JPEGImages"
	SegmentationDir = "SegmentationClass"
	InstancesDir    = "SegmentationObject"
	LabelMapFile    = "labelmap.txt"
	ImageExt        = ".jpg"
	SegmExt         = ".png"
)

// Mask attributes distinguishing class and instance masks.
const (
	AttrClass     = "class"
	AttrInstances = "instances"
)

// Module returns every VOC plugin.
func Module() datumo.Module {
	items := []datumo.Plugin{
		{Kind: datumo.PluginImporter, Name: Name, Factory: datumo.ImporterFactory(NewImporter)},
		{Kind: datumo.PluginConverter, Name: Name, Factory: datumo.ConverterFactory(converterFactory(Tasks...))},
	}
	for _, t := range Tasks {
		items = append(items,
			datumo.Plugin{Kind: datumo.PluginExtractor, Name: t.Plugin(), Factory: datumo.ExtractorFactory(extractorFactory(t))},
			datumo.Plugin{Kind: datumo.PluginConverter, Name: t.Plugin(), Factory: datumo.ConverterFactory(converterFactory(t))},
		)
	}
	return datumo.Module{Name: Name, Items: items}
}

// -----------------------------------------------------------------------------
// Default label set
// -----------------------------------------------------------------------------

// DefaultLabels are the 21 VOC classes, background first.
var DefaultLabels = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus",
	"car", "cat", "chair", "cow", "diningtable", "dog", "horse", "motorbike",
	"person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

// DefaultBodyParts are the person layout part labels.
var DefaultBodyParts = []string{"head", "hand", "foot"}

// DefaultActions are the person action attributes.
var DefaultActions = []string{
	"other", "jumping", "phoning", "playinginstrument", "reading",
	"ridingbike", "ridinghorse", "running", "takingphoto", "usingcomputer",
	"walking",
}

// IgnoredColor marks object boundaries in VOC class masks. It decodes as
// background.
var IgnoredColor = color.RGBA{R: 224, G: 224, B: 192, A: 255}

// instanceColormap paints SegmentationObject masks.
var instanceColormap = datumo.GenerateColormap(256)
