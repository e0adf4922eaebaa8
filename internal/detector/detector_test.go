package detector

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNMS_SuppressesOverlappingLowerConfidenceBox(t *testing.T) {
	dets := []Detection{
		{Box: BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.9},
		{Box: BBox{X: 1, Y: 1, W: 10, H: 10}, Confidence: 0.5},
		{Box: BBox{X: 100, Y: 100, W: 10, H: 10}, Confidence: 0.7},
	}

	kept := nms(dets, 0.3)

	assert.Len(t, kept, 2)
	assert.Equal(t, 0.9, kept[0].Confidence)
	assert.Equal(t, 0.7, kept[1].Confidence)
}

func TestNMS_KeepsNonOverlappingBoxes(t *testing.T) {
	dets := []Detection{
		{Box: BBox{X: 0, Y: 0, W: 5, H: 5}, Confidence: 0.9},
		{Box: BBox{X: 50, Y: 50, W: 5, H: 5}, Confidence: 0.8},
	}
	kept := nms(dets, 0.3)
	assert.Len(t, kept, 2)
}

func TestBBoxIoU_PartialOverlap(t *testing.T) {
	a := BBox{X: 0, Y: 0, W: 10, H: 10}
	b := BBox{X: 5, Y: 0, W: 10, H: 10}
	iou := a.IoU(b)
	assert.InDelta(t, 5.0/15.0, iou, 0.001)
}

func TestDetect_UniformImageProducesNoDetections(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}

	d := New(DefaultConfig())
	dets := d.Detect(img)
	assert.Empty(t, dets, "a flat-color frame has no edges and should not produce detections")
}

func TestDetect_HighContrastBlockProducesDetection(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	for y := 40; y < 90; y++ {
		for x := 40; x < 90; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	d := New(DefaultConfig())
	dets := d.Detect(img)
	assert.NotEmpty(t, dets, "a sharp-edged block should register at least one candidate box")
}
