package evidence

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const headerHeight = 28

// annotate draws detection boxes colored by confidence band, a label above
// each box, and a fixed-height header band with frame metadata.
func annotate(fr FrameRecord, count int) image.Image {
	b := fr.Image.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+headerHeight))
	draw.Draw(out, image.Rect(0, headerHeight, b.Dx(), b.Dy()+headerHeight), fr.Image, b.Min, draw.Src)

	headerRect := image.Rect(0, 0, b.Dx(), headerHeight)
	draw.Draw(out, headerRect, image.NewUniform(color.RGBA{20, 20, 20, 255}), image.Point{}, draw.Src)

	headerText := fmt.Sprintf("frame %d  count=%d  density=%s  t=%s",
		fr.Frame, count, densityClass(count), fr.Timestamp.Truncate(1e6))
	drawText(out, 6, 18, headerText, color.White)

	for _, d := range fr.Detections {
		box := d.Box.Add(image.Pt(0, headerHeight))
		col := confidenceColor(d.Confidence)
		drawRect(out, box, col, 2)

		label := fmt.Sprintf("%d (%.2f)", d.AnimalID, d.Confidence)
		labelW := 7*len(label) + 6
		labelRect := image.Rect(box.Min.X, box.Min.Y-16, box.Min.X+labelW, box.Min.Y)
		if labelRect.Min.Y < headerHeight {
			labelRect = labelRect.Add(image.Pt(0, 16+box.Dy()))
		}
		draw.Draw(out, labelRect, image.NewUniform(col), image.Point{}, draw.Src)
		drawText(out, labelRect.Min.X+3, labelRect.Max.Y-4, label, color.Black)
	}

	return out
}

func drawRect(img *image.RGBA, r image.Rectangle, col color.Color, thickness int) {
	for t := 0; t < thickness; t++ {
		drawHLine(img, r.Min.X, r.Max.X, r.Min.Y+t, col)
		drawHLine(img, r.Min.X, r.Max.X, r.Max.Y-t, col)
		drawVLine(img, r.Min.X+t, r.Min.Y, r.Max.Y, col)
		drawVLine(img, r.Max.X-t, r.Min.Y, r.Max.Y, col)
	}
}

func drawHLine(img *image.RGBA, x0, x1, y int, col color.Color) {
	if y < img.Bounds().Min.Y || y >= img.Bounds().Max.Y {
		return
	}
	for x := x0; x < x1; x++ {
		if x < img.Bounds().Min.X || x >= img.Bounds().Max.X {
			continue
		}
		img.Set(x, y, col)
	}
}

func drawVLine(img *image.RGBA, x, y0, y1 int, col color.Color) {
	if x < img.Bounds().Min.X || x >= img.Bounds().Max.X {
		return
	}
	for y := y0; y < y1; y++ {
		if y < img.Bounds().Min.Y || y >= img.Bounds().Max.Y {
			continue
		}
		img.Set(x, y, col)
	}
}

func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
