package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce sync.Once
	font     *truetype.Font
)

// Font returns the font we use for drawing labels.
func Font() *truetype.Font {
	fontOnce.Do(func() {
		var err error
		font, err = truetype.Parse(goregular.TTF)
		if err != nil {
			panic(err)
		}
	})
	return font
}

// ClassColor returns a stable, well separated color for a class id.
func ClassColor(classID int) color.Color {
	// golden angle steps keep neighbouring ids apart on the hue wheel
	hue := float64(((classID*137)%360 + 360) % 360)
	return colorful.Hsv(hue, 0.85, 0.95).Clamped()
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, x, y float64, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawString(text, x, y)
}

// DrawRectangleEmpty draws the outline of r into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// Annotate renders objects over base: each mask is blended with its class color, each box is
// outlined and labeled with the class name and score. labels may be nil, in which case the
// numeric class id is printed.
func Annotate(base image.Image, objects []DetectedObject, labels func(classID int) string) image.Image {
	bounds := base.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), base, bounds.Min, draw.Src)
	for _, o := range objects {
		if o.Mask != nil {
			tintMask(canvas, o.Mask, ClassColor(o.ClassID))
		}
	}

	dc := gg.NewContextForRGBA(canvas)
	for _, o := range objects {
		c := ClassColor(o.ClassID)
		r := o.Box.Rect()
		DrawRectangleEmpty(dc, r, c, 2)
		name := fmt.Sprintf("%d", o.ClassID)
		if labels != nil {
			name = labels(o.ClassID)
		}
		DrawString(dc, fmt.Sprintf("%s %.0f%%", name, o.Score*100), float64(r.Min.X)+2, float64(r.Min.Y)+14, c, 12)
	}
	return dc.Image()
}

// tintMask averages every foreground pixel of m with c.
func tintMask(canvas *image.RGBA, m *Mask, c color.Color) {
	tint := color.RGBAModel.Convert(c).(color.RGBA)
	size := canvas.Bounds().Size()
	for y := 0; y < m.Height && y < size.Y; y++ {
		for x := 0; x < m.Width && x < size.X; x++ {
			if !m.At(x, y) {
				continue
			}
			i := canvas.PixOffset(x, y)
			px := canvas.Pix[i : i+4 : i+4]
			px[0] = uint8((uint16(px[0]) + uint16(tint.R)) / 2)
			px[1] = uint8((uint16(px[1]) + uint16(tint.G)) / 2)
			px[2] = uint8((uint16(px[2]) + uint16(tint.B)) / 2)
		}
	}
}
