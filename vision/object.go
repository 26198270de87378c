// Package vision defines the boundary to the instance segmentation engine: the objects it
// reports and the Segmenter capability the pipeline calls.
package vision

import (
	"context"
	"fmt"
	"image"
	"math"

	"go.viam.com/segfront/rimage"
)

// Box is an axis aligned box in pixel coordinates with (X1, Y1) the top left and (X2, Y2) the
// bottom right corner.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Rect rounds the box outward to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)),
	)
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Mask is a boolean image the size of the frame it was computed for.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask returns an empty mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// NewBoxMask returns a mask with every pixel of r set.
func NewBoxMask(width, height int, r image.Rectangle) *Mask {
	m := NewMask(width, height)
	r = r.Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

// At reports whether (x, y) is foreground. Out of range coordinates are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set marks (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.Bits[y*m.Width+x] = v
}

// Count is the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// DetectedObject is one instance found by the segmenter.
type DetectedObject struct {
	Box     Box
	Mask    *Mask
	ClassID int
	Score   float64
}

// Segmentation is everything a Segmenter reports for one frame. MasksAvailable distinguishes
// "the engine produced no masks" from "the engine found zero objects". Visualization is the
// engine's annotated rendering of the frame and may be nil.
type Segmentation struct {
	Objects        []DetectedObject
	MasksAvailable bool
	Visualization  image.Image
}

// A Segmenter runs instance segmentation on a rectified frame. Calls are not interrupted once
// started; implementations only need to honor ctx before doing work.
type Segmenter interface {
	Segment(ctx context.Context, frame *rimage.Frame) (*Segmentation, error)
}

// SegmenterFunc adapts a function to the Segmenter interface.
type SegmenterFunc func(ctx context.Context, frame *rimage.Frame) (*Segmentation, error)

// Segment calls f.
func (f SegmenterFunc) Segment(ctx context.Context, frame *rimage.Frame) (*Segmentation, error) {
	return f(ctx, frame)
}
