package vision

import (
	"context"
	"image"
	"testing"

	"go.viam.com/test"

	"go.viam.com/segfront/rimage"
)

func TestMask(t *testing.T) {
	m := NewBoxMask(10, 8, image.Rect(2, 3, 5, 9))
	test.That(t, m.Count(), test.ShouldEqual, 3*5)
	test.That(t, m.At(2, 3), test.ShouldBeTrue)
	test.That(t, m.At(5, 3), test.ShouldBeFalse)
	test.That(t, m.At(-1, 3), test.ShouldBeFalse)
	test.That(t, m.At(4, 8), test.ShouldBeFalse)

	m.Set(0, 0, true)
	test.That(t, m.Count(), test.ShouldEqual, 16)
}

func TestBoxRect(t *testing.T) {
	b := Box{X1: 10.4, Y1: 20, X2: 50.2, Y2: 80}
	test.That(t, b.Rect(), test.ShouldResemble, image.Rect(10, 20, 51, 80))
	test.That(t, b.String(), test.ShouldEqual, "(10.4,20.0)-(50.2,80.0)")
}

func TestSegmenterFunc(t *testing.T) {
	var called bool
	seg := SegmenterFunc(func(ctx context.Context, frame *rimage.Frame) (*Segmentation, error) {
		called = true
		return &Segmentation{MasksAvailable: true}, nil
	})
	out, err := seg.Segment(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, called, test.ShouldBeTrue)
	test.That(t, out.MasksAvailable, test.ShouldBeTrue)
}

func TestFilters(t *testing.T) {
	in := &Segmentation{
		MasksAvailable: true,
		Objects: []DetectedObject{
			{ClassID: 1, Score: 0.9, Mask: NewBoxMask(4, 4, image.Rect(0, 0, 4, 4))},
			{ClassID: 2, Score: 0.2, Mask: NewBoxMask(4, 4, image.Rect(0, 0, 4, 4))},
			{ClassID: 3, Score: 0.7, Mask: NewBoxMask(4, 4, image.Rect(0, 0, 1, 1))},
		},
	}
	out := NewScoreFilter(0.5)(in)
	test.That(t, out.Objects, test.ShouldHaveLength, 2)
	test.That(t, out.Objects[0].ClassID, test.ShouldEqual, 1)
	test.That(t, out.Objects[1].ClassID, test.ShouldEqual, 3)
	test.That(t, out.MasksAvailable, test.ShouldBeTrue)
	// the input is untouched
	test.That(t, in.Objects, test.ShouldHaveLength, 3)

	out = Chain(NewScoreFilter(0.5), NewAreaFilter(2), nil)(in)
	test.That(t, out.Objects, test.ShouldHaveLength, 1)
	test.That(t, out.Objects[0].ClassID, test.ShouldEqual, 1)

	test.That(t, NewScoreFilter(0.5)(nil), test.ShouldBeNil)
}

func TestAnnotate(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 40, 30))
	objects := []DetectedObject{
		{Box: Box{5, 5, 20, 20}, Mask: NewBoxMask(40, 30, image.Rect(5, 5, 20, 20)), ClassID: 0, Score: 0.8},
	}
	out := Annotate(base, objects, func(int) string { return "person" })
	test.That(t, out.Bounds(), test.ShouldResemble, base.Bounds())

	// mask interior is tinted, far background is untouched
	r, g, b, _ := out.At(12, 12).RGBA()
	test.That(t, r+g+b, test.ShouldBeGreaterThan, uint32(0))
	r, g, b, _ = out.At(35, 28).RGBA()
	test.That(t, r+g+b, test.ShouldEqual, uint32(0))

	// distinct classes get distinct colors
	test.That(t, ClassColor(1), test.ShouldNotResemble, ClassColor(2))
}
