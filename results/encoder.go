// Package results turns a Segmentation into the outbound result and visualization messages.
package results

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
	"go.viam.com/segfront/vision"
)

var (
	// ErrInvalidBox is returned for a box with negative, inverted or non-finite coordinates.
	ErrInvalidBox = errors.New("invalid box")
	// ErrNoMaskData is returned when the segmenter did not produce masks. It is not a failure;
	// the caller should skip publishing the result for that frame.
	ErrNoMaskData = errors.New("no mask data")
	// ErrInvalidMask is returned for a mask whose size does not match the frame.
	ErrInvalidMask = errors.New("invalid mask")
	// ErrMisalignedResult is returned when the per-object sequences of a result differ in length.
	ErrMisalignedResult = errors.New("misaligned result")
)

// NewInvalidBoxError returns an error specific to a malformed box.
func NewInvalidBoxError(b vision.Box) error {
	return errors.Wrapf(ErrInvalidBox, "%v", b)
}

// EncodeBox converts a box into a region of interest. Width and height are x2-x1 and y2-y1
// truncated to whole pixels.
func EncodeBox(b vision.Box) (ros.RegionOfInterest, error) {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > math.MaxUint32 {
			return ros.RegionOfInterest{}, NewInvalidBoxError(b)
		}
	}
	if b.X2 < b.X1 || b.Y2 < b.Y1 {
		return ros.RegionOfInterest{}, NewInvalidBoxError(b)
	}
	return ros.RegionOfInterest{
		XOffset: uint32(b.X1),
		YOffset: uint32(b.Y1),
		Width:   uint32(b.X2 - b.X1),
		Height:  uint32(b.Y2 - b.Y1),
	}, nil
}

// EncodeMask paints m into a full frame mono8 image with 255 for foreground and 0 elsewhere.
func EncodeMask(header ros.Header, m *vision.Mask, width, height int) (ros.Image, error) {
	if m == nil {
		return ros.Image{}, errors.Wrap(ErrInvalidMask, "missing")
	}
	if m.Width != width || m.Height != height || len(m.Bits) != width*height {
		return ros.Image{}, errors.Wrapf(ErrInvalidMask, "mask is %dx%d, frame is %dx%d",
			m.Width, m.Height, width, height)
	}
	data := make([]byte, width*height)
	for i, fg := range m.Bits {
		if fg {
			data[i] = 255
		}
	}
	return *ros.NewImage(header, width, height, ros.EncodingMono8, data), nil
}

// Encode builds the result message for one frame. Every object is encoded at the same index of
// each sequence; if any object fails, no message is produced. ErrNoMaskData is returned when
// seg says masks are unavailable.
func Encode(header ros.Header, width, height int, seg *vision.Segmentation) (*ros.Result, error) {
	if seg == nil || !seg.MasksAvailable {
		return nil, ErrNoMaskData
	}
	n := len(seg.Objects)
	res := &ros.Result{
		Header:   header,
		Boxes:    make([]ros.RegionOfInterest, 0, n),
		Masks:    make([]ros.Image, 0, n),
		ClassIDs: make([]int32, 0, n),
		Scores:   make([]float32, 0, n),
	}
	for i, o := range seg.Objects {
		roi, err := EncodeBox(o.Box)
		if err != nil {
			return nil, errors.Wrapf(err, "object %d", i)
		}
		mask, err := EncodeMask(header, o.Mask, width, height)
		if err != nil {
			return nil, errors.Wrapf(err, "object %d", i)
		}
		res.Boxes = append(res.Boxes, roi)
		res.Masks = append(res.Masks, mask)
		res.ClassIDs = append(res.ClassIDs, int32(o.ClassID))
		res.Scores = append(res.Scores, float32(o.Score))
	}
	return res, nil
}

// EncodeVisualization converts the segmenter's rendering into an rgb8 image message.
func EncodeVisualization(header ros.Header, img image.Image) (*ros.Image, error) {
	if img == nil {
		return nil, errors.New("no visualization")
	}
	frame, err := rimage.FromImage(header, img)
	if err != nil {
		return nil, err
	}
	return frame.ToMessage(), nil
}

// Validate checks that every sequence of res has the same length and that every mask is a
// mono8 image of the same size.
func Validate(res *ros.Result) error {
	if res == nil {
		return errors.Wrap(ErrMisalignedResult, "nil result")
	}
	if res.Len() < 0 {
		return errors.Wrapf(ErrMisalignedResult, "boxes=%d masks=%d class_ids=%d scores=%d",
			len(res.Boxes), len(res.Masks), len(res.ClassIDs), len(res.Scores))
	}
	for i, m := range res.Masks {
		if m.Encoding != ros.EncodingMono8 || len(m.Data) != int(m.Width*m.Height) {
			return errors.Wrapf(ErrInvalidMask, "mask %d", i)
		}
		if i > 0 && (m.Width != res.Masks[0].Width || m.Height != res.Masks[0].Height) {
			return errors.Wrapf(ErrInvalidMask, "mask %d size differs", i)
		}
	}
	return nil
}
