package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/segfront/ros"
)

// ToImage converts a frame to a standard library image for drawing and file output. Color
// frames become *image.NRGBA, mono8 frames *image.Gray and 32FC1 frames a *image.Gray16
// stretched between the frame's minimum and maximum finite values.
func ToImage(f *Frame) (image.Image, error) {
	if err := f.CheckValid(); err != nil {
		return nil, err
	}
	bounds := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case FormatRGB8, FormatBGR8:
		img := image.NewNRGBA(bounds)
		rIdx, bIdx := 0, 2
		if f.Format == FormatBGR8 {
			rIdx, bIdx = 2, 0
		}
		for p := 0; p < f.Width*f.Height; p++ {
			src := f.Data[3*p : 3*p+3]
			dst := img.Pix[4*p : 4*p+4]
			dst[0], dst[1], dst[2], dst[3] = src[rIdx], src[1], src[bIdx], 0xff
		}
		return img, nil
	case FormatMono8:
		img := image.NewGray(bounds)
		copy(img.Pix, f.Data)
		return img, nil
	case FormatFloat32:
		return floatToGray16(f), nil
	case FormatUnknown:
	}
	return nil, NewUnsupportedEncodingError(f.Format.Encoding())
}

func floatToGray16(f *Frame) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := float64(f.Float32At(x, y))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	scale := 0.0
	if hi > lo {
		scale = math.MaxUint16 / (hi - lo)
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := float64(f.Float32At(x, y))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16((v - lo) * scale)})
		}
	}
	return img
}

// FromImage converts any image into an rgb8 frame. Alpha is discarded.
func FromImage(header ros.Header, img image.Image) (*Frame, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	if bounds.Empty() {
		return nil, errors.Errorf("image is empty: %v", bounds)
	}
	out := NewFrame(header, bounds.Dx(), bounds.Dy(), FormatRGB8)
	for p := 0; p < out.Width*out.Height; p++ {
		copy(out.Data[3*p:3*p+3], nrgba.Pix[4*p:4*p+3])
	}
	return out, nil
}
