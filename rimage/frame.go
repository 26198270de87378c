// Package rimage holds the in-memory frame representation and the conversions between raw
// transport buffers, canonical frames and standard library images.
package rimage

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/segfront/ros"
)

// PixelFormat is the element layout of a Frame.
type PixelFormat int

// The supported pixel formats.
const (
	FormatUnknown PixelFormat = iota
	FormatRGB8
	FormatBGR8
	FormatMono8
	FormatFloat32
)

// ErrUnsupportedEncoding is returned when an image declares an encoding we cannot lay out.
var ErrUnsupportedEncoding = errors.New("unsupported image encoding")

// ErrInvalidFrameSize is returned when a buffer does not match its declared dimensions.
var ErrInvalidFrameSize = errors.New("image buffer does not match its dimensions")

// NewUnsupportedEncodingError is used when an encoding string is not recognized.
func NewUnsupportedEncodingError(encoding string) error {
	return errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
}

// NewInvalidFrameSizeError is used when a buffer length does not fit width*height*channels.
func NewInvalidFrameSizeError(length, width, height int, encoding string) error {
	return errors.Wrapf(ErrInvalidFrameSize, "%d bytes for %dx%d %s", length, width, height, encoding)
}

// ParseEncoding maps a transport encoding string to a PixelFormat. Matching is case-insensitive.
func ParseEncoding(encoding string) (PixelFormat, error) {
	switch strings.ToLower(encoding) {
	case ros.EncodingRGB8:
		return FormatRGB8, nil
	case ros.EncodingBGR8:
		return FormatBGR8, nil
	case ros.EncodingMono8:
		return FormatMono8, nil
	case strings.ToLower(ros.EncodingFloat32):
		return FormatFloat32, nil
	default:
		return FormatUnknown, NewUnsupportedEncodingError(encoding)
	}
}

// Encoding returns the transport encoding string of the format.
func (f PixelFormat) Encoding() string {
	switch f {
	case FormatRGB8:
		return ros.EncodingRGB8
	case FormatBGR8:
		return ros.EncodingBGR8
	case FormatMono8:
		return ros.EncodingMono8
	case FormatFloat32:
		return ros.EncodingFloat32
	case FormatUnknown:
	}
	return "unknown"
}

func (f PixelFormat) String() string {
	return f.Encoding()
}

// ElementSize is the number of bytes of a single channel value.
func (f PixelFormat) ElementSize() int {
	if f == FormatFloat32 {
		return 4
	}
	return 1
}

// Channels is the canonical channel count of the format.
func (f PixelFormat) Channels() int {
	switch f {
	case FormatRGB8, FormatBGR8:
		return 3
	case FormatMono8, FormatFloat32:
		return 1
	case FormatUnknown:
	}
	return 0
}

// Frame is a decoded, interleaved image buffer. len(Data) is always
// Width*Height*Channels*Format.ElementSize().
type Frame struct {
	Header   ros.Header
	Width    int
	Height   int
	Channels int
	Format   PixelFormat
	Data     []byte
}

// NewFrame allocates a zeroed frame of the given format.
func NewFrame(header ros.Header, width, height int, format PixelFormat) *Frame {
	channels := format.Channels()
	return &Frame{
		Header:   header,
		Width:    width,
		Height:   height,
		Channels: channels,
		Format:   format,
		Data:     make([]byte, width*height*channels*format.ElementSize()),
	}
}

// CheckValid checks the buffer length invariant.
func (f *Frame) CheckValid() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("invalid frame size (%d, %d)", f.Width, f.Height)
	}
	if len(f.Data) != f.Width*f.Height*f.Channels*f.Format.ElementSize() {
		return NewInvalidFrameSizeError(len(f.Data), f.Width, f.Height, f.Format.Encoding())
	}
	return nil
}

// Stride is the row length in bytes.
func (f *Frame) Stride() int {
	return f.Width * f.Channels * f.Format.ElementSize()
}

// Float32At reads the value of a FormatFloat32 frame.
func (f *Frame) Float32At(x, y int) float32 {
	i := (y*f.Width + x) * 4
	return math.Float32frombits(binary.LittleEndian.Uint32(f.Data[i:]))
}

// SetFloat32 writes the value of a FormatFloat32 frame.
func (f *Frame) SetFloat32(x, y int, v float32) {
	i := (y*f.Width + x) * 4
	binary.LittleEndian.PutUint32(f.Data[i:], math.Float32bits(v))
}

// ToMessage wraps the frame as a transport image sharing the same buffer.
func (f *Frame) ToMessage() *ros.Image {
	return ros.NewImage(f.Header, f.Width, f.Height, f.Format.Encoding(), f.Data)
}
