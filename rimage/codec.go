package rimage

import (
	"github.com/pkg/errors"

	"go.viam.com/segfront/ros"
)

// Fixed point weights of the BT.601 luma transform, scaled by 1<<grayShift.
const (
	grayShift = 14
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
)

// Gray returns the luma of an RGB triple.
func Gray(r, g, b uint8) uint8 {
	return uint8((int(r)*grayR + int(g)*grayG + int(b)*grayB + (1 << (grayShift - 1))) >> grayShift)
}

// DecodeImage decodes a transport image into a canonical frame, see Decode.
func DecodeImage(msg *ros.Image) (*Frame, error) {
	if msg == nil {
		return nil, errors.New("image message is nil")
	}
	frame, err := Decode(msg.Data, msg.Encoding, int(msg.Width), int(msg.Height))
	if err != nil {
		return nil, err
	}
	frame.Header = msg.Header
	return frame, nil
}

// Decode converts a raw buffer into a canonical frame. The channel count is inferred from the
// buffer length. RGB and BGR input both come out BGR ordered. mono8 input arrives as RGB
// triples from the camera driver and is reduced to one gray channel; an already single channel
// mono8 buffer is copied as is. 32FC1 input is copied without any color conversion.
func Decode(data []byte, encoding string, width, height int) (*Frame, error) {
	format, err := ParseEncoding(encoding)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size (%d, %d)", width, height)
	}
	pixels := width * height
	if len(data) == 0 || len(data)%pixels != 0 {
		return nil, NewInvalidFrameSizeError(len(data), width, height, encoding)
	}
	channels := len(data) / pixels

	switch format {
	case FormatRGB8, FormatBGR8:
		if channels != 3 {
			return nil, NewInvalidFrameSizeError(len(data), width, height, encoding)
		}
		out := NewFrame(ros.Header{}, width, height, FormatBGR8)
		if format == FormatBGR8 {
			copy(out.Data, data)
			return out, nil
		}
		for i := 0; i < len(data); i += 3 {
			out.Data[i], out.Data[i+1], out.Data[i+2] = data[i+2], data[i+1], data[i]
		}
		return out, nil
	case FormatMono8:
		out := NewFrame(ros.Header{}, width, height, FormatMono8)
		switch channels {
		case 1:
			copy(out.Data, data)
		case 3:
			for p := 0; p < pixels; p++ {
				out.Data[p] = Gray(data[3*p], data[3*p+1], data[3*p+2])
			}
		default:
			return nil, NewInvalidFrameSizeError(len(data), width, height, encoding)
		}
		return out, nil
	case FormatFloat32:
		if len(data) != pixels*FormatFloat32.ElementSize() {
			return nil, NewInvalidFrameSizeError(len(data), width, height, encoding)
		}
		out := NewFrame(ros.Header{}, width, height, FormatFloat32)
		copy(out.Data, data)
		return out, nil
	case FormatUnknown:
	}
	return nil, NewUnsupportedEncodingError(encoding)
}
