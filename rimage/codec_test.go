package rimage

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/segfront/ros"
)

func filled(n int, v byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return data
}

func TestDecodeDimensions(t *testing.T) {
	for _, tc := range []struct {
		encoding string
		inBytes  int
		channels int
		format   PixelFormat
	}{
		{"rgb8", 3, 3, FormatBGR8},
		{"RGB8", 3, 3, FormatBGR8},
		{"bgr8", 3, 3, FormatBGR8},
		{"mono8", 3, 1, FormatMono8},
		{"mono8", 1, 1, FormatMono8},
		{"32FC1", 4, 1, FormatFloat32},
		{"32fc1", 4, 1, FormatFloat32},
	} {
		for _, size := range [][2]int{{1, 1}, {4, 3}, {17, 9}} {
			w, h := size[0], size[1]
			frame, err := Decode(make([]byte, w*h*tc.inBytes), tc.encoding, w, h)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, frame.Width, test.ShouldEqual, w)
			test.That(t, frame.Height, test.ShouldEqual, h)
			test.That(t, frame.Channels, test.ShouldEqual, tc.channels)
			test.That(t, frame.Format, test.ShouldEqual, tc.format)
			test.That(t, frame.CheckValid(), test.ShouldBeNil)
		}
	}
}

func TestDecodeMonoFromRGB(t *testing.T) {
	frame, err := Decode(filled(8*6*3, 128), "mono8", 8, 6)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Channels, test.ShouldEqual, 1)
	for _, v := range frame.Data {
		test.That(t, v, test.ShouldEqual, byte(128))
	}

	test.That(t, Gray(255, 0, 0), test.ShouldEqual, uint8(76))
	test.That(t, Gray(0, 255, 0), test.ShouldEqual, uint8(150))
	test.That(t, Gray(0, 0, 255), test.ShouldEqual, uint8(29))
	test.That(t, Gray(255, 255, 255), test.ShouldEqual, uint8(255))
}

func TestDecodeChannelOrder(t *testing.T) {
	rgb := []byte{1, 2, 3, 4, 5, 6}
	frame, err := Decode(rgb, "rgb8", 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Data, test.ShouldResemble, []byte{3, 2, 1, 6, 5, 4})
	// the source buffer is not modified
	test.That(t, rgb, test.ShouldResemble, []byte{1, 2, 3, 4, 5, 6})

	frame, err = Decode(rgb, "bgr8", 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Data, test.ShouldResemble, []byte{1, 2, 3, 4, 5, 6})
}

func TestDecodeFloat(t *testing.T) {
	data := make([]byte, 2*2*4)
	for i, v := range []float32{0.5, -1, 3.25, float32(math.Inf(1))} {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	frame, err := Decode(data, "32FC1", 2, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Float32At(0, 0), test.ShouldEqual, float32(0.5))
	test.That(t, frame.Float32At(1, 0), test.ShouldEqual, float32(-1))
	test.That(t, frame.Float32At(0, 1), test.ShouldEqual, float32(3.25))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(make([]byte, 12), "yuv422", 2, 2)
	test.That(t, errors.Is(err, ErrUnsupportedEncoding), test.ShouldBeTrue)

	_, err = Decode(make([]byte, 12), "", 2, 2)
	test.That(t, errors.Is(err, ErrUnsupportedEncoding), test.ShouldBeTrue)

	_, err = Decode(make([]byte, 13), "rgb8", 2, 2)
	test.That(t, errors.Is(err, ErrInvalidFrameSize), test.ShouldBeTrue)

	_, err = Decode(make([]byte, 8), "rgb8", 2, 2)
	test.That(t, errors.Is(err, ErrInvalidFrameSize), test.ShouldBeTrue)

	_, err = Decode(make([]byte, 8), "mono8", 2, 2)
	test.That(t, errors.Is(err, ErrInvalidFrameSize), test.ShouldBeTrue)

	_, err = Decode(make([]byte, 4), "rgb8", 0, 2)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeImageKeepsHeader(t *testing.T) {
	header := ros.Header{Seq: 9, FrameID: "camera_0", Token: "abc"}
	msg := ros.NewImage(header, 2, 2, "mono8", filled(2*2*3, 10))
	frame, err := DecodeImage(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Header, test.ShouldResemble, header)

	_, err = DecodeImage(nil)
	test.That(t, err, test.ShouldNotBeNil)
}
