// Package ros defines the message shapes exchanged with the camera and result streams. They
// mirror sensor_msgs/Image, sensor_msgs/RegionOfInterest and the segmentation Result message so
// that consumers written against those definitions can read them field for field.
package ros

import (
	"time"
)

// Encodings understood on the image streams.
const (
	EncodingRGB8    = "rgb8"
	EncodingBGR8    = "bgr8"
	EncodingMono8   = "mono8"
	EncodingFloat32 = "32FC1"
)

// Header ties a message back to the camera frame it was derived from. Token is an opaque
// correlation value that is copied verbatim from an inbound image to everything produced from it.
type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
	Token   string    `json:"token,omitempty"`
}

// Image is a raw image buffer as carried on the wire.
type Image struct {
	Header      Header `json:"header"`
	Height      uint32 `json:"height"`
	Width       uint32 `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian bool   `json:"is_bigendian"`
	// Step is the row length in bytes.
	Step uint32 `json:"step"`
	Data []byte `json:"data"`
}

// NewImage builds an Image whose step is derived from the buffer length.
func NewImage(header Header, width, height int, encoding string, data []byte) *Image {
	var step uint32
	if height > 0 {
		step = uint32(len(data) / height)
	}
	return &Image{
		Header:   header,
		Height:   uint32(height),
		Width:    uint32(width),
		Encoding: encoding,
		Step:     step,
		Data:     data,
	}
}

// RegionOfInterest is an axis aligned box in pixel coordinates.
type RegionOfInterest struct {
	XOffset   uint32 `json:"x_offset"`
	YOffset   uint32 `json:"y_offset"`
	Height    uint32 `json:"height"`
	Width     uint32 `json:"width"`
	DoRectify bool   `json:"do_rectify"`
}

// Result is the per-frame segmentation output. Index i of Boxes, Masks, ClassIDs and Scores
// describes the same object.
type Result struct {
	Header   Header             `json:"header"`
	Boxes    []RegionOfInterest `json:"boxes"`
	Masks    []Image            `json:"masks"`
	ClassIDs []int32            `json:"class_ids"`
	Scores   []float32          `json:"scores"`
}

// Len returns the number of objects in the result, or -1 if the sequences disagree.
func (r *Result) Len() int {
	n := len(r.Boxes)
	if len(r.Masks) != n || len(r.ClassIDs) != n || len(r.Scores) != n {
		return -1
	}
	return n
}
