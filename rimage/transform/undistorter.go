package transform

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/segfront/rimage"
)

// ErrUnsupportedChannelLayout is returned when asked to rectify anything but 1 or 3 channel frames.
var ErrUnsupportedChannelLayout = errors.New("unsupported channel layout for undistortion")

// NewUnsupportedChannelLayoutError is used when a frame has a channel count we cannot remap.
func NewUnsupportedChannelLayoutError(channels int) error {
	return errors.Wrapf(ErrUnsupportedChannelLayout, "%d channels", channels)
}

// PinholeCameraModel is the model of a pinhole camera with lens distortion. It is constructed
// once at startup and only read afterwards.
type PinholeCameraModel struct {
	Intrinsics *CameraIntrinsics
	Distortion Distorter
}

// NewPinholeCameraModel validates K (9 values, row major) and the Brown-Conrady coefficients
// (5 to 8 values).
func NewPinholeCameraModel(cameraMatrix, distortionCoeffs []float64) (*PinholeCameraModel, error) {
	intrinsics, err := NewCameraIntrinsics(cameraMatrix)
	if err != nil {
		return nil, err
	}
	distortion, err := NewBrownConrady(distortionCoeffs)
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{Intrinsics: intrinsics, Distortion: distortion}, nil
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(p r2.Point) r2.Point {
	return func(p r2.Point) r2.Point {
		return params.Intrinsics.NormalizedToPixel(params.Distortion.Distort(params.Intrinsics.PixelToNormalized(p)))
	}
}

// remap holds, for every pixel of the rectified frame, the position to sample in the raw frame.
type remap struct {
	width, height int
	xs, ys        []float32
}

// Undistorter rectifies frames with a fixed camera model. The per-size sampling table is
// computed on first use and reused while the frame size stays the same.
type Undistorter struct {
	model *PinholeCameraModel

	mu    sync.Mutex
	table *remap
}

// NewUndistorter returns an Undistorter for the given camera model.
func NewUndistorter(model *PinholeCameraModel) (*Undistorter, error) {
	if model == nil || model.Intrinsics == nil || model.Distortion == nil {
		return nil, errors.New("undistorter needs intrinsics and a distortion model")
	}
	return &Undistorter{model: model}, nil
}

// Model returns the camera model.
func (u *Undistorter) Model() *PinholeCameraModel {
	return u.model
}

func (u *Undistorter) remapFor(width, height int) *remap {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.table != nil && u.table.width == width && u.table.height == height {
		return u.table
	}
	distortionMap := u.model.DistortionMap()
	table := &remap{
		width:  width,
		height: height,
		xs:     make([]float32, width*height),
		ys:     make([]float32, width*height),
	}
	for v := 0; v < height; v++ {
		for x := 0; x < width; x++ {
			src := distortionMap(r2.Point{X: float64(x), Y: float64(v)})
			table.xs[v*width+x] = float32(src.X)
			table.ys[v*width+x] = float32(src.Y)
		}
	}
	u.table = table
	return table
}

// Rectify returns a new frame of identical size and format with the lens distortion removed.
// Every output pixel is bilinearly sampled from the input; samples falling outside the input
// are black. The input frame is not modified.
func (u *Undistorter) Rectify(frame *rimage.Frame) (*rimage.Frame, error) {
	if err := frame.CheckValid(); err != nil {
		return nil, err
	}
	if frame.Channels != 1 && frame.Channels != 3 {
		return nil, NewUnsupportedChannelLayoutError(frame.Channels)
	}
	if frame.Format == rimage.FormatFloat32 && frame.Channels != 1 {
		return nil, NewUnsupportedChannelLayoutError(frame.Channels)
	}

	out := &rimage.Frame{
		Header:   frame.Header,
		Width:    frame.Width,
		Height:   frame.Height,
		Channels: frame.Channels,
		Format:   frame.Format,
		Data:     make([]byte, len(frame.Data)),
	}
	table := u.remapFor(frame.Width, frame.Height)
	if frame.Format == rimage.FormatFloat32 {
		remapFloat32(frame, out, table)
	} else {
		remapBytes(frame, out, table)
	}
	return out, nil
}

type tap struct {
	offset int
	weight float64
}

// bilinearTaps returns the in-bounds neighbours of (sx, sy) with their weights.
func bilinearTaps(sx, sy float64, width, height int, taps *[4]tap) int {
	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	fx := sx - float64(x0)
	fy := sy - float64(y0)
	n := 0
	for _, c := range [4]struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		x, y := x0+c.dx, y0+c.dy
		if c.w == 0 || x < 0 || y < 0 || x >= width || y >= height {
			continue
		}
		taps[n] = tap{offset: y*width + x, weight: c.w}
		n++
	}
	return n
}

func remapBytes(in, out *rimage.Frame, table *remap) {
	var taps [4]tap
	channels := in.Channels
	for i := range table.xs {
		n := bilinearTaps(float64(table.xs[i]), float64(table.ys[i]), in.Width, in.Height, &taps)
		for c := 0; c < channels; c++ {
			acc := 0.0
			for _, t := range taps[:n] {
				acc += t.weight * float64(in.Data[t.offset*channels+c])
			}
			out.Data[i*channels+c] = uint8(math.Min(255, math.Max(0, math.Round(acc))))
		}
	}
}

func remapFloat32(in, out *rimage.Frame, table *remap) {
	var taps [4]tap
	for i := range table.xs {
		n := bilinearTaps(float64(table.xs[i]), float64(table.ys[i]), in.Width, in.Height, &taps)
		acc := 0.0
		for _, t := range taps[:n] {
			acc += t.weight * float64(in.Float32At(t.offset%in.Width, t.offset/in.Width))
		}
		out.SetFloat32(i%in.Width, i/in.Width, float32(acc))
	}
}

func (params *PinholeCameraModel) String() string {
	return fmt.Sprintf("K=%v D=%v", params.Intrinsics.Values(), params.Distortion.Parameters())
}
