// Package transform holds the camera model used to rectify frames before inference.
package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidIntrinsics is when a camera matrix cannot describe a pinhole camera.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsic parameters")

// NewInvalidIntrinsicsError is used when the camera matrix fails validation.
func NewInvalidIntrinsicsError(msg string) error {
	return errors.Wrap(ErrInvalidIntrinsics, msg)
}

// CameraIntrinsics is the 3x3 pinhole camera matrix
//
//	| fx  s  ppx |
//	| 0   fy ppy |
//	| 0   0  1   |
//
// It is immutable once constructed.
type CameraIntrinsics struct {
	k    *mat.Dense
	kInv *mat.Dense
}

// NewCameraIntrinsics takes the nine entries of K in row major order.
func NewCameraIntrinsics(k []float64) (*CameraIntrinsics, error) {
	if len(k) != 9 {
		return nil, NewInvalidIntrinsicsError(fmt.Sprintf("camera_matrix needs 9 values, got %d", len(k)))
	}
	km := mat.NewDense(3, 3, append([]float64(nil), k...))
	if km.At(2, 0) != 0 || km.At(2, 1) != 0 || km.At(2, 2) != 1 || km.At(1, 0) != 0 {
		return nil, NewInvalidIntrinsicsError(fmt.Sprintf("camera_matrix is not upper triangular with K[2][2]=1: %v", k))
	}
	if km.At(0, 0) <= 0 {
		return nil, NewInvalidIntrinsicsError(fmt.Sprintf("invalid focal length fx = %#v", km.At(0, 0)))
	}
	if km.At(1, 1) <= 0 {
		return nil, NewInvalidIntrinsicsError(fmt.Sprintf("invalid focal length fy = %#v", km.At(1, 1)))
	}
	if km.At(0, 2) < 0 || km.At(1, 2) < 0 {
		return nil, NewInvalidIntrinsicsError(fmt.Sprintf("invalid principal point (%#v, %#v)", km.At(0, 2), km.At(1, 2)))
	}
	var kInv mat.Dense
	if err := kInv.Inverse(km); err != nil {
		return nil, NewInvalidIntrinsicsError(err.Error())
	}
	return &CameraIntrinsics{k: km, kInv: &kInv}, nil
}

// Fx is the horizontal focal length in pixels.
func (ci *CameraIntrinsics) Fx() float64 { return ci.k.At(0, 0) }

// Fy is the vertical focal length in pixels.
func (ci *CameraIntrinsics) Fy() float64 { return ci.k.At(1, 1) }

// Ppx is the horizontal principal point in pixels.
func (ci *CameraIntrinsics) Ppx() float64 { return ci.k.At(0, 2) }

// Ppy is the vertical principal point in pixels.
func (ci *CameraIntrinsics) Ppy() float64 { return ci.k.At(1, 2) }

// Matrix returns a copy of K.
func (ci *CameraIntrinsics) Matrix() *mat.Dense {
	return mat.DenseCopyOf(ci.k)
}

// Values returns K in row major order.
func (ci *CameraIntrinsics) Values() []float64 {
	return append([]float64(nil), ci.k.RawMatrix().Data...)
}

// PixelToNormalized maps a pixel onto the z=1 image plane by applying K^-1.
func (ci *CameraIntrinsics) PixelToNormalized(p r2.Point) r2.Point {
	return r2.Point{
		X: ci.kInv.At(0, 0)*p.X + ci.kInv.At(0, 1)*p.Y + ci.kInv.At(0, 2),
		Y: ci.kInv.At(1, 1)*p.Y + ci.kInv.At(1, 2),
	}
}

// NormalizedToPixel maps a point on the z=1 image plane to pixel coordinates by applying K.
func (ci *CameraIntrinsics) NormalizedToPixel(p r2.Point) r2.Point {
	return r2.Point{
		X: ci.k.At(0, 0)*p.X + ci.k.At(0, 1)*p.Y + ci.k.At(0, 2),
		Y: ci.k.At(1, 1)*p.Y + ci.k.At(1, 2),
	}
}
