package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
const BrownConradyDistortionType = DistortionType("brown_conrady")

// ErrInvalidDistortion is used when the distortion coefficients are invalid.
var ErrInvalidDistortion = errors.New("invalid distortion_coeffs")

// InvalidDistortionError wraps ErrInvalidDistortion with detail.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

// Distorter moves points on the normalized image plane according to a lens model.
type Distorter interface {
	ModelType() DistortionType
	Parameters() []float64
	// Distort maps an ideal point to where the lens images it.
	Distort(p r2.Point) r2.Point
}

// BrownConrady is the radial/tangential lens model with the optional rational radial terms.
// Coefficients are given in the order k1, k2, p1, p2, k3[, k4, k5, k6].
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RationalK4   float64 `json:"rk4"`
	RationalK5   float64 `json:"rk5"`
	RationalK6   float64 `json:"rk6"`
}

// NewBrownConrady takes 5 to 8 coefficients. Missing rational terms are zero.
func NewBrownConrady(coeffs []float64) (*BrownConrady, error) {
	if len(coeffs) < 5 || len(coeffs) > 8 {
		return nil, InvalidDistortionError(fmt.Sprintf("expected 5 to 8 coefficients, got %d", len(coeffs)))
	}
	padded := make([]float64, 8)
	copy(padded, coeffs)
	return &BrownConrady{
		padded[0], padded[1], padded[2], padded[3], padded[4],
		padded[5], padded[6], padded[7],
	}, nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in construction order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3,
		bc.RationalK4, bc.RationalK5, bc.RationalK6,
	}
}

// IsZero is true when the model leaves every point in place.
func (bc *BrownConrady) IsZero() bool {
	return bc == nil || *bc == BrownConrady{}
}

func (bc *BrownConrady) radial(rr float64) float64 {
	r4 := rr * rr
	r6 := r4 * rr
	return (1 + bc.RadialK1*rr + bc.RadialK2*r4 + bc.RadialK3*r6) /
		(1 + bc.RationalK4*rr + bc.RationalK5*r4 + bc.RationalK6*r6)
}

func (bc *BrownConrady) tangential(x, y, rr float64) (float64, float64) {
	return 2*bc.TangentialP1*x*y + bc.TangentialP2*(rr+2*x*x),
		bc.TangentialP1*(rr+2*y*y) + 2*bc.TangentialP2*x*y
}

// Distort applies the forward model
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶)/(1 + k4*r² + k5*r⁴ + k6*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶)/(1 + k4*r² + k5*r⁴ + k6*r⁶) + p1*(r² + 2*y²) + 2*p2*x*y
func (bc *BrownConrady) Distort(p r2.Point) r2.Point {
	if bc == nil {
		return p
	}
	rr := p.X*p.X + p.Y*p.Y
	radial := bc.radial(rr)
	dx, dy := bc.tangential(p.X, p.Y, rr)
	return r2.Point{X: p.X*radial + dx, Y: p.Y*radial + dy}
}
